package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/config"
	"github.com/justinhartfield/protein-empire-cms/pkg/stores"
	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "empire",
		Short: "Protein Empire content tooling",
		Long: `empire seeds the Protein Empire sites into the content store and keeps
the static sites in step with content changes.

Commands:
  - seed:        create sites, categories, recipes and packs from fixtures
  - serve:       receive content webhooks and trigger debounced site rebuilds
  - notify-test: send a single rebuild notification
  - history:     inspect the run ledger
  - catalog:     print and validate the site catalog`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ./empire.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newNotifyTestCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCatalogCommand())

	return rootCmd
}

// runtime holds what every command needs once configuration is loaded.
type runtime struct {
	cfg *config.Config
	tel *telemetry.Telemetry
}

// loadRuntime loads configuration, applies command flag overrides, validates
// the result and sets up telemetry.
func loadRuntime(overrides func(*config.Config)) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		overrides(cfg)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.Logging.Format = "json"
	}
	cfg.Telemetry.ServiceVersion = buildVersion

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	// the configured logger level applies from here on
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = tel.Logger.Zerolog()

	return &runtime{cfg: cfg, tel: tel}, nil
}

func (rt *runtime) logger(component string) *telemetry.Logger {
	return rt.tel.Logger.NewComponentLogger(component)
}

// close flushes pending spans.
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tel.Shutdown(ctx); err != nil {
		rt.tel.Logger.WithError(err).Warn("Failed to shut down tracer")
	}
}

// openLedger opens and migrates the run ledger. It returns nil when the
// ledger is disabled.
func (rt *runtime) openLedger(ctx context.Context) (*stores.SQLiteStore, error) {
	if rt.cfg.Ledger.Path == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: rt.cfg.Ledger.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
