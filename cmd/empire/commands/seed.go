package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/config"
	"github.com/justinhartfield/protein-empire-cms/pkg/contentapi"
	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/fixtures"
)

func newSeedCommand() *cobra.Command {
	var (
		sites       []string
		fixturesDir string
		catalogPath string
		fallback    string
		ledgerPath  string
		watch       bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed sites, categories, recipes and packs into the content store",
		Long: `Create every site in the catalog together with its categories, recipes
and recipe packs. Entities that already exist are found by their natural key
and reused, so running seed again is safe.

A failing site is skipped and the run moves on to the next one. Failing
categories, recipes or packs are reported and skipped; anything referring to
them is created without the reference.`,
		Example: `  # Seed every site in the catalog
  empire seed

  # Seed two sites from a different fixture directory
  empire seed --site proteinbars.co --site proteincookies.co --fixtures ./data/recipes

  # Show what would be created without contacting the content store
  empire seed --dry-run

  # Seed, then re-seed a site whenever its fixtures change
  empire seed --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(func(cfg *config.Config) {
				if cmd.Flags().Changed("fixtures") {
					cfg.Fixtures.Dir = fixturesDir
				}
				if cmd.Flags().Changed("catalog") {
					cfg.Fixtures.Catalog = catalogPath
				}
				if cmd.Flags().Changed("fallback") {
					cfg.Seed.Fallback = fallback
				}
				if cmd.Flags().Changed("ledger") {
					cfg.Ledger.Path = ledgerPath
				}
			})
			if err != nil {
				return err
			}
			defer rt.close()

			return runSeed(cmd.Context(), rt, cmd.OutOrStdout(), sites, watch, dryRun)
		},
	}

	cmd.Flags().StringSliceVarP(&sites, "site", "s", nil, "only seed these domains (repeatable)")
	cmd.Flags().StringVar(&fixturesDir, "fixtures", "", "fixture root directory")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "site catalog file (default built-in)")
	cmd.Flags().StringVar(&fallback, "fallback", "", "lookup after a failed create: always or conflict")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "run ledger database; empty disables it")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-seed a site when its fixtures change")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "load fixtures and print what would be seeded")

	return cmd
}

func runSeed(ctx context.Context, rt *runtime, out io.Writer, domains []string, watch, dryRun bool) error {
	cfg := rt.cfg
	logger := rt.logger("seed")

	catalog, err := fixtures.LoadCatalog(cfg.Fixtures.Catalog)
	if err != nil {
		return err
	}
	if err := catalog.Validate(ctx, config.NewSchemaRegistry()); err != nil {
		return fmt.Errorf("invalid site catalog: %w", err)
	}
	sites, err := catalog.Select(domains)
	if err != nil {
		return err
	}

	layout := fixtures.NewLayout(cfg.Fixtures.Dir)
	if dryRun {
		return printDryRun(out, layout, sites, len(catalog.Categories))
	}

	if err := cfg.RequireContentToken(); err != nil {
		return err
	}
	client, err := contentapi.NewClient(contentapi.Config{
		BaseURL:    cfg.ContentAPI.URL,
		Token:      cfg.ContentAPI.Token,
		UserAgent:  "protein-empire-cms/" + buildVersion,
		HTTPClient: &http.Client{Timeout: cfg.ContentAPI.Timeout},
		Metrics:    rt.tel.Metrics,
		Logger:     rt.logger("contentapi"),
	})
	if err != nil {
		return err
	}
	if err := client.Probe(ctx); err != nil {
		return fmt.Errorf("cannot reach content store at %s: %w", cfg.ContentAPI.URL, err)
	}

	policy, err := engine.ParseFallbackPolicy(cfg.Seed.Fallback)
	if err != nil {
		return err
	}

	opts := []engine.SeederOption{
		engine.WithFallbackPolicy(policy),
		engine.WithLogger(rt.logger("seeder")),
		engine.WithMetrics(rt.tel.Metrics),
		engine.WithTracer(rt.tel.Tracer),
	}
	if !jsonOutput {
		opts = append(opts, engine.WithReporter(newConsoleReporter(out)))
	}

	ledger, err := rt.openLedger(ctx)
	if err != nil {
		logger.WithError(err).Warn("Run ledger unavailable, continuing without it")
	} else if ledger != nil {
		defer ledger.Close()
		opts = append(opts, engine.WithRecorder(ledger))
	}

	seeder := engine.NewSeeder(client, layout, catalog.Categories, opts...)
	summary, runErr := seeder.Run(ctx, sites)
	if err := printSummary(out, summary); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if !watch {
		return nil
	}

	watcher := fixtures.NewWatcher(layout, sites, cfg.Fixtures.WatchDebounce, rt.tel.Logger)
	err = watcher.Watch(ctx, func(ctx context.Context, site engine.Site) {
		res := seeder.SeedSite(ctx, site)
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			logger.WithSite(site.Domain).WithError(res.Err).Warn("Re-seed failed")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printSummary(out io.Writer, summary *engine.RunSummary) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(newRunReport(summary))
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, summaryTable(summary))
	if failed := summary.FailedSites(); len(failed) > 0 {
		fmt.Fprintf(out, "%s %d site(s) could not be seeded: %v\n", markFail, len(failed), failed)
	}
	return nil
}

type dryRunSite struct {
	Domain     string `json:"domain"`
	Categories int    `json:"categories"`
	Recipes    int    `json:"recipes"`
	Packs      int    `json:"packs"`
	Notice     string `json:"notice,omitempty"`
	Error      string `json:"error,omitempty"`
}

// printDryRun loads every fixture the run would use without contacting the
// content store.
func printDryRun(out io.Writer, layout *fixtures.Layout, sites []engine.Site, categories int) error {
	plan := make([]dryRunSite, 0, len(sites))
	for _, site := range sites {
		p := dryRunSite{Domain: site.Domain, Categories: categories}

		skipped := 0
		recipes, err := layout.Recipes(site.Domain)
		skipped += len(engine.SkippedEntries(err))
		switch {
		case errors.Is(err, fixtures.ErrFixtureMissing):
			p.Notice = "no recipes fixture"
		case err != nil && engine.SkippedEntries(err) == nil:
			p.Error = err.Error()
		default:
			p.Recipes = len(recipes)
			packs, err := layout.Packs(site.Domain)
			skipped += len(engine.SkippedEntries(err))
			switch {
			case errors.Is(err, fixtures.ErrFixtureMissing):
				p.Notice = "no packs fixture"
			case err != nil && engine.SkippedEntries(err) == nil:
				p.Error = err.Error()
			default:
				p.Packs = len(packs)
			}
		}
		if skipped > 0 && p.Notice == "" {
			p.Notice = fmt.Sprintf("malformed entries skipped: %d", skipped)
		}
		plan = append(plan, p)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	rows := make([][]string, 0, len(plan))
	for _, p := range plan {
		status := markOK
		switch {
		case p.Error != "":
			status = markFail + " " + p.Error
		case p.Notice != "":
			status = markWarn + " " + p.Notice
		}
		rows = append(rows, []string{
			p.Domain,
			strconv.Itoa(p.Categories),
			strconv.Itoa(p.Recipes),
			strconv.Itoa(p.Packs),
			status,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Site", "Categories", "Recipes", "Packs", "Fixtures"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}
