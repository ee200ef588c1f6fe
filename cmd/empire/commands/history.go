package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/config"
	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		runID         string
		limit         int
		failedOnly    bool
		notifications bool
		ledgerPath    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show seed runs and notifications from the run ledger",
		Example: `  # List the latest runs
  empire history

  # Show every entity outcome of one run
  empire history --run 2f1c...

  # Only the failures of one run
  empire history --run 2f1c... --failed

  # List recent notifications
  empire history --notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, ledgerPath, func(ctx context.Context, ledger *stores.SQLiteStore) error {
				out := cmd.OutOrStdout()
				switch {
				case notifications:
					return showNotifications(ctx, out, ledger, limit)
				case runID != "":
					return showRun(ctx, out, ledger, runID, failedOnly)
				default:
					return showRuns(ctx, out, ledger, limit)
				}
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the sites and entity outcomes of one run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs or notifications to list")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "with --run, only show failed entities")
	cmd.Flags().BoolVar(&notifications, "notifications", false, "list notifications instead of runs")
	cmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "run ledger database")

	cmd.AddCommand(newHistoryPruneCommand(&ledgerPath))

	return cmd
}

func newHistoryPruneCommand(ledgerPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		Example: `  # Keep the last 30 days
  empire history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withLedger(cmd, *ledgerPath, func(ctx context.Context, ledger *stores.SQLiteStore) error {
				deleted, err := ledger.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d run(s)\n", markOK, deleted)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the runs to delete")

	return cmd
}

func withLedger(cmd *cobra.Command, ledgerPath string, fn func(context.Context, *stores.SQLiteStore) error) error {
	rt, err := loadRuntime(func(cfg *config.Config) {
		if cmd.Flags().Changed("ledger") {
			cfg.Ledger.Path = ledgerPath
		}
	})
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	ledger, err := rt.openLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	if ledger == nil {
		return errors.New("the run ledger is disabled (ledger.path is empty)")
	}
	defer ledger.Close()

	return fn(ctx, ledger)
}

func showRuns(ctx context.Context, out io.Writer, ledger stores.Store, limit int) error {
	runs, err := ledger.ListRuns(ctx, limit, 0)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(run.Status),
			strconv.Itoa(len(run.Sites)),
			strconv.Itoa(run.Created),
			strconv.Itoa(run.Existing),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.FailedSites),
			duration,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Run", "Started", "Status", "Sites", "Created", "Existing", "Failed", "Failed Sites", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func showRun(ctx context.Context, out io.Writer, ledger stores.Store, runID string, failedOnly bool) error {
	run, err := ledger.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	sites, err := ledger.ListRunSites(ctx, runID)
	if err != nil {
		return err
	}
	var filter *engine.Outcome
	if failedOnly {
		failed := engine.OutcomeFailed
		filter = &failed
	}
	outcomes, err := ledger.ListEntityOutcomes(ctx, runID, filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, map[string]interface{}{
			"run":      run,
			"sites":    sites,
			"outcomes": outcomes,
		})
	}

	fmt.Fprintf(out, "Run %s (%s), started %s\n", run.ID, run.Status, run.StartedAt.Local().Format(time.RFC3339))

	siteRows := make([][]string, 0, len(sites))
	for _, site := range sites {
		id, note := "-", ""
		if site.SiteID != nil {
			id = strconv.FormatInt(*site.SiteID, 10)
		}
		switch {
		case site.Error != nil:
			note = markFail + " " + *site.Error
		case site.FixtureError != nil:
			note = markFail + " " + *site.FixtureError
		case len(site.Notices) > 0:
			note = markWarn + " " + site.Notices[0]
		}
		siteRows = append(siteRows, []string{site.Site, id, string(site.Status), note})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Site", "ID", "Status", "Notes"},
		siteRows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	))

	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No entity outcomes")
		return nil
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		id, errMsg := "-", ""
		if o.RemoteID != nil {
			id = strconv.FormatInt(*o.RemoteID, 10)
		}
		if o.Error != nil {
			errMsg = *o.Error
			if o.ErrorClass != nil {
				errMsg = *o.ErrorClass + ": " + errMsg
			}
		}
		rows = append(rows, []string{o.Site, string(o.Kind), o.Slug, outcomeMark(o.Outcome), id, errMsg})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Site", "Kind", "Key", "Outcome", "ID", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func showNotifications(ctx context.Context, out io.Writer, ledger stores.Store, limit int) error {
	notes, err := ledger.ListNotifications(ctx, limit, 0)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, notes)
	}
	if len(notes) == 0 {
		fmt.Fprintln(out, "No notifications recorded")
		return nil
	}

	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		site := n.Site
		if site == "" {
			site = "(all sites)"
		}
		errMsg := ""
		if n.Error != nil {
			errMsg = *n.Error
		}
		rows = append(rows, []string{
			n.SentAt.Local().Format("2006-01-02 15:04:05"),
			site,
			strconv.Itoa(n.EventCount),
			string(n.Status),
			errMsg,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Sent", "Site", "Events", "Status", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func outcomeMark(o engine.Outcome) string {
	if o == engine.OutcomeFailed {
		return markFail + " " + string(o)
	}
	return markOK + " " + string(o)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
