package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/notifier"
)

func newNotifyTestCommand() *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send one rebuild notification immediately",
		Long: `Send a single repository dispatch with the configured webhook URL and
token, bypassing the debounce timer. Use it to check credentials.`,
		Example: `  # Trigger a rebuild of every site
  empire notify-test

  # Trigger a rebuild scoped to one site
  empire notify-test --site proteinbars.co`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.close()

			dispatcher := newDispatcher(rt.cfg)
			if !notifier.Enabled(dispatcher) {
				return fmt.Errorf("GITHUB_WEBHOOK_URL and GITHUB_WEBHOOK_TOKEN must be set")
			}

			note := notifier.Notification{Site: site, Timestamp: time.Now(), Events: 1}
			if err := dispatcher.Dispatch(cmd.Context(), note); err != nil {
				return fmt.Errorf("notification failed: %w", err)
			}

			scope := site
			if scope == "" {
				scope = "all sites"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s notification sent (%s)\n", markOK, scope)
			return nil
		},
	}

	cmd.Flags().StringVarP(&site, "site", "s", "", "site domain to scope the rebuild to")

	return cmd
}
