package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/justinhartfield/protein-empire-cms/pkg/config"
	"github.com/justinhartfield/protein-empire-cms/pkg/fixtures"
)

func newCatalogCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print and validate the site catalog",
		Example: `  # Show the built-in catalog
  empire catalog

  # Validate a custom catalog
  empire catalog --catalog ./sites.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := catalogPath
			if !cmd.Flags().Changed("catalog") {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				path = cfg.Fixtures.Catalog
			}

			catalog, err := fixtures.LoadCatalog(path)
			if err != nil {
				return err
			}
			if err := catalog.Validate(cmd.Context(), config.NewSchemaRegistry()); err != nil {
				return fmt.Errorf("invalid site catalog: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, catalog)
			}

			siteRows := make([][]string, 0, len(catalog.Sites))
			for _, s := range catalog.Sites {
				siteRows = append(siteRows, []string{s.Domain, s.Name, s.FoodType, s.BrandColor, strconv.FormatBool(s.IsActive)})
			}
			fmt.Fprint(out, renderTable([]string{"Domain", "Name", "Food", "Color", "Active"}, siteRows, nil))

			catRows := make([][]string, 0, len(catalog.Categories))
			for _, c := range catalog.Categories {
				catRows = append(catRows, []string{c.Slug, c.Name, c.Description})
			}
			fmt.Fprint(out, renderTable([]string{"Slug", "Name", "Description"}, catRows, nil))

			fmt.Fprintf(out, "%s %d sites, %d categories\n", markOK, len(catalog.Sites), len(catalog.Categories))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "site catalog file (default built-in)")

	return cmd
}
