package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/pipeline"
)

// BrandCmd returns the brand command.
func BrandCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brand",
		Short: "Manage brand memory and catalogs",
	}

	cmd.AddCommand(brandPutCmd(version))
	cmd.AddCommand(brandShowCmd(version))
	cmd.AddCommand(brandCatalogCmd(version))

	return cmd
}

func brandPutCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "put <brand.json>",
		Short: "Validate and store brand memory from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var brand core.BrandDomainMemory
			if err := readJSON(args[0], &brand); err != nil {
				return err
			}

			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				v, err := app.Repo.SaveBrand(ctx, brand)
				if err != nil {
					return err
				}

				ok(cmd.OutOrStdout(), "brand %s stored (version %d)", brand.BrandID, v)
				return nil
			})
		},
	}
}

func brandShowCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <brand-id>",
		Short: "Print brand memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				brand, _, err := app.Repo.LoadBrand(ctx, args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), brand)
			})
		},
	}
}

func brandCatalogCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <brand-id> <catalog.json>",
		Short: "Store the brand's own product prices used by the price analyzer",
		Long: `Store the brand catalog. The file maps product names to prices:

  {"Blue Dream 3.5g": 40, "OG Kush 1g": 12}`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prices map[string]float64
			if err := readJSON(args[1], &prices); err != nil {
				return err
			}

			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				if err := pipeline.SaveCatalog(ctx, app.Store, args[0], prices); err != nil {
					return err
				}

				ok(cmd.OutOrStdout(), "catalog for %s stored (%d products)", args[0], len(prices))
				return nil
			})
		},
	}
}
