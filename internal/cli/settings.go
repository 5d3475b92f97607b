package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/settings"
)

// SettingsCmd returns the settings command.
func SettingsCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-tenant model routing",
	}

	cmd.AddCommand(settingsGetCmd(version))
	cmd.AddCommand(settingsSetCmd(version))

	return cmd
}

func settingsGetCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Print the effective model routing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				r, err := app.Routing(ctx, args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), r)
			})
		},
	}
}

func settingsSetCmd(version string) *cobra.Command {
	var toolModel, reasoningModel, effort string

	cmd := &cobra.Command{
		Use:   "set <tenant-id>",
		Short: "Store model routing for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := model.ParseEffort(effort)
			if err != nil {
				return err
			}

			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				r := settings.ModelRouting{ToolModel: toolModel, ReasoningModel: reasoningModel, Effort: e}
				if err := settings.Save(ctx, app.Store, args[0], r); err != nil {
					return err
				}

				app.Settings.Invalidate(args[0])
				ok(cmd.OutOrStdout(), "routing for %s stored", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&toolModel, "tool-model", "", "model serving tool-calling requests")
	cmd.Flags().StringVar(&reasoningModel, "reasoning-model", "", "model serving reasoning requests")
	cmd.Flags().StringVar(&effort, "effort", "", "low, medium or high")

	return cmd
}
