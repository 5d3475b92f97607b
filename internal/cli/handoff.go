package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/handoff"
)

// HandoffCmd returns the handoff command.
func HandoffCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Create threads and move them between agents",
		Long: `Create conversation threads and move ownership between agents.

Calls authenticate with --token (or BRANDMESH_TOKEN). Without a token the
CLI acts as a local operator for --brand.`,
	}

	cmd.AddCommand(handoffCreateCmd(version))
	cmd.AddCommand(handoffToCmd(version))
	cmd.AddCommand(handoffHistoryCmd(version))

	return cmd
}

type handoffFlags struct {
	brandID string
	token   string
}

func (f *handoffFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.brandID, "brand", "", "brand id")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (defaults to BRANDMESH_TOKEN)")
}

func (f *handoffFlags) authenticate(ctx context.Context, app *App) (context.Context, error) {
	token := f.token
	if token == "" {
		token = envToken()
	}

	return app.Principal(ctx, token, f.brandID)
}

func handoffCreateCmd(version string) *cobra.Command {
	var flags handoffFlags

	cmd := &cobra.Command{
		Use:   "create <thread-id> <primary-agent>",
		Short: "Create a thread owned by an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.brandID == "" {
				return errors.New("--brand is required")
			}

			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				thread, err := app.Coordinator.CreateThread(ctx, flags.brandID, args[0], args[1])
				if err != nil {
					return err
				}

				ok(cmd.OutOrStdout(), "thread %s owned by %s", thread.ID, thread.PrimaryAgent)
				return nil
			})
		},
	}

	flags.register(cmd)

	return cmd
}

func handoffToCmd(version string) *cobra.Command {
	var flags handoffFlags
	var reason, messageID string

	cmd := &cobra.Command{
		Use:   "to <thread-id> <agent>",
		Short: "Hand a thread to another agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				ctx, err := flags.authenticate(ctx, app)
				if err != nil {
					return err
				}

				res := app.Coordinator.HandoffToAgent(ctx, handoff.Input{
					ThreadID:  args[0],
					ToAgent:   args[1],
					Reason:    reason,
					MessageID: messageID,
				})
				if !res.Success {
					return errors.New(res.Error)
				}

				ok(cmd.OutOrStdout(), "thread %s: %s -> %s", args[0], res.Handoff.FromAgent, res.Handoff.ToAgent)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&reason, "reason", "", "why the thread moves")
	cmd.Flags().StringVar(&messageID, "message", "", "message that triggered the handoff")

	return cmd
}

func handoffHistoryCmd(version string) *cobra.Command {
	var flags handoffFlags

	cmd := &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Print a thread's handoff history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				ctx, err := flags.authenticate(ctx, app)
				if err != nil {
					return err
				}

				res := app.Coordinator.GetHandoffHistory(ctx, args[0])
				if !res.Success {
					return errors.New(res.Error)
				}

				out := cmd.OutOrStdout()
				if len(res.Handoffs) == 0 {
					warn(out, "thread %s has no handoffs", args[0])
				}

				for _, h := range res.Handoffs {
					fmt.Fprintf(out, "%s  %s -> %s  %s\n", h.Timestamp.Format("2006-01-02 15:04:05"), h.FromAgent, h.ToAgent, h.Reason)
				}

				return nil
			})
		},
	}

	flags.register(cmd)

	return cmd
}
