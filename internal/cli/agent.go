package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/agent"
	"github.com/hupe1980/brandmesh/runner"
)

// AgentCmd returns the agent command.
func AgentCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run agents and inspect their logs",
	}

	cmd.AddCommand(agentRunCmd(version))
	cmd.AddCommand(agentLogsCmd(version))
	cmd.AddCommand(agentMemoryCmd(version))

	return cmd
}

func agentRunCmd(version string) *cobra.Command {
	var brandID, message, threadID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <agent>",
		Short: "Invoke an agent once",
		Long: `Invoke an agent once for a brand. Without --message the agent orients on
its own memory and works on the most pressing target, or idles.

Examples:
  brandmesh agent run intel --brand acme
  brandmesh agent run marketing --brand acme --message "plan a 4/20 promo" --thread t-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				r, err := app.Runner(ctx, brandID)
				if err != nil {
					return err
				}

				inv := runner.Invocation{BrandID: brandID, Agent: args[0], ThreadID: threadID}
				if message != "" {
					inv.Stimulus = &agent.Stimulus{Text: message, From: "cli", ThreadID: threadID}
				}

				report, err := r.Invoke(ctx, inv)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, report)
				}

				printReport(cmd, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "brand id (required)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "user request for the agent")
	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	_ = cmd.MarkFlagRequired("brand")

	return cmd
}

func printReport(cmd *cobra.Command, report runner.Report) {
	out := cmd.OutOrStdout()

	switch {
	case report.Idle():
		warn(out, "%s idle: %s", report.Agent, report.Log.Result)
	case report.Log.Action == "error":
		fail(out, "%s %s: %s", report.Agent, report.Target, report.Log.Result)
	default:
		ok(out, "%s %s: %s", report.Agent, report.Log.Action, report.Log.Result)
	}

	if report.Reply != "" {
		fmt.Fprintf(out, "\n%s\n\n", report.Reply)
	}

	for _, e := range report.Effects {
		if e.Error != "" {
			fail(out, "%s -> %s: %s", e.Kind, e.Target, e.Error)
			continue
		}
		ok(out, "%s -> %s", e.Kind, e.Target)
	}
}

func agentLogsCmd(version string) *cobra.Command {
	var brandID string

	cmd := &cobra.Command{
		Use:   "logs <agent>",
		Short: "Print an agent's log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				entries, err := app.Repo.ListLogs(ctx, brandID, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %-20s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Result)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "brand id (required)")
	_ = cmd.MarkFlagRequired("brand")

	return cmd
}

func agentMemoryCmd(version string) *cobra.Command {
	var brandID string

	cmd := &cobra.Command{
		Use:   "memory <agent>",
		Short: "Print an agent's memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				r, err := app.Runner(ctx, brandID)
				if err != nil {
					return err
				}

				ag, err := r.Agent(args[0])
				if err != nil {
					return err
				}

				mem, _, err := app.Repo.LoadAgent(ctx, brandID, ag.Name(), ag.Kind())
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), mem)
			})
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "brand id (required)")
	_ = cmd.MarkFlagRequired("brand")

	return cmd
}
