// Package cli implements the brandmesh command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/config"
)

// RootCmd returns the brandmesh root command.
func RootCmd(version string) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:     "brandmesh",
		Short:   "Autonomous agent runtime for cannabis brands",
		Version: version,
		Long: `brandmesh runs brand agents (competitive intel, marketing, compliance,
operations) against persistent memory, moves conversation threads between
them and runs the competitor price pipeline.

Configuration comes from BRANDMESH_* environment variables, optionally
loaded from a .env file, and the YAML file named by BRANDMESH_CONFIG.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cmd.AddCommand(BrandCmd(version))
	cmd.AddCommand(AgentCmd(version))
	cmd.AddCommand(PipelineCmd(version))
	cmd.AddCommand(HandoffCmd(version))
	cmd.AddCommand(TokenCmd(version))
	cmd.AddCommand(SettingsCmd(version))

	return cmd
}

// withApp loads configuration, wires an App and closes it after fn.
func withApp(cmd *cobra.Command, version string, fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, cfg, version)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := app.Close(shutdownCtx); err != nil {
			app.Logger.Warn("cli.close.failed", "error", err)
		}
	}()

	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("✓"), fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("!"), fmt.Sprintf(format, args...))
}

func fail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("✗"), fmt.Sprintf(format, args...))
}
