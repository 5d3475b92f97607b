package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brandmesh/pipeline"
)

// PipelineCmd returns the pipeline command.
func PipelineCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the competitor price pipeline",
	}

	cmd.AddCommand(pipelineRunCmd(version))
	cmd.AddCommand(pipelineStatusCmd(version))

	return cmd
}

func pipelineRunCmd(version string) *cobra.Command {
	var (
		tenantID    string
		urls        []string
		maxURLs     int
		backend     string
		catalogFile string
		menusFile   string
		tieBand     float64
		concurrency int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Find, scrape and analyze competitor menus",
		Long: `Run the finder, scraper and analyzer for a tenant. Overpriced products
raise pricing alerts in the marketing agent's memory.

Examples:
  brandmesh pipeline run "denver dispensary flower prices" --tenant acme
  brandmesh pipeline run "" --tenant acme --url https://shop.example/menu.json --max-urls 5
  brandmesh pipeline run "" --tenant acme --menus menus.json --catalog catalog.json --url https://green.example/menu`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.Request{TenantID: tenantID, ManualURLs: urls, MaxURLs: maxURLs}
			if len(args) == 1 {
				req.Query = args[0]
			}

			var catalog pipeline.Catalog
			if catalogFile != "" {
				var prices map[string]float64
				if err := readJSON(catalogFile, &prices); err != nil {
					return err
				}
				catalog = pipeline.NewStaticCatalog(prices)
			}

			var static []pipeline.Backend
			if menusFile != "" {
				var menus map[string]pipeline.CompetitorSnapshot
				if err := readJSON(menusFile, &menus); err != nil {
					return err
				}
				static = append(static, pipeline.NewStaticBackend("static", menus))
			}

			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				r, err := app.Runner(ctx, tenantID)
				if err != nil {
					return err
				}

				p, err := app.Pipeline(ctx, tenantID, r, catalog, static...)
				if err != nil {
					return err
				}

				st := p.Run(ctx, req, pipeline.Overrides{
					ScraperBackend: backend,
					TieBand:        tieBand,
					Concurrency:    concurrency,
				})

				if asJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}

				printState(cmd, st)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "manual url list; skips discovery")
	cmd.Flags().IntVar(&maxURLs, "max-urls", 0, "cap on discovered urls")
	cmd.Flags().StringVar(&backend, "backend", pipeline.BackendAuto, "scraper backend")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "JSON file of our product prices; defaults to the stored catalog")
	cmd.Flags().StringVar(&menusFile, "menus", "", "JSON file of captured menus keyed by url")
	cmd.Flags().Float64Var(&tieBand, "tie-band", 0, "parity band as a fraction, e.g. 0.02")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel scrapes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final state as JSON")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func pipelineStatusCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print a persisted pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, app *App) error {
				p := pipeline.New(nil, nil, nil, func(o *pipeline.Options) { o.Store = app.Store })

				st, err := p.Load(ctx, args[0])
				if err != nil {
					return err
				}

				printState(cmd, st)
				return nil
			})
		},
	}
}

func printState(cmd *cobra.Command, st pipeline.State) {
	out := cmd.OutOrStdout()

	if st.Stage == pipeline.StageError {
		fail(out, "run %s failed (%d%%)", st.RequestID, pipeline.Progress(st))
	} else {
		ok(out, "run %s %s (%d%%)", st.RequestID, st.Stage, pipeline.Progress(st))
	}

	for _, e := range st.Errors {
		fail(out, "%s: %s", e.Stage, e.Message)
	}

	if f := st.FinderResult; f != nil {
		fmt.Fprintf(out, "  urls:     %d of %d discovered\n", len(f.URLs), f.Discovered)
	}

	if s := st.ScraperResult; s != nil {
		fmt.Fprintf(out, "  scraped:  %d ok, %d failed\n", s.Succeeded, s.Failed)
	}

	if a := st.AnalyzerResult; a != nil {
		fmt.Fprintf(out, "  insights: %d underpriced, %d overpriced, %d parity, %d new\n",
			a.Counts[pipeline.VerdictUnderpriced], a.Counts[pipeline.VerdictOverpriced],
			a.Counts[pipeline.VerdictParity], a.Counts[pipeline.VerdictNewProduct])
		fmt.Fprintf(out, "  alerts:   %d sent\n", a.AlertsSent)

		for _, e := range a.AlertErrors {
			warn(out, "alert: %s", e)
		}
	}
}
