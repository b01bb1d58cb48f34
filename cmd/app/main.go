package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carolinacraus/market-state-api/internal/di"
	"github.com/carolinacraus/market-state-api/internal/domain/models"
	"github.com/carolinacraus/market-state-api/internal/services/analytics"
	"github.com/carolinacraus/market-state-api/internal/usecase"
	"github.com/carolinacraus/market-state-api/pkg/config"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "marketstate",
		Short:         "Daily market regime pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	root.AddCommand(serveCmd(), updateCmd(), rebuildCmd(), classifyCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()
			return app.Run(cmd.Context())
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [start] [end]",
		Short: "Append trading days after the last indicator row",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req models.RunRequest
			for i, arg := range args {
				day, ok := util.ParseDay(arg)
				if !ok {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", arg)
				}
				if i == 0 {
					req.Start = day
				} else {
					req.End = day
				}
			}
			if !req.Start.IsZero() && !req.End.IsZero() && req.Start.After(req.End) {
				return fmt.Errorf("start %s is after end %s", args[0], args[1])
			}
			return withPipeline(cmd, func(ctx context.Context, p *usecase.Pipeline) (*models.RunResult, error) {
				return p.Run(ctx, req)
			})
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every panel and ledger from the inception date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, func(ctx context.Context, p *usecase.Pipeline) (*models.RunResult, error) {
				return p.Rebuild(ctx)
			})
		},
	}
}

func classifyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Relabel the whole indicator panel with one classifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, func(ctx context.Context, p *usecase.Pipeline) (*models.RunResult, error) {
				return p.Reclassify(ctx, name)
			})
		},
	}
	cmd.Flags().StringVar(&name, "classifier", "distance", fmt.Sprintf("classifier variant %v", analytics.Names()))
	return cmd
}

// withPipeline wires a pipeline, runs fn and prints its result as JSON.
func withPipeline(cmd *cobra.Command, fn func(context.Context, *usecase.Pipeline) (*models.RunResult, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, cleanup, err := di.InitializePipeline(cfg)
	if err != nil {
		return fmt.Errorf("pipeline initialization failed: %w", err)
	}
	defer cleanup()

	res, err := fn(cmd.Context(), p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
