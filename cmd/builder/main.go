// Command builder runs the index build pipeline from the command line and
// inspects the resulting artifacts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/build"
	"github.com/lunate/websearch/pkg/config"
	"github.com/lunate/websearch/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "builder",
		Usage: "build and inspect the search index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				EnvVars: []string{"WS_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "index the corpus and write all serve-phase artifacts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "corpus", Usage: "override the corpus directory"},
					&cli.IntFlag{Name: "threshold", Usage: "override the offload threshold"},
					&cli.IntFlag{Name: "workers", Usage: "override the extraction worker count"},
				},
				Action: runBuild,
			},
			{
				Name:   "status",
				Usage:  "print the build status marker",
				Action: runStatus,
			},
			{
				Name:   "report",
				Usage:  "summarize the built index",
				Action: runReport,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, "text")
	return cfg, nil
}

func runBuild(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	corpusDir := cfg.Corpus.Dir
	if c.IsSet("corpus") {
		corpusDir = c.String("corpus")
	}
	opts := build.Options{
		OffloadThreshold: cfg.Index.OffloadThreshold,
		Workers:          cfg.Index.Workers,
	}
	if c.IsSet("threshold") {
		opts.OffloadThreshold = c.Int("threshold")
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	layout := artifacts.Layout{Dir: cfg.Index.ArtifactsDir}
	report, err := build.Run(ctx, layout, corpusDir, opts)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	layout := artifacts.Layout{Dir: cfg.Index.ArtifactsDir}
	status, err := layout.LoadStatus()
	if err != nil {
		return err
	}
	return printJSON(status)
}

func runReport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	layout := artifacts.Layout{Dir: cfg.Index.ArtifactsDir}
	status, err := layout.LoadStatus()
	if err != nil {
		return err
	}
	if !status.Completed {
		return fmt.Errorf("no completed build in %s", cfg.Index.ArtifactsDir)
	}
	urls, err := layout.LoadURLTable()
	if err != nil {
		return err
	}
	offsets, err := layout.LoadOffsets()
	if err != nil {
		return err
	}
	info, err := os.Stat(layout.FinalIndex())
	if err != nil {
		return fmt.Errorf("final index: %w", err)
	}
	return printJSON(map[string]any{
		"documents":        len(urls),
		"unique_terms":     len(offsets),
		"index_size_bytes": info.Size(),
		"last_run":         status.LastRun,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
