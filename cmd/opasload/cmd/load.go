package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openpubarchive/opasload/internal/config"
	"github.com/openpubarchive/opasload/internal/logging"
	"github.com/openpubarchive/opasload/internal/pipeline"
	"github.com/openpubarchive/opasload/internal/watcher"
)

func newLoadCmd() *cobra.Command {
	var (
		rootPath    string
		dataDir     string
		docsSink    bool
		biblioSink  bool
		force       bool
		reset       bool
		beforeStr   string
		afterStr    string
		commitLimit int
		dryRun      bool
		watch       bool
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load source documents into the search engine and database",
		Long: `Load walks the root path for compiled XML files, decides which are
new or changed, and writes them to the enabled sinks. A single .xml
file as root path processes exactly that file.

Only configuration errors fail the command; per-file parse errors are
logged, counted and reported in the summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("root") {
				cfg.RootPath = rootPath
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("docs") {
				cfg.DocsSink = docsSink
			}
			if cmd.Flags().Changed("biblio") {
				cfg.BiblioSink = biblioSink
			}
			if cmd.Flags().Changed("commit-limit") {
				cfg.CommitLimit = commitLimit
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			cfg.ForceRebuild = cfg.ForceRebuild || force
			cfg.Reset = cfg.Reset || reset
			cfg.DryRun = cfg.DryRun || dryRun
			cfg.Watch = cfg.Watch || watch

			if beforeStr != "" {
				t, err := dateparse.ParseAny(beforeStr)
				if err != nil {
					return fmt.Errorf("invalid --before value %q: %w", beforeStr, err)
				}
				cfg.Before = t
			}
			if afterStr != "" {
				t, err := dateparse.ParseAny(afterStr)
				if err != nil {
					return fmt.Errorf("invalid --after value %q: %w", afterStr, err)
				}
				cfg.After = t
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			return runLoad(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&rootPath, "root", "d", ".", "Root directory to walk, or a single .xml file")
	cmd.Flags().StringVar(&dataDir, "data-dir", ".opasload", "Directory for indexes, database and logs")
	cmd.Flags().BoolVar(&docsSink, "docs", true, "Write to the full-text and author indexes")
	cmd.Flags().BoolVar(&biblioSink, "biblio", true, "Write to the relational bibliography sink")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess every file regardless of change detection")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear indexes and load state before processing")
	cmd.Flags().StringVar(&beforeStr, "before", "", "Only process files modified before this date")
	cmd.Flags().StringVar(&afterStr, "after", "", "Only process files modified after this date")
	cmd.Flags().IntVar(&commitLimit, "commit-limit", config.DefaultCommitLimit, "Documents per index commit batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide and report but write nothing")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and reload on filesystem changes")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")

	return cmd
}

func runLoad(ctx context.Context, cfg config.Run) error {
	logCfg := logging.DefaultConfig(cfg.DataDir)
	logCfg.Level = cfg.LogLevel
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg, logger, progressReporter())
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	sum, err := p.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(sum)

	if !cfg.Watch {
		return nil
	}
	return watchLoop(ctx, cfg, logger, p)
}

// watchLoop reruns the pipeline whenever the source tree settles after a
// burst of changes. Change detection makes each rerun incremental.
func watchLoop(ctx context.Context, cfg config.Run, logger *slog.Logger, p *pipeline.Pipeline) error {
	w, err := watcher.New(cfg.RootPath, watcher.DefaultQuietWindow, logger)
	if err != nil {
		return fmt.Errorf("failed to start watch mode: %w", err)
	}
	defer func() { _ = w.Close() }()

	go func() { _ = w.Run(ctx) }()
	fmt.Fprintln(os.Stderr, "watching for changes, ctrl-c to stop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Triggers():
			sum, err := p.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("watch_pass_failed", slog.String("error", err.Error()))
				continue
			}
			printSummary(sum)
		}
	}
}

// progressReporter writes in-place progress when stderr is a terminal
// and stays silent otherwise, so piped and cron runs log cleanly.
func progressReporter() pipeline.Progress {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return nil
	}
	return func(done, total int, artID string) {
		fmt.Fprintf(os.Stderr, "\r[%d/%d] %-28s", done, total, artID)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printSummary(sum pipeline.Summary) {
	fmt.Printf("discovered %d, skipped %d, processed %d, parse errors %d, references %d in %s\n",
		sum.Discovered, sum.Skipped, sum.Processed, sum.ParseErrors,
		sum.RefsWritten, sum.Elapsed.Round(time.Millisecond))
}
