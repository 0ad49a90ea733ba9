// Package pipeline drives one load run end to end: discover candidate
// files, decide which changed, transform each into search and relational
// records, and commit in batches. Per-file failures are logged and
// counted; only setup failures abort a run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/openpubarchive/opasload/internal/catalog"
	"github.com/openpubarchive/opasload/internal/centraldb"
	"github.com/openpubarchive/opasload/internal/cited"
	"github.com/openpubarchive/opasload/internal/config"
	"github.com/openpubarchive/opasload/internal/pepxml"
	"github.com/openpubarchive/opasload/internal/scanner"
	"github.com/openpubarchive/opasload/internal/store"
	"github.com/openpubarchive/opasload/internal/tracker"
)

// Summary is the outcome of one run, reported whether or not individual
// files failed.
type Summary struct {
	RunID       string
	Discovered  int
	Skipped     int
	Processed   int
	ParseErrors int
	RefsWritten int
	Elapsed     time.Duration
}

// Progress receives one call per decided file, for interactive display.
// Nil disables reporting.
type Progress func(done, total int, artID string)

// Pipeline holds the run dependencies. Construct with New, run with Run,
// Close when done.
type Pipeline struct {
	cfg      config.Run
	logger   *slog.Logger
	progress Progress

	writer *store.Writer
	db     *centraldb.DB

	catalog *catalog.Catalog
	cited   *cited.Table
}

// New opens the sinks and loads the run preconditions. The source
// catalog and citation table degrade to empty on failure: the run
// proceeds with reduced enrichment rather than aborting. A dry run
// opens nothing and creates nothing on disk.
func New(ctx context.Context, cfg config.Run, logger *slog.Logger, progress Progress) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{cfg: cfg, logger: logger, progress: progress}

	if cfg.DryRun {
		p.catalog = catalog.Empty()
		p.cited = cited.Empty()
		return p, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.DocsSink {
		w, err := store.Open(cfg.DataDir, cfg.CommitLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		p.writer = w
	}

	db, err := centraldb.Open(cfg.DatabasePath(), logger)
	if err != nil {
		p.closeSinks()
		return nil, fmt.Errorf("failed to open central database: %w", err)
	}
	p.db = db

	p.catalog, err = catalog.Load(ctx, db.Conn())
	if err != nil {
		logger.Error("source_catalog_unavailable", slog.String("error", err.Error()))
		p.catalog = catalog.Empty()
	}
	p.cited, err = cited.Load(ctx, db.Conn())
	if err != nil {
		logger.Error("citation_table_unavailable", slog.String("error", err.Error()))
		p.cited = cited.Empty()
	}
	return p, nil
}

// Run executes one full pass over the root path.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	logger := p.logger.With(slog.String("run_id", sum.RunID))

	logger.Info("run_started",
		slog.String("root", p.cfg.RootPath),
		slog.Bool("dry_run", p.cfg.DryRun),
		slog.Bool("force", p.cfg.ForceRebuild))

	if p.cfg.Reset && !p.cfg.DryRun {
		if err := p.reset(ctx, logger); err != nil {
			return sum, err
		}
	}

	results, err := scanner.Scan(ctx, scanner.Options{
		Root:       p.cfg.RootPath,
		SingleFile: p.cfg.SingleFileMode(),
	})
	if err != nil {
		return sum, fmt.Errorf("failed to start scan: %w", err)
	}

	track := tracker.New(p.indexState(), tracker.Options{
		ForceRebuild: p.cfg.ForceRebuild,
		Before:       p.cfg.Before,
		After:        p.cfg.After,
	}, logger)

	var selected []scanner.FileInfo
	for res := range results {
		if res.Err != nil {
			logger.Warn("scan_entry_failed", slog.String("error", res.Err.Error()))
			continue
		}
		sum.Discovered++
		if track.Decide(*res.File) {
			selected = append(selected, *res.File)
		} else {
			sum.Skipped++
		}
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	for i, file := range selected {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if p.progress != nil {
			p.progress(i+1, len(selected), file.ArtID)
		}
		refs, err := p.processFile(ctx, logger, file)
		if err != nil {
			sum.ParseErrors++
			logger.Error("file_processing_failed",
				slog.String("file", file.Base),
				slog.String("error", err.Error()))
			continue
		}
		sum.Processed++
		sum.RefsWritten += refs
	}

	if p.writer != nil {
		if err := p.writer.FinalCommit(); err != nil {
			logger.Error("final_commit_failed", slog.String("error", err.Error()))
		}
	}

	sum.Elapsed = time.Since(start)
	logger.Info("run_completed",
		slog.Int("discovered", sum.Discovered),
		slog.Int("skipped", sum.Skipped),
		slog.Int("processed", sum.Processed),
		slog.Int("parse_errors", sum.ParseErrors),
		slog.Int("refs_written", sum.RefsWritten),
		slog.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

// processFile transforms one source file and submits it to the enabled
// sinks. Returns the number of bibliography entries written.
func (p *Pipeline) processFile(ctx context.Context, logger *slog.Logger, file scanner.FileInfo) (int, error) {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	doc, err := pepxml.Parse(string(content))
	if err != nil {
		return 0, fmt.Errorf("failed to parse xml: %w", err)
	}

	art, err := pepxml.NewArticle(doc, file.ArtID, p.catalog, logger)
	if err != nil {
		return 0, err
	}
	art.FileName = file.Base
	art.FileSize = file.Size
	art.FileLastModified = file.ModTime
	art.FileClassification = file.Classification

	refs := pepxml.ParseReferences(doc, art)
	children := pepxml.BuildChildren(doc, art)
	children = pepxml.Redact(art, children, refs)
	art.MergeCitations(p.cited)
	authors := pepxml.BuildAuthorRecords(doc, art)

	if p.cfg.DryRun {
		logger.Info("dry_run_decided", slog.String("art_id", art.ID))
		return 0, nil
	}

	if p.writer != nil {
		if err := p.writer.AddArticle(art, children); err != nil {
			return 0, err
		}
		if err := p.writer.AddAuthors(art, authors); err != nil {
			return 0, err
		}
	}

	written := 0
	if p.cfg.BiblioSink {
		// drop the previous version first so a shrunk bibliography leaves
		// no stale reference rows behind
		if err := p.db.DeleteArticle(ctx, art.ID); err != nil {
			logger.Warn("stale_rows_delete_failed",
				slog.String("art_id", art.ID),
				slog.String("error", err.Error()))
		}
		if err := p.db.UpsertArticle(ctx, art); err != nil {
			logger.Warn("article_row_failed",
				slog.String("art_id", art.ID),
				slog.String("error", err.Error()))
		}
		written = p.db.WriteReferences(ctx, refs)
	}
	return written, nil
}

func (p *Pipeline) reset(ctx context.Context, logger *slog.Logger) error {
	if p.writer != nil {
		if err := p.writer.Reset(); err != nil {
			return fmt.Errorf("failed to reset indexes: %w", err)
		}
	}
	if p.cfg.BiblioSink {
		if err := p.db.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}
	logger.Info("state_reset")
	return nil
}

// indexState adapts the writer for change detection. With the docs sink
// disabled there is no prior state, so every candidate is fresh.
func (p *Pipeline) indexState() tracker.IndexState {
	if p.writer != nil {
		return p.writer
	}
	return noState{}
}

type noState struct{}

func (noState) LastModified(string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (p *Pipeline) closeSinks() {
	if p.writer != nil {
		_ = p.writer.Close()
	}
	if p.db != nil {
		_ = p.db.Close()
	}
}

// Close releases the sinks and the data-directory lock.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			firstErr = err
		}
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
