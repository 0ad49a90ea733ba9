// Package tracker decides which discovered files actually need
// processing. Change detection compares the file's modification time
// against the timestamp recorded in the search engine on the previous
// run, so no side-car state file is needed.
package tracker

import (
	"log/slog"
	"time"

	"github.com/openpubarchive/opasload/internal/scanner"
)

// IndexState answers what the search engine already holds for an id.
// ok is false when no record exists.
type IndexState interface {
	LastModified(artID string) (time.Time, bool, error)
}

// Options selects which candidates qualify. Setting a date bound
// replaces change detection entirely.
type Options struct {
	ForceRebuild bool
	Before       time.Time // process only files modified before this; zero means no bound
	After        time.Time // process only files modified after this; zero means no bound
}

// Tracker applies date filters and change detection to discovered files.
type Tracker struct {
	state  IndexState
	opts   Options
	logger *slog.Logger
}

func New(state IndexState, opts Options, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{state: state, opts: opts, logger: logger}
}

// Decide reports whether the file should be processed. Force bypasses
// every comparison. An explicit date filter, when set, is the sole
// criterion: the file qualifies iff its modification time satisfies the
// bounds, and the index is not consulted. Only when neither filter is
// set does change detection against the index apply. A lookup failure
// fails open: the file is reprocessed rather than silently skipped.
func (t *Tracker) Decide(file scanner.FileInfo) bool {
	if t.opts.ForceRebuild {
		return true
	}
	if !t.opts.Before.IsZero() || !t.opts.After.IsZero() {
		if !t.opts.Before.IsZero() && !file.ModTime.Before(t.opts.Before) {
			return false
		}
		if !t.opts.After.IsZero() && !file.ModTime.After(t.opts.After) {
			return false
		}
		return true
	}

	stored, ok, err := t.state.LastModified(file.ArtID)
	if err != nil {
		t.logger.Warn("change_lookup_failed",
			slog.String("art_id", file.ArtID),
			slog.String("error", err.Error()))
		return true
	}
	if !ok {
		return true
	}
	// Sub-second precision is lost in the stored form; truncate before
	// comparing so an unchanged file is not seen as newer.
	return file.ModTime.Truncate(time.Second).After(stored)
}
