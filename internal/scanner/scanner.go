// Package scanner discovers candidate export files under a root tree.
// A candidate is a finalized, processed export build: a filename carrying
// the literal build tag followed by .xml or .XML. The file's path (never
// its content) also determines its access classification.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpubarchive/opasload/internal/pepxml"
)

// BuildTag marks a finalized export build in the filename.
const BuildTag = "bEXP_ARCH1"

var (
	buildFilePattern      = regexp.MustCompile(`^(.*)\(` + BuildTag + `\)\.(xml|XML)$`)
	classificationPattern = regexp.MustCompile(`(?i)pep(current|archive|future|free|offsite)`)
	trailingParenPattern  = regexp.MustCompile(`\(.*\)$`)
)

// FileInfo describes one discovered candidate file.
type FileInfo struct {
	Path           string // absolute path
	Base           string // file name
	ArtID          string // canonical id: filename sans build tag, upper-cased
	Size           int64
	ModTime        time.Time
	Classification pepxml.Classification
}

// Result is one streamed discovery outcome.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// Root is the directory to walk or a single .xml file.
	Root string
	// SingleFile treats Root as one file regardless of naming.
	SingleFile bool
	// Workers is the number of concurrent stat/classify workers (0 = NumCPU).
	Workers int
}

// Scan walks the root and streams candidate files. Classification and
// stat run across a small worker pool; there is no shared mutable state
// between workers. The channel closes when discovery completes.
func Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root path: %w", err)
	}

	if opts.SingleFile || !info.IsDir() {
		results := make(chan Result, 1)
		fi, err := describe(root)
		if err != nil {
			results <- Result{Err: err}
		} else {
			results <- Result{File: fi}
		}
		close(results)
		return results, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths := make(chan string, workers*4)
	results := make(chan Result, workers*4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("walk_error", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() || !buildFilePattern.MatchString(d.Name()) {
				return nil
			}
			select {
			case paths <- path:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range paths {
				fi, err := describe(path)
				res := Result{File: fi, Err: err}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		if err := g.Wait(); err != nil && err != context.Canceled {
			results <- Result{Err: err}
		}
		close(results)
	}()

	return results, nil
}

// describe stats and classifies one candidate path.
func describe(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	base := filepath.Base(path)
	return &FileInfo{
		Path:           path,
		Base:           base,
		ArtID:          ArtIDFromName(base),
		Size:           st.Size(),
		ModTime:        st.ModTime(),
		Classification: Classify(path),
	}, nil
}

// ArtIDFromName derives the canonical document id from a file name: the
// name sans the build-tag parenthetical and extension, upper-cased.
func ArtIDFromName(base string) string {
	name := base[:len(base)-len(filepath.Ext(base))]
	if i := trailingParenPattern.FindStringIndex(name); i != nil {
		name = name[:i[0]]
	}
	return strings.ToUpper(strings.TrimSpace(name))
}

// Classify derives the access classification from a path token. Absence
// of a recognizable token is a warning, not an error.
func Classify(path string) pepxml.Classification {
	m := classificationPattern.FindStringSubmatch(path)
	if m == nil {
		slog.Warn("classification_unknown", slog.String("path", path))
		return pepxml.ClassUnknown
	}
	return pepxml.Classification(strings.ToLower(m[1]))
}
