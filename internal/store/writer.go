// Package store submits completed article records to the search engine.
// It owns the two indexes (documents and authors), the exclusive lock on
// the data directory, and the batch commit cycle.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gofrs/flock"

	"github.com/openpubarchive/opasload/internal/pepxml"
)

// Writer writes article and author records to the search engine. One
// article (parent plus its child fragments) is always added as a single
// batch unit; batches are committed every commitLimit articles and once
// more, mandatorily, at end of run.
type Writer struct {
	mu sync.Mutex

	docs    bleve.Index
	authors bleve.Index
	lock    *flock.Flock

	commitLimit int
	pendingDocs *bleve.Batch
	pendingAuth *bleve.Batch
	pending     int
	closed      bool
}

// Open acquires the data-directory lock and opens (or creates) both
// indexes. The lock is held until Close so two runs never interleave
// commits against the same indexes.
func Open(dataDir string, commitLimit int) (*Writer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, "opasload.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("data directory %s is locked by another run", dataDir)
	}

	docs, err := openIndex(filepath.Join(dataDir, "docs.bleve"), docsIndexMapping())
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	authors, err := openIndex(filepath.Join(dataDir, "authors.bleve"), authorsIndexMapping())
	if err != nil {
		_ = docs.Close()
		_ = lock.Unlock()
		return nil, err
	}

	w := &Writer{
		docs:        docs,
		authors:     authors,
		lock:        lock,
		commitLimit: commitLimit,
	}
	w.pendingDocs = docs.NewBatch()
	w.pendingAuth = authors.NewBatch()
	return w, nil
}

func openIndex(path string, im *mapping.IndexMappingImpl) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	return idx, nil
}

// AddArticle stages one article with its child fragments as a nested
// add-or-replace unit. Re-adding the same art_id replaces the previous
// record whole: fragments from an earlier, larger version are deleted in
// the same batch so a shrunk or redacted document leaves nothing behind.
func (w *Writer) AddArticle(art *pepxml.Article, children []pepxml.Child) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	stale, err := w.childIDs(art.ID)
	if err != nil {
		return fmt.Errorf("failed to look up existing fragments of %s: %w", art.ID, err)
	}
	for _, id := range stale {
		w.pendingDocs.Delete(id)
	}

	if err := w.pendingDocs.Index(art.ID, articleDoc(art)); err != nil {
		return fmt.Errorf("failed to stage article %s: %w", art.ID, err)
	}
	for _, child := range children {
		if err := w.pendingDocs.Index(child.ID, childDoc(art, child)); err != nil {
			return fmt.Errorf("failed to stage child %s: %w", child.ID, err)
		}
	}

	w.pending++
	return w.maybeCommitLocked()
}

// AddAuthors stages one flattened record per author of the article.
func (w *Writer) AddAuthors(art *pepxml.Article, recs []pepxml.AuthorRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	for _, rec := range recs {
		if err := w.pendingAuth.Index(rec.ID, authorDoc(art, rec)); err != nil {
			return fmt.Errorf("failed to stage author %s: %w", rec.ID, err)
		}
	}
	return nil
}

// childIDs returns the ids of every committed fragment belonging to the
// parent. The parent record itself is excluded; staging a new version of
// it replaces by id anyway.
func (w *Writer) childIDs(artID string) ([]string, error) {
	q := bleve.NewTermQuery(artID)
	q.SetField(FieldArtID)

	req := bleve.NewSearchRequest(q)
	req.Size = 0
	res, err := w.docs.Search(req)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		return nil, nil
	}

	req = bleve.NewSearchRequest(q)
	req.Size = int(res.Total)
	res, err = w.docs.Search(req)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, hit := range res.Hits {
		if hit.ID != artID {
			ids = append(ids, hit.ID)
		}
	}
	return ids, nil
}

// maybeCommitLocked flushes both batches when the commit threshold is
// reached. Timing is approximate by design; correctness only depends on
// the final commit.
func (w *Writer) maybeCommitLocked() error {
	if w.pending < w.commitLimit {
		return nil
	}
	slog.Info("batch_commit", slog.Int("articles", w.pending))
	return w.commitLocked()
}

func (w *Writer) commitLocked() error {
	if err := w.docs.Batch(w.pendingDocs); err != nil {
		return fmt.Errorf("failed to commit documents batch: %w", err)
	}
	if err := w.authors.Batch(w.pendingAuth); err != nil {
		return fmt.Errorf("failed to commit authors batch: %w", err)
	}
	w.pendingDocs = w.docs.NewBatch()
	w.pendingAuth = w.authors.NewBatch()
	w.pending = 0
	return nil
}

// FinalCommit flushes whatever remains regardless of batch alignment.
// Mandatory at end of run; a failure here is logged by the caller but
// does not revert batches already committed.
func (w *Writer) FinalCommit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return w.commitLocked()
}

// LastModified returns the file modification time recorded for the
// document already in the index, ok=false when no record exists.
func (w *Writer) LastModified(artID string) (time.Time, bool, error) {
	q := bleve.NewDocIDQuery([]string{artID})
	req := bleve.NewSearchRequest(q)
	req.Fields = []string{FieldFileLastModified}

	res, err := w.docs.Search(req)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up %s: %w", artID, err)
	}
	if len(res.Hits) == 0 {
		return time.Time{}, false, nil
	}
	raw, _ := res.Hits[0].Fields[FieldFileLastModified].(string)
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored timestamp for %s unparsable: %w", artID, err)
	}
	return ts, true, nil
}

// DocCount returns the number of records in the documents index.
func (w *Writer) DocCount() (uint64, error) {
	return w.docs.DocCount()
}

// Reset deletes every record from both indexes and commits immediately.
func (w *Writer) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if err := deleteAll(w.docs); err != nil {
		return fmt.Errorf("failed to reset documents index: %w", err)
	}
	if err := deleteAll(w.authors); err != nil {
		return fmt.Errorf("failed to reset authors index: %w", err)
	}
	slog.Info("indexes_reset")
	return nil
}

func deleteAll(idx bleve.Index) error {
	count, err := idx.DocCount()
	if err != nil {
		return err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}
	res, err := idx.Search(req)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	return idx.Batch(batch)
}

// Close releases the data-directory lock and closes both indexes. It
// does not commit; callers must FinalCommit first.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	errDocs := w.docs.Close()
	errAuth := w.authors.Close()
	_ = w.lock.Unlock()
	if errDocs != nil {
		return errDocs
	}
	return errAuth
}
