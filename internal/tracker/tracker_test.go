package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openpubarchive/opasload/internal/scanner"
)

type fakeState struct {
	stored map[string]time.Time
	err    error
}

func (f fakeState) LastModified(artID string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	ts, ok := f.stored[artID]
	return ts, ok, nil
}

func file(artID string, mod time.Time) scanner.FileInfo {
	return scanner.FileInfo{ArtID: artID, ModTime: mod}
}

func TestDecideChangeDetection(t *testing.T) {
	indexed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := fakeState{stored: map[string]time.Time{"A": indexed}}
	tr := New(state, Options{}, nil)

	assert.False(t, tr.Decide(file("A", indexed)), "unchanged file is skipped")
	assert.False(t, tr.Decide(file("A", indexed.Add(500*time.Millisecond))),
		"sub-second drift is not a change")
	assert.True(t, tr.Decide(file("A", indexed.Add(time.Hour))), "newer file is reprocessed")
	assert.True(t, tr.Decide(file("B", indexed)), "unindexed file is fresh")
}

func TestDecideForceRebuild(t *testing.T) {
	indexed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := fakeState{stored: map[string]time.Time{"A": indexed}}
	tr := New(state, Options{ForceRebuild: true}, nil)

	assert.True(t, tr.Decide(file("A", indexed)))
}

func TestDecideDateFilters(t *testing.T) {
	cut := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	state := fakeState{}

	before := New(state, Options{Before: cut}, nil)
	assert.True(t, before.Decide(file("A", cut.Add(-time.Hour))))
	assert.False(t, before.Decide(file("A", cut)))
	assert.False(t, before.Decide(file("A", cut.Add(time.Hour))))

	after := New(state, Options{After: cut}, nil)
	assert.False(t, after.Decide(file("A", cut)))
	assert.True(t, after.Decide(file("A", cut.Add(time.Hour))))

	// force bypasses every comparison, the date filters included
	forced := New(state, Options{ForceRebuild: true, After: cut}, nil)
	assert.True(t, forced.Decide(file("A", cut.Add(-time.Hour))))
}

func TestDecideFilterOverridesIndexState(t *testing.T) {
	cut := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mod := cut.Add(-24 * time.Hour)

	// stored timestamp is newer than the file, so change detection alone
	// would skip it; an explicit filter is the sole criterion instead
	state := fakeState{stored: map[string]time.Time{"A": cut.Add(time.Hour)}}
	tr := New(state, Options{Before: cut}, nil)

	assert.True(t, tr.Decide(file("A", mod)))
}

func TestDecideFailsOpen(t *testing.T) {
	state := fakeState{err: errors.New("index unavailable")}
	tr := New(state, Options{}, nil)

	assert.True(t, tr.Decide(file("A", time.Now())),
		"lookup failure reprocesses rather than silently skipping")
}
