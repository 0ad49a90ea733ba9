package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/openpubarchive/opasload/internal/config"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<pepkbd3 lang="en">
<artinfo id="%s" j="IJP" arttype="ART" doi="10.1516/demo-4821">
<artyear>2001</artyear>
<artvol>82</artvol>
<artpgrg>721-738</artpgrg>
<arttitle>A Title</arttitle>
<artauth><aut authindexid="Smith, John"><nfirst>John</nfirst><nlast>Smith</nlast></aut></artauth>
</artinfo>
<abs><p>Abstract.</p></abs>
<body><p>Body paragraph.</p></body>
<bib><be id="B001"><a>Jones, E.</a> (<y>1987</y>). <t>On dreams.</t> <j>IJP</j></be></bib>
</pepkbd3>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSample(t *testing.T, root, class, artID string) string {
	t.Helper()
	dir := filepath.Join(root, "_PEP"+class, "IJP")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, artID+"(bEXP_ARCH1).xml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(sampleDoc, artID)), 0o644))
	return path
}

func testConfig(t *testing.T, root string) config.Run {
	cfg := config.Default()
	cfg.RootPath = root
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.DocsSink = true
	cfg.BiblioSink = true
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, "Archive", "IJP.082.0721A")
	writeSample(t, root, "Archive", "IJP.082.0741A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	sum, err := p.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Discovered)
	assert.Equal(t, 2, sum.Processed)
	assert.Zero(t, sum.Skipped)
	assert.Zero(t, sum.ParseErrors)
	assert.Equal(t, 2, sum.RefsWritten)
}

func TestRunIsIncremental(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, "Archive", "IJP.082.0721A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	first, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Processed, "unchanged file is skipped on rerun")
	assert.Equal(t, 1, second.Skipped)
}

func TestRunForceRebuild(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, "Archive", "IJP.082.0721A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	cfg.ForceRebuild = true
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Run(ctx)
	require.NoError(t, err)
	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
}

func TestRunCountsParseErrors(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "_PEPArchive")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	bad := filepath.Join(dir, "IJP.099.0001A(bEXP_ARCH1).xml")
	// well-formed XML but no parsable volume
	require.NoError(t, os.WriteFile(bad, []byte(`<pepkbd3><artinfo id="IJP.099.0001A" j="IJP"><artvol>VII</artvol></artinfo></pepkbd3>`), 0o644))

	ctx := context.Background()
	cfg := testConfig(t, root)
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	sum, err := p.Run(ctx)
	require.NoError(t, err, "per-file failures never abort the run")
	assert.Equal(t, 1, sum.ParseErrors)
	assert.Zero(t, sum.Processed)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, "Archive", "IJP.082.0721A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	cfg.DryRun = true
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	sum, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Zero(t, sum.RefsWritten)

	_, err = os.Stat(cfg.DataDir)
	assert.True(t, os.IsNotExist(err), "dry run must leave no data directory behind")
}

func TestRunShrunkBibliographyDropsStaleRows(t *testing.T) {
	root := t.TempDir()
	path := writeSample(t, root, "Archive", "IJP.082.0721A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	cfg.ForceRebuild = true
	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)

	first, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.RefsWritten)

	// rewrite the same article without its bibliography
	doc := fmt.Sprintf(sampleDoc, "IJP.082.0721A")
	start := strings.Index(doc, "<bib>")
	end := strings.Index(doc, "</bib>") + len("</bib>")
	require.NoError(t, os.WriteFile(path, []byte(doc[:start]+doc[end:]), 0o644))

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.RefsWritten)
	require.NoError(t, p.Close())

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var refs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM api_biblioxml WHERE art_id = ?`, "IJP.082.0721A").Scan(&refs))
	assert.Zero(t, refs, "rows from the earlier, larger bibliography must not survive")
}

func TestRunSingleFile(t *testing.T) {
	root := t.TempDir()
	path := writeSample(t, root, "Free", "IJP.082.0721A")

	ctx := context.Background()
	cfg := testConfig(t, root)
	cfg.RootPath = path
	require.True(t, cfg.SingleFileMode())

	p, err := New(ctx, cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	sum, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Discovered)
	assert.Equal(t, 1, sum.Processed)
}
