// Package centraldb is the relational side of the load: the source
// catalog, the per-article metadata table, the bibliography sink and the
// citation-count crosstab all live in one sqlite database.
package centraldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/openpubarchive/opasload/internal/pepxml"
)

// DB wraps the central database connection. All statements run through
// database/sql; the driver is pure Go so no cgo toolchain is needed.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database and applies the session pragmas.
// WAL must be set via PRAGMA with this driver; the DSN form is ignored.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.ensureSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS api_productbase (
			basecode TEXT PRIMARY KEY,
			sourcetitleabbr TEXT NOT NULL DEFAULT '',
			sourcetitlefull TEXT NOT NULL DEFAULT '',
			product_type TEXT NOT NULL DEFAULT '',
			wall INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS api_articles (
			art_id TEXT PRIMARY KEY,
			art_doi TEXT,
			art_type TEXT,
			art_lang TEXT,
			art_kwds TEXT,
			art_auth_mast TEXT,
			art_auth_citeas TEXT,
			art_title TEXT,
			src_title_abbr TEXT,
			src_code TEXT,
			art_year INTEGER,
			art_vol INTEGER,
			art_vol_str TEXT,
			art_vol_suffix TEXT,
			art_issue TEXT,
			art_pgrg TEXT,
			art_pgstart INTEGER,
			art_pgend INTEGER,
			main_toc_id TEXT,
			start_sectname TEXT,
			bk_info_xml TEXT,
			bk_title TEXT,
			bk_publisher TEXT,
			art_citeas_xml TEXT,
			ref_count INTEGER NOT NULL DEFAULT 0,
			filename TEXT,
			filedatetime TEXT,
			file_classification TEXT,
			preserve INTEGER NOT NULL DEFAULT 0,
			last_update TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS api_biblioxml (
			art_id TEXT NOT NULL,
			ref_local_id TEXT NOT NULL,
			art_year INTEGER,
			ref_rx TEXT,
			ref_rxcf TEXT,
			ref_sourcecode TEXT,
			ref_authors TEXT,
			ref_authors_xml TEXT,
			ref_title TEXT,
			ref_sourcetype TEXT,
			ref_sourcetitle TEXT,
			ref_pgrg TEXT,
			ref_year TEXT,
			ref_year_int INTEGER,
			ref_volume TEXT,
			ref_publisher TEXT,
			ref_xml TEXT,
			ref_offsite INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (art_id, ref_local_id)
		)`,
		`CREATE TABLE IF NOT EXISTS vw_stat_cited_crosstab (
			cited_document_id TEXT PRIMARY KEY,
			count5 INTEGER NOT NULL DEFAULT 0,
			count10 INTEGER NOT NULL DEFAULT 0,
			count20 INTEGER NOT NULL DEFAULT 0,
			countall INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_biblioxml_rx ON api_biblioxml(ref_rx)`,
	}
	for _, stmt := range stmts {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Conn exposes the underlying handle for the read-side loaders.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// UpsertArticle records (or refreshes) the metadata row for one article.
// The row is keyed by art_id so reprocessing replaces in place.
func (d *DB) UpsertArticle(ctx context.Context, art *pepxml.Article) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO api_articles (
			art_id, art_doi, art_type, art_lang, art_kwds,
			art_auth_mast, art_auth_citeas, art_title,
			src_title_abbr, src_code,
			art_year, art_vol, art_vol_str, art_vol_suffix, art_issue,
			art_pgrg, art_pgstart, art_pgend,
			start_sectname, art_citeas_xml, ref_count,
			filename, filedatetime, file_classification,
			last_update
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,datetime('now'))
		ON CONFLICT(art_id) DO UPDATE SET
			art_doi = excluded.art_doi,
			art_type = excluded.art_type,
			art_lang = excluded.art_lang,
			art_kwds = excluded.art_kwds,
			art_auth_mast = excluded.art_auth_mast,
			art_auth_citeas = excluded.art_auth_citeas,
			art_title = excluded.art_title,
			src_title_abbr = excluded.src_title_abbr,
			src_code = excluded.src_code,
			art_year = excluded.art_year,
			art_vol = excluded.art_vol,
			art_vol_str = excluded.art_vol_str,
			art_vol_suffix = excluded.art_vol_suffix,
			art_issue = excluded.art_issue,
			art_pgrg = excluded.art_pgrg,
			art_pgstart = excluded.art_pgstart,
			art_pgend = excluded.art_pgend,
			start_sectname = excluded.start_sectname,
			art_citeas_xml = excluded.art_citeas_xml,
			ref_count = excluded.ref_count,
			filename = excluded.filename,
			filedatetime = excluded.filedatetime,
			file_classification = excluded.file_classification,
			last_update = datetime('now')`,
		art.ID, art.DOI, art.Type, strings.Join(art.Langs, ", "), strings.Join(art.Kwds, ", "),
		art.AuthorMast, art.AuthorsBibStyle, art.Title,
		art.SourceTitleAbbr, art.SrcCode,
		art.YearInt, art.VolInt, art.Vol, art.VolSuffix, art.Issue,
		art.Pgrg, art.PageRange.Start, art.PageRange.End,
		art.NewSecNm, art.CiteAs, art.RefCount,
		art.FileName, art.FileLastModified.UTC().Format("2006-01-02 15:04:05"),
		string(art.FileClassification),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article %s: %w", art.ID, err)
	}
	return nil
}

// WriteReferences stores the article's bibliography. Each entry is
// written independently; a bad entry is logged and skipped so one
// malformed reference cannot block the rest of the bibliography.
func (d *DB) WriteReferences(ctx context.Context, refs []pepxml.Reference) int {
	written := 0
	for _, ref := range refs {
		if err := d.writeReference(ctx, ref); err != nil {
			d.logger.Warn("reference_write_failed",
				slog.String("ref_id", ref.ID),
				slog.String("error", err.Error()))
			continue
		}
		written++
	}
	return written
}

func (d *DB) writeReference(ctx context.Context, ref pepxml.Reference) error {
	// ref.Text already carries the substitute note for offsite entries.
	_, err := d.conn.ExecContext(ctx, `
		REPLACE INTO api_biblioxml (
			art_id, ref_local_id,
			ref_rx, ref_rxcf, ref_sourcecode,
			ref_authors, ref_authors_xml, ref_title,
			ref_sourcetype, ref_sourcetitle, ref_pgrg,
			ref_year, ref_year_int, ref_volume, ref_publisher,
			ref_xml, ref_offsite
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ref.ArtID, ref.LocalID,
		ref.RX, ref.RXCf, ref.RXSourceCode,
		ref.Authors, ref.AuthorsXML, ref.Title,
		ref.SourceType, ref.SourceTitle, ref.PageRange,
		ref.Year, ref.YearInt, ref.Volume, ref.Publisher,
		ref.Text, boolToInt(ref.Offsite),
	)
	return err
}

// DeleteArticle removes the article row and its bibliography. Runs
// before every rewrite so stale references cannot survive an article
// whose bibliography shrank.
func (d *DB) DeleteArticle(ctx context.Context, artID string) error {
	if _, err := d.conn.ExecContext(ctx,
		"DELETE FROM api_biblioxml WHERE art_id = ?", artID); err != nil {
		return fmt.Errorf("failed to delete references for %s: %w", artID, err)
	}
	if _, err := d.conn.ExecContext(ctx,
		"DELETE FROM api_articles WHERE art_id = ?", artID); err != nil {
		return fmt.Errorf("failed to delete article %s: %w", artID, err)
	}
	return nil
}

// Reset clears the load-produced tables. The source catalog and the
// citation crosstab are inputs and survive.
func (d *DB) Reset(ctx context.Context) error {
	for _, table := range []string{"api_articles", "api_biblioxml"} {
		if _, err := d.conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
