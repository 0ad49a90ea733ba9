// Package catalog provides the source catalog: a lookup table mapping a
// short journal or book code to its descriptive metadata. It is loaded
// once per run from the relational store and read-only afterwards.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Source describes one journal, book, or video series.
type Source struct {
	Code        string
	TitleAbbr   string
	TitleFull   string
	ProductType string // journal, book, videostream
	EmbargoWall int    // embargo window in years
}

// legacyTypes covers source codes that predate the catalog and have a
// known type even when no catalog row exists.
var legacyTypes = map[string]string{
	"ZBK": "book",
	"IPL": "book",
	"NLP": "book",
	"SE":  "book",
	"GW":  "book",
}

// Catalog is the in-memory source lookup table, keyed by upper-case code.
type Catalog struct {
	sources map[string]Source
}

// Empty returns a catalog with no entries, used when the precondition
// load degrades.
func Empty() *Catalog {
	return &Catalog{sources: map[string]Source{}}
}

// Load reads all active source rows. Called once per run before any
// document parsing begins.
func Load(ctx context.Context, db *sql.DB) (*Catalog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT basecode, sourcetitleabbr, sourcetitlefull, product_type, wall
		FROM api_productbase
		WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source catalog: %w", err)
	}
	defer rows.Close()

	sources := make(map[string]Source)
	for rows.Next() {
		var s Source
		var abbr, full, ptype sql.NullString
		var wall sql.NullInt64
		if err := rows.Scan(&s.Code, &abbr, &full, &ptype, &wall); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		s.Code = strings.ToUpper(s.Code)
		s.TitleAbbr = abbr.String
		s.TitleFull = full.String
		s.ProductType = ptype.String
		s.EmbargoWall = int(wall.Int64)
		sources[s.Code] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source catalog: %w", err)
	}
	return &Catalog{sources: sources}, nil
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.sources)
}

// Lookup returns the source entry for code (matched case-insensitively).
// When no row exists, ok is false and the returned Source carries only
// the code plus, for the fixed legacy set, its known product type; the
// caller decides whether to warn.
func (c *Catalog) Lookup(code string) (Source, bool) {
	code = strings.ToUpper(code)
	if s, ok := c.sources[code]; ok {
		return s, true
	}
	return Source{Code: code, ProductType: legacyTypes[code]}, false
}
