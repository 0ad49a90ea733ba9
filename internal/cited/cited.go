// Package cited bulk-loads the precomputed citation cross-tab into an
// in-memory table keyed by document id. The table is built once per run,
// immutable afterwards, and passed by parameter to every consumer.
package cited

import (
	"context"
	"database/sql"
	"fmt"
)

// Counts holds the citation window counts for one cited document.
type Counts struct {
	Count5   int
	Count10  int
	Count20  int
	CountAll int
}

// sentinelID marks a table built after a failed load so consumers can
// tell "loader degraded" from "corpus with no citations".
const sentinelID = "__load_failed__"

// Table maps document id to citation counts. A missing id means all-zero
// counts, never an error.
type Table struct {
	counts map[string]Counts
}

// Empty returns a table with a single sentinel entry, the degraded result
// of a failed load. Indexing proceeds with zero counts.
func Empty() *Table {
	return &Table{counts: map[string]Counts{sentinelID: {}}}
}

// FromMap builds a table from explicit counts, for callers that already
// hold them (and for tests).
func FromMap(m map[string]Counts) *Table {
	counts := make(map[string]Counts, len(m))
	for id, c := range m {
		counts[id] = c
	}
	return &Table{counts: counts}
}

// Load executes the one aggregate query against the relational store and
// builds the lookup table. Called once per run before parsing begins.
func Load(ctx context.Context, db *sql.DB) (*Table, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT cited_document_id, count5, count10, count20, countall
		FROM vw_stat_cited_crosstab`)
	if err != nil {
		return nil, fmt.Errorf("failed to query citation cross-tab: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]Counts)
	for rows.Next() {
		var id string
		var c Counts
		if err := rows.Scan(&id, &c.Count5, &c.Count10, &c.Count20, &c.CountAll); err != nil {
			return nil, fmt.Errorf("failed to scan citation row: %w", err)
		}
		counts[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read citation cross-tab: %w", err)
	}
	return &Table{counts: counts}, nil
}

// Get returns the counts for id, all zeros when absent.
func (t *Table) Get(id string) Counts {
	return t.counts[id]
}

// Len returns the number of loaded entries, excluding the sentinel.
func (t *Table) Len() int {
	n := len(t.counts)
	if _, ok := t.counts[sentinelID]; ok {
		n--
	}
	return n
}
