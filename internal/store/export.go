package store

import (
	"context"
	"fmt"
)

// ImportResult reports what Import wrote.
type ImportResult struct {
	Imported int `json:"imported"`
	// Rewritten counts entries per foreign origin that were moved into
	// this store's origin.
	Rewritten map[string]int `json:"rewritten,omitempty"`
	Skipped   int            `json:"skipped,omitempty"`
}

// Import writes exported entries into this store's origin in one
// transaction. Entries from other origins are rewritten to this one, or
// skipped when sameOrigin is set. An entry without an origin counts as
// this one.
func (s *SQLiteStore) Import(ctx context.Context, entries []Entry, sameOrigin bool) (*ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res := &ImportResult{}
	for _, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("import: entry without key")
		}
		if e.Origin != "" && e.Origin != s.origin {
			if sameOrigin {
				res.Skipped++
				continue
			}
			if res.Rewritten == nil {
				res.Rewritten = map[string]int{}
			}
			res.Rewritten[e.Origin]++
		}
		if err := set(ctx, tx, s.origin, e.Key, e.Value); err != nil {
			return nil, err
		}
		res.Imported++
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}
