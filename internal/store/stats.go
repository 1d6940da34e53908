package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string        `json:"db_path"`
	DBSizeBytes int64         `json:"db_size_bytes"`
	TotalKeys   int           `json:"total_keys"`
	Origins     []OriginStats `json:"origins"`
}

// OriginStats holds per-origin counts.
type OriginStats struct {
	Origin string `json:"origin"`
	Keys   int    `json:"keys"`
	Bytes  int    `json:"bytes"`
	Writes int    `json:"writes"`
}

// Stats returns database statistics across every origin in the file.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&st.TotalKeys)

	rows, err := s.db.QueryContext(ctx, `
		SELECT origin, COUNT(*), COALESCE(SUM(LENGTH(value)), 0), COALESCE(SUM(version), 0)
		FROM kv GROUP BY origin ORDER BY origin`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var o OriginStats
		if err := rows.Scan(&o.Origin, &o.Keys, &o.Bytes, &o.Writes); err != nil {
			return st, err
		}
		st.Origins = append(st.Origins, o)
	}

	return st, rows.Err()
}
