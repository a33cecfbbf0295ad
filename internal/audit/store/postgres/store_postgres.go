package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"popai/internal/audit"
)

// Store implements audit.Store on the audit_entries table. BIGSERIAL gives
// the insertion order.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO audit_entries (id, hash, recorded_at) VALUES ($1, $2, $3) RETURNING sequence`,
		entry.ID, entry.Hash, entry.RecordedAt.UTC(),
	).Scan(&seq)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	entry.Sequence = uint64(seq)
	return entry, nil
}

func (s *Store) List(ctx context.Context, offset, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, id, hash, recorded_at FROM audit_entries ORDER BY sequence OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e   audit.Entry
			seq int64
		)
		if err := rows.Scan(&seq, &e.ID, &e.Hash, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Sequence = uint64(seq)
		e.RecordedAt = e.RecordedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}
