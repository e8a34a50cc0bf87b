package db

import (
	"context"
	"fmt"
)

// NextValue atomically increments the named counter and returns the new value.
func (db *DB) NextValue(ctx context.Context, name string) (int64, error) {
	return nextValue(ctx, db, name)
}

func nextValue(ctx context.Context, q querier, name string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`,
		name,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return v, nil
}
