package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// CounterRepository issues sequence values backed by an upsert, used for
// human-facing order numbers.
type CounterRepository struct {
	db *sql.DB
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	const op = "counters.Next"

	if step <= 0 {
		return 0, wrapError(op, fmt.Errorf("step must be positive, got %d", step))
	}

	var value int64
	err := runner(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO counters (id, current_value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			current_value = counters.current_value + EXCLUDED.current_value,
			updated_at = now()
		RETURNING current_value`,
		counterID, step,
	).Scan(&value)
	if err != nil {
		return 0, wrapError(op, err)
	}
	return value, nil
}
