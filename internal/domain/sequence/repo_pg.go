package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type counterRepoPG struct{ pool *pgxpool.Pool }

func NewCounterRepoPG(pool *pgxpool.Pool) CounterRepository {
	return &counterRepoPG{pool: pool}
}

func (r *counterRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// NextNumber relies on the upsert's row lock to serialize the
// read-increment-write cycle. A caller that fails after this returns burns
// the number; gaps are tolerated, duplicates are not.
func (r *counterRepoPG) NextNumber(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO sequence_counters (prefix, last_number)
		VALUES ($1, 1)
		ON CONFLICT (prefix)
		DO UPDATE SET last_number = sequence_counters.last_number + 1, updated_at = NOW()
		RETURNING last_number`, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next number for %s: %w", prefix, err)
	}
	return n, nil
}
