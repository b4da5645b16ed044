package sequence

import "context"

type CounterRepository interface {
	// NextNumber atomically increments and returns the counter for prefix,
	// creating the row on first use. Two concurrent callers never receive
	// the same number.
	NextNumber(ctx context.Context, prefix string) (int64, error)
}
