package sequence

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	counters CounterRepository
}

func NewService(counters CounterRepository) *Service {
	return &Service{counters: counters}
}

// Next issues the next identifier for prefix, formatted as the prefix
// followed by a zero-padded 6-digit number. Errors are returned as-is so
// callers never fabricate an id when persistence is down.
func (s *Service) Next(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("prefix is required")
	}
	if prefix != strings.ToUpper(prefix) {
		return "", fmt.Errorf("invalid prefix: %s", prefix)
	}
	n, err := s.counters.NextNumber(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", prefix, n), nil
}
