package workflow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/instrument"
	"github.com/lims/lims/internal/domain/workitem"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/metrics"
)

// Sweeper runs the two background passes: polling analyzers for results
// of queued work and resending items that failed transiently. Both passes
// are idempotent, so an overlapping or repeated run does no harm.
type Sweeper struct {
	pool         *pgxpool.Pool
	tenants      []string
	flow         *Service
	items        *workitem.Service
	instruments  *instrument.Service
	gateway      *instrument.Gateway
	pollBatch    int
	maxRetries   int
	retryBackoff time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewSweeper(pool *pgxpool.Pool, tenants []string, flow *Service,
	items *workitem.Service, instruments *instrument.Service, gateway *instrument.Gateway,
	pollBatch, maxRetries int, retryBackoff time.Duration,
	m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		pool:         pool,
		tenants:      tenants,
		flow:         flow,
		items:        items,
		instruments:  instruments,
		gateway:      gateway,
		pollBatch:    pollBatch,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		metrics:      m,
		logger:       logger,
	}
}

// RunPolling blocks, polling every interval until the context ends.
func (s *Sweeper) RunPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// RunRetries blocks, resending every interval until the context ends.
func (s *Sweeper) RunRetries(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RetryOnce(ctx)
		}
	}
}

// PollOnce sweeps every tenant once.
func (s *Sweeper) PollOnce(ctx context.Context) {
	s.metrics.SweepRuns.WithLabelValues("poll").Inc()
	for _, tenant := range s.tenants {
		err := db.RunAsTenant(ctx, s.pool, tenant, func(ctx context.Context) error {
			return s.pollTenant(ctx)
		})
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", tenant).Msg("result poll sweep failed")
		}
	}
}

// RetryOnce sweeps every tenant once.
func (s *Sweeper) RetryOnce(ctx context.Context) {
	s.metrics.SweepRuns.WithLabelValues("retry").Inc()
	for _, tenant := range s.tenants {
		err := db.RunAsTenant(ctx, s.pool, tenant, func(ctx context.Context) error {
			return s.retryTenant(ctx)
		})
		if err != nil {
			s.logger.Error().Err(err).Str("tenant", tenant).Msg("retry sweep failed")
		}
	}
}

// pollTenant asks each active instrument for the state of its open work
// items. A poll failure on one item never blocks the rest of the batch.
func (s *Sweeper) pollTenant(ctx context.Context) error {
	instruments, err := s.instruments.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, in := range instruments {
		items, err := s.items.ListPollable(ctx, in.ID, s.pollBatch)
		if err != nil {
			s.logger.Error().Err(err).Str("instrument", in.Code).Msg("listing pollable work items failed")
			continue
		}
		for _, item := range items {
			fetched, err := s.gateway.Fetch(ctx, item)
			if err != nil {
				s.logger.Warn().Err(err).Str("work_item_id", item.ID.String()).
					Str("instrument", in.Code).Msg("result poll failed")
				continue
			}
			if fetched {
				if err := s.flow.maybeCompleteOrder(ctx, item.OrderID); err != nil {
					s.logger.Error().Err(err).Str("order_id", item.OrderID.String()).
						Msg("order completion check failed")
				}
			}
		}
	}
	return nil
}

// retryTenant resends pending items whose last attempt failed, once their
// exponential backoff has elapsed.
func (s *Sweeper) retryTenant(ctx context.Context) error {
	items, err := s.items.ListRetryable(ctx, s.maxRetries)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, item := range items {
		if !s.retryDue(item, now) {
			continue
		}
		if err := s.gateway.Send(ctx, item); err != nil {
			s.logger.Warn().Err(err).Str("work_item_id", item.ID.String()).
				Int("retry_count", item.RetryCount).Msg("retry send failed")
		}
	}
	return nil
}

// retryDue applies the backoff: base doubled per prior failure, counted
// from the last attempt.
func (s *Sweeper) retryDue(item *workitem.WorkItem, now time.Time) bool {
	if item.LastSyncAttempt == nil {
		return true
	}
	wait := s.retryBackoff << uint(item.RetryCount)
	return now.Sub(*item.LastSyncAttempt) >= wait
}
