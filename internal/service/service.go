package service

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leshachaplin/webtrack/internal/domain"
	"github.com/leshachaplin/webtrack/internal/relay"
	"github.com/leshachaplin/webtrack/tracker"
)

// HitProcessor accepts hits for asynchronous forwarding. The caller gets
// no delivery result; forwarding failures are logged and counted.
type HitProcessor interface {
	ProcessHit(hit domain.Hit)
	ProcessBatch(batch domain.HitBatch)
}

// Sender is the slice of tracker.Client the forwarder needs.
type Sender interface {
	SendBatch(ctx context.Context, b *tracker.Batch) (*tracker.Response, error)
}

type Service struct {
	hitPool   relay.WorkerPool
	collector Sender
	tokenAuth string
	logger    zerolog.Logger
}

// New wires the worker pool to the collector client and starts the pool.
func New(hitPool relay.WorkerPool, collector Sender, tokenAuth string, logger zerolog.Logger) *Service {
	s := &Service{
		hitPool:   hitPool,
		collector: collector,
		tokenAuth: tokenAuth,
		logger:    logger,
	}
	hitPool.Start(s.forward)
	return s
}

func (s *Service) ProcessHit(hit domain.Hit) {
	s.ProcessBatch(domain.HitBatch{
		ID:   uuid.NewString(),
		Hits: []domain.Hit{hit},
	})
}

func (s *Service) ProcessBatch(batch domain.HitBatch) {
	if len(batch.Hits) == 0 {
		return
	}
	s.hitPool.Process(batch)
}

func (s *Service) forward(ctx context.Context, batch domain.HitBatch) error {
	b := tracker.NewBatch(s.tokenAuth)
	for _, hit := range batch.Hits {
		b.AddQuery(hit.Query)
	}

	resp, err := s.collector.SendBatch(ctx, b)
	if err != nil {
		hitsFailed.Add(float64(len(batch.Hits)))
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		// the collector answered; report but do not retry
		hitsFailed.Add(float64(len(batch.Hits)))
		s.logger.Warn().
			Str("BATCH_ID", batch.ID).
			Int("status", resp.StatusCode).
			Msg("collector rejected batch")
		return nil
	}

	hitsForwarded.Add(float64(len(batch.Hits)))
	forwardLatency.Observe(time.Since(oldestHit(batch)).Seconds())
	return nil
}

func oldestHit(batch domain.HitBatch) time.Time {
	oldest := time.Now()
	for _, hit := range batch.Hits {
		if !hit.ReceivedAt.IsZero() && hit.ReceivedAt.Before(oldest) {
			oldest = hit.ReceivedAt
		}
	}
	return oldest
}
