package relay

import (
	"context"
	"errors"

	"github.com/leshachaplin/webtrack/internal/domain"
)

var ErrQueueFull = errors.New("relay queue is full")

type Queue interface {
	Publish(ctx context.Context, key string, batch domain.HitBatch) error
	Consume(ctx context.Context, taskPayload chan<- domain.HitBatch, done <-chan struct{})
}

// ChannelQueue is an in-process queue. The relay deliberately carries no
// broker: a hit that cannot be queued is dropped and reported, never
// blocked on.
type ChannelQueue struct {
	ch chan domain.HitBatch
}

func NewChannelQueue(size int) *ChannelQueue {
	return &ChannelQueue{ch: make(chan domain.HitBatch, size)}
}

func (q *ChannelQueue) Publish(ctx context.Context, _ string, batch domain.HitBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Consume(ctx context.Context, taskPayload chan<- domain.HitBatch, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case batch := <-q.ch:
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case taskPayload <- batch:
			}
		}
	}
}
