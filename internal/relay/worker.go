package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/webtrack/internal/domain"
)

type WorkerPool interface {
	Start(executeFn func(ctx context.Context, batch domain.HitBatch) error)
	GracefulStop()
	Process(batch domain.HitBatch)
}

// Pool forwards queued hit batches through a fixed set of workers. Errors
// from executeFn are logged and counted, never propagated back to the
// inbound request path.
type Pool struct {
	numWorkers  int
	taskPayload chan domain.HitBatch
	queue       Queue
	start       sync.Once
	stop        sync.Once
	doneChan    chan struct{}
	ctx         context.Context
	cancelFn    context.CancelFunc
	wg          *sync.WaitGroup
	logger      zerolog.Logger
}

func New(ctx context.Context, cfg Config, queue Queue, logger zerolog.Logger) *Pool {
	cfg = cfg.withDefaults()
	c, cancelFn := context.WithCancel(ctx)
	return &Pool{
		numWorkers:  cfg.NumWorkers,
		taskPayload: make(chan domain.HitBatch, cfg.NumWorkers),
		doneChan:    make(chan struct{}),
		queue:       queue,
		ctx:         c,
		cancelFn:    cancelFn,
		wg:          &sync.WaitGroup{},
		logger:      logger,
	}
}

func (w *Pool) Start(
	executeFn func(ctx context.Context, batch domain.HitBatch) error,
) {
	w.start.Do(func() {
		for i := 0; i < w.numWorkers; i++ {
			w.wg.Add(1)
			l := w.logger.With().Int("worker", i).Logger()
			go w.work(w.ctx, l, executeFn)
		}

		go w.queue.Consume(w.ctx, w.taskPayload, w.doneChan)
	})
}

func (w *Pool) GracefulStop() {
	w.stop.Do(func() {
		close(w.doneChan)
		w.cancelFn()
		w.wg.Wait()
	})
}

func (w *Pool) Process(batch domain.HitBatch) {
	if err := w.queue.Publish(w.ctx, batch.ID, batch); err != nil {
		w.onFailure(batch, err)
	}
}

func (w *Pool) onFailure(batch domain.HitBatch, err error) {
	hitsDropped.Add(float64(len(batch.Hits)))
	w.logger.Err(err).
		Str("BATCH_ID", batch.ID).
		Int("hits", len(batch.Hits)).
		Msg("failed to forward hits")
}

func (w *Pool) work(
	ctx context.Context,
	logger zerolog.Logger,
	executeFn func(ctx context.Context, batch domain.HitBatch) error,
) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.doneChan:
			return
		case batch, ok := <-w.taskPayload:
			if !ok {
				return
			}

			logger.Debug().Str("BATCH_ID", batch.ID).Int("hits", len(batch.Hits)).Msg("start forwarding hits")
			if err := executeFn(ctx, batch); err != nil {
				w.onFailure(batch, err)
			}
			logger.Debug().Str("BATCH_ID", batch.ID).Msg("end forwarding hits")
		}
	}
}
