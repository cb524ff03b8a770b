package waiter

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

type WaitFunc func(ctx context.Context) error

// Waiter runs the application's long-lived functions and blocks until
// they all return or a shutdown signal arrives.
type Waiter interface {
	Add(fns ...WaitFunc)
	Wait() error
	Context() context.Context
}

type waiterCfg struct {
	signals []os.Signal
}

type waiter struct {
	ctx            context.Context
	cancelFn       context.CancelFunc
	parentCancelFn context.CancelFunc
	fns            []WaitFunc
}

func NewWaiter(ctx context.Context, cancelFn context.CancelFunc, options ...Option) Waiter {
	cfg := &waiterCfg{
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, option := range options {
		option(cfg)
	}

	w := &waiter{
		parentCancelFn: cancelFn,
		fns:            []WaitFunc{},
	}
	w.ctx, w.cancelFn = signal.NotifyContext(ctx, cfg.signals...)

	return w
}

func (w *waiter) Add(fns ...WaitFunc) {
	w.fns = append(w.fns, fns...)
}

func (w *waiter) Wait() error {
	group, gCtx := errgroup.WithContext(w.ctx)

	group.Go(func() error {
		<-gCtx.Done()
		w.cancelFn()
		w.parentCancelFn()
		return nil
	})

	for _, fn := range w.fns {
		fn := fn
		group.Go(func() error { return fn(gCtx) })
	}

	return group.Wait()
}

func (w *waiter) Context() context.Context {
	return w.ctx
}
