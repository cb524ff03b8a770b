package app

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/webtrack/app/waiter"
	"github.com/leshachaplin/webtrack/internal/config"
	"github.com/leshachaplin/webtrack/internal/relay"
	appServer "github.com/leshachaplin/webtrack/internal/server/http"
	"github.com/leshachaplin/webtrack/internal/service"
	"github.com/leshachaplin/webtrack/tracker"
)

type LoadConfigFn func() (config.Config, error)

type App struct {
	cfg      config.Config
	logger   zerolog.Logger
	server   *appServer.Server
	waiter   waiter.Waiter
	ctx      context.Context
	cancelFn context.CancelFunc
}

func New(loadConfigFn LoadConfigFn) *App {
	ctx, cancelFn := context.WithCancel(context.Background())
	cfg, err := loadConfigFn()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := NewZeroLogger(Level(cfg.LogLevel))

	w := waiter.NewWaiter(ctx, cancelFn)

	return &App{
		cfg:      cfg,
		logger:   logger,
		waiter:   w,
		ctx:      ctx,
		cancelFn: cancelFn,
	}
}

func (a *App) Start() {
	defer a.cancelFn()

	collectorCfg := tracker.DefaultConfig(a.cfg.Collector.Endpoint)
	collectorCfg.Timeout = a.cfg.Collector.Timeout
	collectorCfg.RetryMax = a.cfg.Collector.RetryMax
	collector, err := tracker.NewClient(
		collectorCfg,
		a.logger.With().Str("COLLECTOR", a.cfg.Collector.Endpoint).Logger(),
	)
	if err != nil {
		a.logger.Fatal().Err(err).Msg("Could not setup collector client.")
	}

	hitQueue := relay.NewChannelQueue(a.cfg.HitRelay.QueueSize)
	l := a.logger.With().Str("WORKER", "HIT").Logger()
	hitPool := relay.New(a.ctx, a.cfg.HitRelay, hitQueue, l)

	hitProcessor := service.New(hitPool, collector, a.cfg.Collector.TokenAuth, a.logger)
	handler := appServer.NewHandler(a.cfg.Tracking, hitProcessor, a.logger)

	a.server = appServer.New(handler)

	a.waitForServer()
	a.waitForWorker(hitPool)

	if err = a.waiter.Wait(); err != nil {
		a.logger.Fatal().Err(err).Msg("App crash.")
	}
}

func (a *App) Stop() {
	a.cancelFn()
}

func (a *App) waitForServer() {
	a.waiter.Add(func(ctx context.Context) error {
		defer a.logger.Debug().Msg("server has been shutdown")

		group, gCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			defer a.logger.Debug().Msg("public server exited")
			a.logger.Info().Str("starting server at: ", a.cfg.Addr).Send()
			err := a.server.ServePublic(a.cfg.Addr)
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		group.Go(func() error {
			<-gCtx.Done()
			log.Debug().Msg("shutting down the server")
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if err := a.server.ShutdownPublic(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("error while shutting down the server")
			}
			return nil
		})

		return group.Wait()
	})
}

func (a *App) waitForWorker(hitPool relay.WorkerPool) {
	a.waiter.Add(func(ctx context.Context) error {
		group, gCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			<-gCtx.Done()
			hitPool.GracefulStop()
			return nil
		})
		return group.Wait()
	})
}
