// Package engine supervises the trading loops: book maintenance, fill
// tracking, and periodic status reporting, each on its own tick source.
package engine

import (
	"context"
	"time"

	"volume_maker/internal/core"

	"golang.org/x/sync/errgroup"
)

// Config holds engine wiring options.
type Config struct {
	Symbol       string
	CancelOnExit bool
	// grace period for the shutdown cancel-all
	ShutdownTimeout time.Duration
}

// Engine runs the maintainer and tracker loops until the context is canceled,
// then shuts down. Each tick's cycle runs to completion before the next tick
// is consumed, so cycles of one loop never overlap.
type Engine struct {
	cfg        Config
	exchange   core.IExchange
	maintainer core.ICycleRunner
	tracker    core.ICycleRunner

	maintTicks core.ITickSource
	trackTicks core.ITickSource

	logger core.ILogger

	statusTicks core.ITickSource
	statusFn    func()
}

// New creates an engine over the given runners and tick sources.
func New(cfg Config, exchange core.IExchange, maintainer, tracker core.ICycleRunner, maintTicks, trackTicks core.ITickSource, logger core.ILogger) *Engine {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		exchange:   exchange,
		maintainer: maintainer,
		tracker:    tracker,
		maintTicks: maintTicks,
		trackTicks: trackTicks,
		logger:     logger.WithField("component", "engine"),
	}
}

// SetStatusReporter attaches an optional periodic status callback.
func (e *Engine) SetStatusReporter(ticks core.ITickSource, fn func()) {
	e.statusTicks = ticks
	e.statusFn = fn
}

// Run blocks until ctx is canceled, then performs shutdown. The returned
// error reflects shutdown problems only; skipped cycles never escalate.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine starting", "symbol", e.cfg.Symbol)

	g, loopCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(loopCtx, e.maintTicks, e.maintainer, "maintainer") })
	g.Go(func() error { return e.loop(loopCtx, e.trackTicks, e.tracker, "tracker") })
	if e.statusTicks != nil && e.statusFn != nil {
		g.Go(func() error { return e.statusLoop(loopCtx) })
	}

	<-loopCtx.Done()
	e.maintTicks.Stop()
	e.trackTicks.Stop()
	if e.statusTicks != nil {
		e.statusTicks.Stop()
	}
	_ = g.Wait()

	return e.shutdown()
}

func (e *Engine) loop(ctx context.Context, ticks core.ITickSource, runner core.ICycleRunner, name string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticks.Ticks():
			if !ok {
				return nil
			}
			if err := runner.RunCycle(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("Cycle skipped", "loop", name, "error", err)
			}
		}
	}
}

func (e *Engine) statusLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-e.statusTicks.Ticks():
			if !ok {
				return nil
			}
			e.statusFn()
		}
	}
}

// shutdown cancels resting orders when configured. Best effort: failures are
// logged and the engine exits anyway.
func (e *Engine) shutdown() error {
	if !e.cfg.CancelOnExit {
		e.logger.Info("Engine stopped, leaving open orders in place")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	count, err := e.exchange.CancelAllOrders(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Error("Failed to cancel open orders on shutdown", "error", err)
		return err
	}
	e.logger.Info("Engine stopped", "orders_canceled", count)
	return nil
}
