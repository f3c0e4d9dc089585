package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	xhttp "AlphaNebula/pkg/http"
	pkgkafka "AlphaNebula/pkg/kafka"
	applogger "AlphaNebula/pkg/logger"
)

// Worker is a background component with an explicit lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// WorkerFuncs adapts a pair of functions to Worker.
type WorkerFuncs struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (w WorkerFuncs) Start(ctx context.Context) error {
	if w.StartFn == nil {
		return nil
	}
	return w.StartFn(ctx)
}

func (w WorkerFuncs) Stop(ctx context.Context) error {
	if w.StopFn == nil {
		return nil
	}
	return w.StopFn(ctx)
}

type namedWorker struct {
	name string
	w    Worker
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	shutdownTimeout time.Duration

	bootstrap []func(ctx context.Context) error
	consumer  *pkgkafka.Consumer
	handlers  []pkgkafka.MessageHandler
	workers   []namedWorker
	closers   []closer
}

// Option configures App.
type Option func(*App)

// WithBootstrap runs fn before anything starts serving. A failure aborts Run.
func WithBootstrap(fn func(ctx context.Context) error) Option {
	return func(a *App) { a.bootstrap = append(a.bootstrap, fn) }
}

// WithConsumer registers handlers on consumer and starts it with the app.
func WithConsumer(consumer *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = consumer
		a.handlers = append(a.handlers, handlers...)
	}
}

// WithWorker adds a background component. Workers stop in reverse start order.
func WithWorker(name string, w Worker) Option {
	return func(a *App) {
		if w != nil {
			a.workers = append(a.workers, namedWorker{name: name, w: w})
		}
	}
}

// WithCloser releases an infrastructure client after every worker stopped.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates a new App instance with all dependencies.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{log: l.Component("app"), httpServer: httpServer, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	for _, fn := range a.bootstrap {
		if err := fn(ctx); err != nil {
			a.closeAll()
			return fmt.Errorf("bootstrap: %w", err)
		}
	}

	started := 0
	for _, nw := range a.workers {
		if err := nw.w.Start(ctx); err != nil {
			a.log.Error("worker start failed", applogger.String("worker", nw.name), applogger.Error(err))
			a.stopWorkers(started)
			a.closeAll()
			return fmt.Errorf("start %s: %w", nw.name, err)
		}
		started++
		a.log.Info("worker started", applogger.String("worker", nw.name))
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		topics := make([]string, 0, len(a.handlers))
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.Strings("topics", topics))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			_ = a.shutdown(started)
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(started)
}

// shutdown stops intake first, then background work, then infrastructure clients.
func (a *App) shutdown(started int) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.stopWorkersCtx(ctx, started)...)
	a.closeAll()

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopWorkers(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	_ = a.stopWorkersCtx(ctx, n)
}

func (a *App) stopWorkersCtx(ctx context.Context, n int) []error {
	var errs []error
	for i := n - 1; i >= 0; i-- {
		nw := a.workers[i]
		if err := nw.w.Stop(ctx); err != nil {
			a.log.Warn("worker stop error", applogger.String("worker", nw.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("client", c.name), applogger.Error(err))
		}
	}
}
