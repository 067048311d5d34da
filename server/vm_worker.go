package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/rbot/host"
)

// ErrWorkerStopped is returned for work submitted to a stopped worker.
var ErrWorkerStopped = errors.New("server: worker stopped")

// botRequest is a unit of work to be executed on the worker goroutine.
type botRequest struct {
	ctx  context.Context
	fn   func(context.Context, *host.Bot) (any, error)
	done chan botResult
}

type botResult struct {
	value any
	err   error
}

// Worker serializes all access to one bot through a single goroutine.
// The interpreter is single-threaded; every RPC handler touching the
// bot must go through the worker.
type Worker struct {
	bot      *host.Bot
	requests chan botRequest
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(bot *host.Bot) *Worker {
	w := &Worker{
		bot:      bot,
		requests: make(chan botRequest, 16),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req)
		case <-w.quit:
			return
		}
	}
}

// execute runs one request, recovering from panics.
func (w *Worker) execute(req botRequest) (result botResult) {
	if err := req.ctx.Err(); err != nil {
		return botResult{err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker panic: %v", r)
			result = botResult{err: fmt.Errorf("server: panic in bot: %v", r)}
		}
	}()
	v, err := req.fn(req.ctx, w.bot)
	return botResult{value: v, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until
// it completes or ctx is done.
func (w *Worker) Do(ctx context.Context, fn func(context.Context, *host.Bot) (any, error)) (any, error) {
	req := botRequest{ctx: ctx, fn: fn, done: make(chan botResult, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.stopped:
		select {
		case result := <-req.done:
			return result.value, result.err
		default:
			return nil, ErrWorkerStopped
		}
	case <-ctx.Done():
		// The bot observes the same context and stops at its next check.
		return nil, ctx.Err()
	}
}

// do is Do with a typed result.
func do[T any](ctx context.Context, w *Worker, fn func(context.Context, *host.Bot) (T, error)) (T, error) {
	v, err := w.Do(ctx, func(ctx context.Context, b *host.Bot) (any, error) {
		return fn(ctx, b)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Stop shuts down the worker goroutine. Work already running finishes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
