package db

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("db: backend is closed")

// workerDB wraps a Database so that all operations run on one dedicated
// goroutine that owns the inner backend. Callers submit work over a channel
// and suspend on their context until the result arrives. This is the
// non-blocking discipline for the embedded engine: the single connection is
// only ever touched from the worker goroutine, and a caller waiting for its
// turn can be cancelled without wedging anyone else.
//
// A transaction closure runs on the worker goroutine in its entirety, so
// nothing else interleaves with an open transaction.
type workerDB struct {
	inner Database

	mu      sync.Mutex
	jobs    chan workerJob
	quit    chan struct{}
	stopped sync.WaitGroup
	closed  bool
}

type workerJob struct {
	run func() error
	res chan<- error
}

func newWorker(inner Database) *workerDB {
	w := &workerDB{
		inner: inner,
		jobs:  make(chan workerJob),
		quit:  make(chan struct{}),
	}
	w.stopped.Add(1)
	go w.loop()
	return w
}

func (w *workerDB) loop() {
	defer w.stopped.Done()
	for {
		select {
		case job := <-w.jobs:
			job.res <- job.run()
		case <-w.quit:
			return
		}
	}
}

// do submits fn to the worker and waits for its result. Waiting, either for
// a free worker or for the running operation, ends early when ctx is done;
// an abandoned operation still runs to completion on the worker so the inner
// backend never sees a half-delivered call.
func (w *workerDB) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)

	select {
	case w.jobs <- workerJob{run: fn, res: res}:
	case <-w.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *workerDB) Connect(ctx context.Context) error {
	return w.do(ctx, func() error { return w.inner.Connect(ctx) })
}

func (w *workerDB) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	var row Row
	err := w.do(ctx, func() error {
		var err error
		row, err = w.inner.FetchOne(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (w *workerDB) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := w.do(ctx, func() error {
		var err error
		rows, err = w.inner.FetchAll(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (w *workerDB) Execute(ctx context.Context, query string, args ...any) error {
	return w.do(ctx, func() error { return w.inner.Execute(ctx, query, args...) })
}

func (w *workerDB) Transaction(ctx context.Context, fn func(Queryer) error) error {
	return w.do(ctx, func() error { return w.inner.Transaction(ctx, fn) })
}

// Close stops the worker and closes the inner backend. Idempotent.
func (w *workerDB) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.quit)
	w.mu.Unlock()

	w.stopped.Wait()
	return w.inner.Close()
}
