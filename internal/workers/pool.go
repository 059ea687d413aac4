// Package workers runs blocking work on a fixed number of goroutines.
package workers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when none is configured.
const DefaultSize = 4

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("workers: pool closed")

// Pool bounds how many jobs run at once. Callers block until their job finishes.
type Pool struct {
	size   int64
	sem    *semaphore.Weighted
	closed chan struct{}
}

// New creates a pool with size workers. Sizes below one fall back to DefaultSize.
func New(size int) *Pool {
	if size < 1 {
		size = DefaultSize
	}
	return &Pool{
		size:   int64(size),
		sem:    semaphore.NewWeighted(int64(size)),
		closed: make(chan struct{}),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return int(p.size) }

// Do runs job on a worker and waits for it. A panic inside job is returned as an error.
// Cancelling ctx while waiting for a free worker abandons the job.
func (p *Pool) Do(ctx context.Context, job func(context.Context) error) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("workers: job panicked: %v", r)
			}
		}()
		done <- job(ctx)
	}()
	return <-done
}

// Close rejects new jobs and waits for running ones to finish.
func (p *Pool) Close() {
	select {
	case <-p.closed:
		return
	default:
		close(p.closed)
	}
	_ = p.sem.Acquire(context.Background(), p.size)
	p.sem.Release(p.size)
}
