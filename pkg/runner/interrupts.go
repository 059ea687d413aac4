package runner

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// settleDelay is how long a failed read waits for the interrupt that may have
// caused it. Some terminals close stdin slightly before delivering SIGINT.
const settleDelay = 100 * time.Millisecond

// stopGrace is how long a stopped pass may keep running before its context is
// cancelled. A second signal cancels at once.
const stopGrace = 2 * time.Second

// interrupts turns SIGINT and SIGTERM into the cancellation of the pass in
// flight. One listener lives for the whole run; each pass arms it afresh so a
// signal only ever stops the pass it arrived during.
//
// A pass armed with a Stopper first stops the model streams so lines already
// received are processed, and cancels only if the pass outlives stopGrace.
type interrupts struct {
	ch    chan os.Signal
	done  chan struct{}
	halt  Stopper
	grace time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopper Stopper
	timer   *time.Timer
	tripped bool
	last    os.Signal
}

func listen(halt Stopper) *interrupts {
	in := newInterrupts(halt)
	signal.Notify(in.ch, os.Interrupt, syscall.SIGTERM)
	return in
}

func newInterrupts(halt Stopper) *interrupts {
	in := &interrupts{ch: make(chan os.Signal, 1), done: make(chan struct{}), halt: halt, grace: stopGrace}
	go in.loop()
	return in
}

func (in *interrupts) loop() {
	for {
		select {
		case sig := <-in.ch:
			in.mu.Lock()
			in.last = sig
			in.fire()
			in.mu.Unlock()
		case <-in.done:
			return
		}
	}
}

// fire stops or cancels the armed pass. The caller holds mu.
func (in *interrupts) fire() {
	if in.cancel == nil {
		return
	}
	first := !in.tripped
	in.tripped = true
	if first && in.stopper != nil && in.stopper.StopStreams() {
		in.timer = time.AfterFunc(in.grace, in.cancel)
		return
	}
	in.cancel()
	in.cancel = nil
}

// pass derives a context cancelled by ctx or by the next signal. A nil
// receiver only derives from ctx.
func (in *interrupts) pass(ctx context.Context) (context.Context, context.CancelFunc) {
	return in.arm(ctx, nil)
}

// play is pass for a traversal pass: the first signal stops the model streams
// before anything is cancelled.
func (in *interrupts) play(ctx context.Context) (context.Context, context.CancelFunc) {
	if in == nil {
		return in.arm(ctx, nil)
	}
	return in.arm(ctx, in.halt)
}

func (in *interrupts) arm(ctx context.Context, halt Stopper) (context.Context, context.CancelFunc) {
	passCtx, cancel := context.WithCancel(ctx)
	if in == nil {
		return passCtx, cancel
	}
	in.mu.Lock()
	in.cancel = cancel
	in.stopper = halt
	in.tripped = false
	in.mu.Unlock()
	return passCtx, func() {
		in.mu.Lock()
		if in.timer != nil {
			in.timer.Stop()
			in.timer = nil
		}
		if in.tripped && in.stopper != nil {
			in.stopper.ResumeStreams()
		}
		in.cancel = nil
		in.stopper = nil
		in.mu.Unlock()
		cancel()
	}
}

// interrupted reports whether a signal arrived during the last armed pass.
func (in *interrupts) interrupted() bool {
	if in == nil {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tripped
}

// settle waits up to settleDelay for ctx to end and reports whether it did.
func (in *interrupts) settle(ctx context.Context) bool {
	if in == nil {
		return ctx.Err() != nil
	}
	t := time.NewTimer(settleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

// Signal returns the last signal received.
func (in *interrupts) Signal() os.Signal {
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.last
}

func (in *interrupts) stop() {
	if in == nil {
		return
	}
	signal.Stop(in.ch)
	close(in.done)
}
