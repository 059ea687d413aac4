package runner

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterrupts_CancelsOnlyThePassInFlight(t *testing.T) {
	in := newInterrupts(nil)
	defer in.stop()

	first, release := in.pass(context.Background())
	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return first.Err() != nil }, time.Second, 5*time.Millisecond)
	release()
	assert.Equal(t, os.Interrupt, in.Signal())

	second, release := in.pass(context.Background())
	defer release()
	assert.NoError(t, second.Err(), "a new pass starts unaffected")
}

func TestInterrupts_SignalBetweenPassesIsDropped(t *testing.T) {
	in := newInterrupts(nil)
	defer in.stop()

	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return in.Signal() != nil }, time.Second, 5*time.Millisecond)

	ctx, release := in.pass(context.Background())
	defer release()
	assert.NoError(t, ctx.Err())
}

func TestInterrupts_Settle(t *testing.T) {
	in := newInterrupts(nil)
	defer in.stop()

	ctx, release := in.pass(context.Background())
	start := time.Now()
	assert.False(t, in.settle(ctx))
	assert.GreaterOrEqual(t, time.Since(start), settleDelay)

	release()
	assert.True(t, in.settle(ctx))
}

func TestInterrupts_NilReceiver(t *testing.T) {
	var in *interrupts
	ctx, release := in.pass(context.Background())
	assert.False(t, in.settle(ctx))
	release()
	assert.True(t, in.settle(ctx))

	ctx, release = in.play(context.Background())
	assert.NoError(t, ctx.Err())
	release()
	assert.False(t, in.interrupted())
	in.stop()
}

type fakeStopper struct {
	stoppable bool
	stops     atomic.Int32
	resumes   atomic.Int32
}

func (f *fakeStopper) StopStreams() bool {
	f.stops.Add(1)
	return f.stoppable
}

func (f *fakeStopper) ResumeStreams() { f.resumes.Add(1) }

func TestInterrupts_PlayStopsStreamsBeforeCancelling(t *testing.T) {
	halt := &fakeStopper{stoppable: true}
	in := newInterrupts(halt)
	defer in.stop()
	in.grace = time.Hour

	ctx, release := in.play(context.Background())
	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return halt.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, ctx.Err(), "the pass keeps running while streams wind down")
	assert.True(t, in.interrupted())

	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), halt.stops.Load())

	release()
	assert.Equal(t, int32(1), halt.resumes.Load())

	next, release := in.play(context.Background())
	defer release()
	assert.NoError(t, next.Err())
	assert.False(t, in.interrupted())
}

func TestInterrupts_GraceCancelsStoppedPass(t *testing.T) {
	halt := &fakeStopper{stoppable: true}
	in := newInterrupts(halt)
	defer in.stop()
	in.grace = 20 * time.Millisecond

	ctx, release := in.play(context.Background())
	defer release()
	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), halt.stops.Load())
}

func TestInterrupts_CancelsWhenNothingStops(t *testing.T) {
	halt := &fakeStopper{}
	in := newInterrupts(halt)
	defer in.stop()
	in.grace = time.Hour

	ctx, release := in.play(context.Background())
	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	release()
	assert.Equal(t, int32(1), halt.resumes.Load())
}

func TestInterrupts_PromptPassIgnoresStopper(t *testing.T) {
	halt := &fakeStopper{stoppable: true}
	in := newInterrupts(halt)
	defer in.stop()

	ctx, release := in.pass(context.Background())
	defer release()
	in.ch <- os.Interrupt
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.Zero(t, halt.stops.Load())
}

type stoppableEngine struct{ fakeStopper }

func (*stoppableEngine) Play(context.Context) (*domain.Status, error) { return &domain.Status{Done: true}, nil }

func (*stoppableEngine) ResolveAssistance(context.Context, []int) (*domain.Status, error) {
	return &domain.Status{}, nil
}

func (*stoppableEngine) Save(context.Context, string) error { return nil }

func TestNew_EngineIsTheDefaultStopper(t *testing.T) {
	eng := &stoppableEngine{}
	assert.Same(t, eng, New(eng).stopper)

	other := &fakeStopper{}
	assert.Same(t, other, New(eng, WithStopper(other)).stopper)
}
