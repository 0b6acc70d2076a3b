package reload

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hotswap"
)

func TestRunnerRebuildsOnTrigger(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := hotswap.New(0)
	defer v.Close()

	var builds atomic.Int32
	r := NewRunner(v, func(context.Context) (int, error) {
		return int(builds.Add(1)), nil
	}, WithDebounce[int](0))

	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, trigger)
		close(done)
	}()

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return v.Get() == 1 }, time.Second, time.Millisecond)

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return v.Get() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestRunnerDebouncesBursts(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := hotswap.New(0)
	defer v.Close()

	var builds atomic.Int32
	r := NewRunner(v, func(context.Context) (int, error) {
		return int(builds.Add(1)), nil
	}, WithDebounce[int](time.Hour))

	trigger := make(chan struct{})
	go r.Run(ctx, trigger)

	for i := 0; i < 10; i++ {
		trigger <- struct{}{}
	}
	assert.Eventually(t, func() bool { return builds.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), builds.Load(), "burst must collapse into one rebuild")
}

func TestRunnerKeepsOldValueOnBuildError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := hotswap.New(7)
	defer v.Close()

	var builds atomic.Int32
	r := NewRunner(v, func(context.Context) (int, error) {
		if builds.Add(1) == 1 {
			return 0, errors.New("source unavailable")
		}
		return 42, nil
	}, WithDebounce[int](0), WithErrorBackoff[int](time.Millisecond))

	trigger := make(chan struct{}, 2)
	go r.Run(ctx, trigger)

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return builds.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 7, v.Get(), "failed rebuild must not disturb the published value")

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return v.Get() == 42 }, time.Second, time.Millisecond)
}

// TestRunnerRunJoinsInFlightRebuild pins the shutdown contract the app
// wiring relies on: cancellation must not make Run return while a rebuild is
// still publishing. A build that was already underway when the context was
// cancelled still stores its result before Run returns, so waiting for Run
// makes it safe to Close the container afterwards.
func TestRunnerRunJoinsInFlightRebuild(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := hotswap.New(0)

	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner(v, func(context.Context) (int, error) {
		close(entered)
		<-release
		return 1, nil
	}, WithDebounce[int](0))

	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, trigger)
		close(done)
	}()

	trigger <- struct{}{}
	<-entered

	// Shutdown lands mid-rebuild.
	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a rebuild was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the rebuild finished")
	}

	// The in-flight rebuild published before Run returned; closing now
	// cannot race a Store.
	assert.Equal(t, 1, v.Get())
	assert.NotPanics(t, func() { v.Close() })
}

func TestRunnerStopsWhenTriggersClose(t *testing.T) {
	t.Parallel()
	v := hotswap.New(0)
	defer v.Close()

	r := NewRunner(v, func(context.Context) (int, error) { return 1, nil })
	a := make(chan struct{})
	b := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), a, b)
		close(done)
	}()

	close(a)
	close(b)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after all triggers closed")
	}
}

func TestEvery(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	tick := Every(ctx, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-tick:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("ticker trigger never fired")
		}
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-tick
		return !ok
	}, time.Second, time.Millisecond, "trigger must close on cancel")
}
