// Package reload keeps a hotswap container fresh: it rebuilds the value from
// an external source whenever a trigger fires and publishes the result.
// Triggers are plain signal channels, so Postgres notifications, Kafka
// records and plain tickers all plug into the same Runner.
package reload

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hotswap"
)

// Builder produces the next value to publish. It is called at most once at a
// time, from the Runner's goroutine.
type Builder[T any] func(ctx context.Context) (T, error)

// Runner owns the write side of one container: it consumes trigger signals,
// rebuilds through its Builder, and stores the result. Readers keep loading
// from the container the whole time.
type Runner[T any] struct {
	val      *hotswap.Value[T]
	build    Builder[T]
	debounce time.Duration
	backoff  time.Duration
}

// Option configures a Runner.
type Option[T any] func(*Runner[T])

// WithDebounce sets the minimum gap between rebuilds; triggers arriving
// inside the gap are absorbed. Default 200ms.
func WithDebounce[T any](d time.Duration) Option[T] {
	return func(r *Runner[T]) { r.debounce = d }
}

// WithErrorBackoff sets the base pause after a failed rebuild; the actual
// pause is jittered to 0.5x-1.5x. Default 5s.
func WithErrorBackoff[T any](d time.Duration) Option[T] {
	return func(r *Runner[T]) { r.backoff = d }
}

func NewRunner[T any](val *hotswap.Value[T], build Builder[T], opts ...Option[T]) *Runner[T] {
	r := &Runner[T]{
		val:      val,
		build:    build,
		debounce: 200 * time.Millisecond,
		backoff:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes the given triggers until ctx is done or every trigger channel
// has closed. Each accepted signal rebuilds and publishes; rebuild errors
// are logged and paused on, never fatal.
func (r *Runner[T]) Run(ctx context.Context, triggers ...<-chan struct{}) {
	sig := merge(triggers...)
	var lastRebuild time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reload runner stopped")
			return
		case _, ok := <-sig:
			if !ok {
				log.Info().Msg("reload triggers exhausted")
				return
			}
			if time.Since(lastRebuild) < r.debounce {
				continue // absorb notification bursts
			}
			lastRebuild = time.Now()
			if err := r.rebuild(ctx); err != nil {
				pause := jitter(r.backoff)
				log.Error().Err(err).Dur("retry_in", pause).Msg("rebuild failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(pause):
				}
			}
		}
	}
}

func (r *Runner[T]) rebuild(ctx context.Context) error {
	start := time.Now()
	next, err := r.build(ctx)
	if err != nil {
		return err
	}
	r.val.Store(next)
	log.Info().Dur("took", time.Since(start)).Msg("rebuilt and published")
	return nil
}

// merge fans several signal channels into one. The output closes once every
// input has closed.
func merge(triggers ...<-chan struct{}) <-chan struct{} {
	if len(triggers) == 1 {
		return triggers[0]
	}
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, t := range triggers {
		wg.Add(1)
		go func(t <-chan struct{}) {
			defer wg.Done()
			for range t {
				signal(out)
			}
		}(t)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// signal delivers without blocking; a pending signal already says "rebuild".
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
