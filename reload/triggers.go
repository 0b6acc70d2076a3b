package reload

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Every returns a trigger that fires once per interval until ctx is done.
// Useful as a fallback revalidation tick behind an event-driven trigger.
func Every(ctx context.Context, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				signal(ch)
			}
		}
	}()
	return ch
}

// PostgresNotify returns a trigger that fires once per notification on the
// given LISTEN channel. The listening connection is re-acquired with a
// jittered reconnect pause after any failure.
func PostgresNotify(ctx context.Context, pool *pgxpool.Pool, channel string, reconnect time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			err := listenOnce(ctx, pool, channel, ch)
			if ctx.Err() != nil {
				return
			}
			pause := jitter(reconnect)
			log.Error().Err(err).Str("channel", channel).Dur("retry_in", pause).Msg("listen connection lost")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pause):
			}
		}
	}()
	return ch
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, channel string, ch chan<- struct{}) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	log.Info().Str("channel", channel).Msg("listening for change notifications")

	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		log.Debug().Str("channel", ntf.Channel).Msg("change notification")
		signal(ch)
	}
}

// KafkaMessages returns a trigger that fires once per record consumed from
// reader. Offsets are committed by the reader's own group semantics; the
// record body is ignored, its arrival is the signal.
func KafkaMessages(ctx context.Context, reader *kafka.Reader) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("kafka read failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			log.Debug().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("change record")
			signal(ch)
		}
	}()
	return ch
}
