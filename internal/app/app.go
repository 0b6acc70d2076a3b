package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"hotswap"
	"hotswap/internal/api"
	"hotswap/internal/config"
	"hotswap/internal/storage"
	"hotswap/metrics"
	"hotswap/reload"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	// Initial snapshot
	initial, err := store.LoadSettings(rootCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("initial settings load")
	}
	val := hotswap.New(initial)
	defer val.Close()
	prometheus.MustRegister(metrics.NewCollector("settings", val))
	log.Info().Int("keys", len(initial.Values)).Str("version", initial.ETag()).Msg("settings published")

	// Reload plumbing: DB notifications plus a periodic fallback tick, and
	// optionally a Kafka change topic.
	triggers := []<-chan struct{}{
		reload.PostgresNotify(rootCtx, store.PgxPool(), cfg.Reload.Channel, cfg.Reconnect()),
		reload.Every(rootCtx, cfg.Tick()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer reader.Close()
		triggers = append(triggers, reload.KafkaMessages(rootCtx, reader))
	}
	runner := reload.NewRunner(val, store.LoadSettings,
		reload.WithDebounce[storage.Settings](cfg.Debounce()),
		reload.WithErrorBackoff[storage.Settings](cfg.Reconnect()),
	)
	runnerDone := make(chan struct{})
	go func() {
		runner.Run(rootCtx, triggers...)
		close(runnerDone)
	}()

	// HTTP
	h := api.NewSettingsHandler(val)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop the reload runner and triggers
	// Wait for the runner: an in-flight rebuild may still publish, and the
	// deferred Close must not run until it has.
	<-runnerDone
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
