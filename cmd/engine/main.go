package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marcador/internal/availability"
	"marcador/internal/booking"
	"marcador/internal/catalog"
	"marcador/internal/config"
	"marcador/internal/database"
	"marcador/internal/events"
	"marcador/internal/export"
	"marcador/internal/metrics"
	"marcador/internal/model"
	"marcador/internal/reservation"
	"marcador/internal/schedule"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("MARCADOR_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("load service catalog error")
	}

	sched := schedule.NewStore(cfg.Schedule.Path, cfg.ScheduleCacheWindow(), &logger)

	var rdb *redis.Client
	var cache *availability.Cache
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		cache = availability.NewCache(rdb, cfg.RedisCacheTTL(), &logger)
	}

	store := reservation.NewStore(db, cat, cfg.HoldTTL(), cache, &logger)
	resolver := availability.NewResolver(sched, cat, store, cache, &logger)

	bus := events.NewEventBus()
	subscribeEventLog(bus, &logger)
	engine := booking.NewEngine(resolver, store, cat, bus, booking.Options{
		ReserveEvery: cfg.ReserveEvery(),
		ReserveBurst: cfg.Booking.ReserveBurst,
		SingleActive: cfg.Booking.SingleActive,
	}, &logger)
	exporter := export.NewExporter(store, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := reservation.NewSweeper(store, cfg.SweepInterval(), &logger)
	sweeper.OnExpired = func(res *model.Reservation) {
		payload, err := json.Marshal(res)
		if err != nil {
			return
		}
		bus.Publish(events.Event{Type: events.TypeReservationExpired, Key: res.Key, Payload: payload})
	}
	go sweeper.Run(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, engine, exporter, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("booking engine started")
	<-ctx.Done()
	logger.Info().Msg("booking engine stopped")
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	for _, eventType := range []string{
		events.TypeReservationCreated,
		events.TypeReservationConfirmed,
		events.TypeReservationCancelled,
		events.TypeReservationRescheduled,
		events.TypeReservationExpired,
	} {
		bus.Subscribe(eventType, func(ev events.Event) error {
			logger.Info().Str("event_id", ev.ID).Str("type", ev.Type).Str("key", ev.Key).Msg("booking event")
			return nil
		})
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, engine *booking.Engine, exporter *export.Exporter, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/slots", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		service := r.URL.Query().Get("service")
		slots, err := engine.GenerateSlots(r.Context(), date, service)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"date": date, "service": service, "slots": slots})
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		service := r.URL.Query().Get("service")
		day, err := engine.NextAvailable(r.Context(), service, r.URL.Query().Get("from"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if day == nil {
			http.Error(w, "no availability in window", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(day)
	})
	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename=reservations.xlsx")
		if _, err := exporter.WriteReport(r.Context(), w, from, to); err != nil {
			logger.Error().Err(err).Msg("export failed")
		}
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.Ping(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
