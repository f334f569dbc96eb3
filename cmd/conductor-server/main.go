package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/api"
	"github.com/shaiso/Conductor/internal/dispatch"
	"github.com/shaiso/Conductor/internal/manifest"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/policy"
	"github.com/shaiso/Conductor/internal/progress"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/runner"
	"github.com/shaiso/Conductor/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_server_http_requests_total",
		Help: "Total HTTP requests handled by conductor_server",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-server")

	registry := agents.Default()

	manifestDir := os.Getenv("MANIFEST_DIR")
	if manifestDir == "" {
		manifestDir = "manifests"
	}
	// Неизвестный агент отбрасывается при загрузке manifest,
	// а не тремя попытками с backoff во время run.
	loader := manifest.NewLoader(manifestDir, &manifest.ValidateOptions{
		KnownAgent: registry.Known,
	})

	// База данных опциональна: без DB_URL сервер работает in-memory,
	// а schedules-эндпоинты возвращают 503.
	var runRepo *repo.RunRepo
	var scheduleRepo *repo.ScheduleRepo
	var store progress.Store = progress.NewMemoryStore()

	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(context.Background())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("connected to database")

		runRepo = repo.NewRunRepo(pool)
		scheduleRepo = repo.NewScheduleRepo(pool)
		store = repo.NewEventRepo(pool)
	} else if dir := os.Getenv("PROGRESS_DIR"); dir != "" {
		jsonl, err := progress.NewJSONLStore(dir)
		if err != nil {
			logger.Error("failed to open progress log", "error", err, "dir", dir)
			os.Exit(1)
		}
		store = jsonl
		logger.Info("progress log enabled", "dir", dir)
	}

	// RabbitMQ тоже опционален: зеркало прогресса подключается
	// только при наличии MQ_URL.
	var mirror progress.Mirror
	if os.Getenv("MQ_URL") != "" {
		conn, err := mq.NewConnection(mq.URLFromEnv(), logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := mq.SetupTopology(context.Background(), conn); err != nil {
			logger.Error("failed to setup mq topology", "error", err)
			os.Exit(1)
		}
		mirror = mq.NewPublisher(conn, logger)
		logger.Info("progress mirroring enabled")
	}

	recorder := progress.NewRecorder(store, mirror, logger)

	r := runner.New(runner.Config{
		Dispatcher: dispatch.New(0, logger),
		Policy:     policy.New(0, 0, registry, logger),
		Recorder:   recorder,
		Registry:   registry,
		Logger:     logger,
	})

	handler := api.NewHandler(api.Config{
		Runner:       r,
		Recorder:     recorder,
		Manifests:    loader,
		Registry:     registry,
		RunRepo:      runRepo,
		ScheduleRepo: scheduleRepo,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// HTTP сервер с graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
