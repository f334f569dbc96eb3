package api

import (
	"log/slog"

	"github.com/shaiso/Conductor/internal/agents"
	"github.com/shaiso/Conductor/internal/manifest"
	"github.com/shaiso/Conductor/internal/progress"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/runner"
)

// Handler — главный обработчик API с зависимостями.
//
// RunRepo и ScheduleRepo опциональны: без БД история runs живёт только
// в памяти процесса, а endpoints schedules возвращают 503.
type Handler struct {
	runner       *runner.Runner
	recorder     *progress.Recorder
	manifests    *manifest.Loader
	validateOpts *manifest.ValidateOptions
	runRepo      *repo.RunRepo
	scheduleRepo *repo.ScheduleRepo
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runner       *runner.Runner
	Recorder     *progress.Recorder
	Manifests    *manifest.Loader
	Registry     *agents.Registry
	RunRepo      *repo.RunRepo
	ScheduleRepo *repo.ScheduleRepo
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = agents.Default()
	}
	return &Handler{
		runner:       cfg.Runner,
		recorder:     cfg.Recorder,
		manifests:    cfg.Manifests,
		validateOpts: &manifest.ValidateOptions{KnownAgent: registry.Known},
		runRepo:      cfg.RunRepo,
		scheduleRepo: cfg.ScheduleRepo,
		logger:       logger,
	}
}
