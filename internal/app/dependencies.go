package app

import (
	"github.com/campusflow/campusflow/internal/config"
	"github.com/campusflow/campusflow/internal/event_bus"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/apple"
	"github.com/campusflow/campusflow/pkg/calendar"
	"github.com/campusflow/campusflow/pkg/calendar_sync"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/google"
	"github.com/campusflow/campusflow/pkg/source"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"github.com/campusflow/campusflow/pkg/sync_scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	EventRepo    *event.RepositoryImpl
	EventService *event.ServiceImpl
	EventHandler *event.Handler

	SourceReader *source.ReaderImpl

	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler

	SyncConfigService *sync_config.ServiceImpl
	SyncConfigHandler *sync_config.Handler

	GoogleAdapter *google.Adapter
	GoogleHandler *google.Handler
	AppleAdapter  *apple.Adapter

	Orchestrator *calendar_sync.Orchestrator
	SyncHandler  *calendar_sync.Handler
	Scheduler    *sync_scheduler.Scheduler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.EventRepo = event.NewRepository(db)
	deps.EventService = event.NewService(deps.EventRepo, deps.EventBus, deps.Clock)
	deps.EventHandler = event.NewHandler(deps.EventService)

	sealer, err := sync_config.NewSealer(cfg.Secrets.Key)
	if err != nil {
		return nil, err
	}
	deps.SyncConfigService = sync_config.NewService(sync_config.NewRepository(db), sealer, deps.Clock)
	deps.SyncConfigHandler = sync_config.NewHandler(deps.SyncConfigService)

	deps.SourceReader = source.NewReader(db)
	deps.CalendarService = calendar.NewService(calendar.NewAggregator(deps.EventRepo, deps.SourceReader), deps.SyncConfigService)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	deps.GoogleAdapter, err = google.NewAdapter(cfg, deps.Clock)
	if err != nil {
		return nil, err
	}
	deps.GoogleHandler = google.NewHandler(deps.GoogleAdapter, deps.SyncConfigService)
	deps.AppleAdapter, err = apple.NewAdapter(cfg, deps.Clock)
	if err != nil {
		return nil, err
	}

	retry := connector.RetryPolicy{
		MaxAttempts:     cfg.Sync.RetryAttempts,
		InitialInterval: cfg.Sync.RetryInitialInterval,
		MaxInterval:     cfg.Sync.RetryMaxInterval,
	}
	deps.Orchestrator = calendar_sync.NewOrchestrator(deps.SyncConfigService, deps.EventRepo, deps.Clock,
		connector.New(deps.GoogleAdapter, retry, deps.Clock),
		connector.New(deps.AppleAdapter, retry, deps.Clock),
	)
	deps.SyncHandler = calendar_sync.NewHandler(deps.Orchestrator)

	deps.Scheduler = sync_scheduler.New(cfg, deps.SyncConfigService, deps.Orchestrator, deps.EventBus)

	return deps, nil
}
