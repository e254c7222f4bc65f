package app

import (
	"context"
	"errors"

	"imagevariants/config"
	"imagevariants/internal/controllers"
	"imagevariants/internal/database"
	"imagevariants/internal/events"
	"imagevariants/internal/handlers/middleware"
	"imagevariants/internal/jobs"
	"imagevariants/internal/queue"
	"imagevariants/internal/repositories"
	"imagevariants/internal/services"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"
	"imagevariants/internal/websockets"
	"imagevariants/pkg/logger"
)

type App struct {
	Database    database.DB
	Config      config.Config
	Middleware  middleware.Middleware
	Websocket   *websockets.Manager
	EventBus    *events.EventBus
	Storage     storage.Storage
	Repos       repositories.Repository
	Services    services.Service
	Controllers controllers.Controllers

	// Producer and Consumer are nil when KAFKA_BROKERS is unset.
	Producer *queue.Producer
	Consumer *queue.Consumer

	cancel context.CancelFunc
	done   chan struct{}
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.New()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	store, err := storage.New(context.Background(), config)
	if err != nil {
		return &App{}, log.Err("failed to create storage", err, "driver", config.StorageDriver)
	}

	eventBus := events.New(db.Cache.Events)
	repos := repositories.New(db)

	var producer *queue.Producer
	var enqueuer services.DerivationEnqueuer
	if queue.Enabled(config) {
		producer = queue.NewProducer(config)
		enqueuer = producer
	}

	svc, err := services.New(db, config, repos, store, eventBus, enqueuer)
	if err != nil {
		return &App{}, log.Err("failed to create services", err)
	}

	if err := jobs.RegisterAllJobs(svc.Scheduler, config, svc); err != nil {
		return &App{}, log.Err("failed to register jobs", err)
	}

	websocket, err := websockets.New(eventBus)
	if err != nil {
		return &App{}, log.Err("failed to create websocket manager", err)
	}

	app := &App{
		Database:    db,
		Config:      config,
		Middleware:  middleware.New(config),
		Websocket:   websocket,
		EventBus:    eventBus,
		Storage:     store,
		Repos:       repos,
		Services:    svc,
		Controllers: controllers.New(svc, enqueuer),
		Producer:    producer,
	}

	if producer != nil {
		app.Consumer = queue.NewConsumer(config, app.handleDerivationRequest)
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

// Start launches the background workers: the job scheduler and, when a
// broker is configured, the derivation consumer.
func (a *App) Start(ctx context.Context) error {
	log := logger.New("app").Function("Start")

	if a.Config.SchedulerEnabled {
		if err := a.Services.Scheduler.Start(ctx); err != nil {
			return log.Err("failed to start scheduler", err)
		}
	}

	if a.Consumer == nil {
		return nil
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := a.Consumer.Run(ctx); err != nil {
			log.Er("derivation consumer exited", err)
		}
	}()

	return nil
}

func (a *App) handleDerivationRequest(ctx context.Context, request types.DerivationRequest) error {
	result, err := a.Services.Derivation.DeriveVariants(ctx, request.ImageID, request.Types)
	if err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		errs := make([]error, 0, len(result.Failures))
		for _, failure := range result.Failures {
			errs = append(errs, failure.Err)
		}
		return errors.Join(errs...)
	}
	return nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	nilChecks := []any{
		a.Websocket,
		a.EventBus,
		a.Storage,
		a.Services.Transaction,
		a.Services.Scheduler,
		a.Services.Derivation,
		a.Services.Deletion,
		a.Services.Family,
		a.Controllers.Images,
		a.Controllers.Admin,
	}

	for _, check := range nilChecks {
		if check == nil {
			return log.ErrMsg("nil check failed")
		}
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	if a.Consumer != nil {
		if closeErr := a.Consumer.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if a.Producer != nil {
		if closeErr := a.Producer.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if a.Websocket != nil {
		if closeErr := a.Websocket.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if a.Services.Scheduler != nil && a.Services.Scheduler.IsRunning() {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
