package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cascadehq/cascade/pkg/aggregation"
	pkgcmd "github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/retry"
	"github.com/cascadehq/cascade/pkg/web"
	"github.com/cascadehq/cascade/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// APIConfig carries the resolved CLI flags for the API server.
type APIConfig struct {
	DatabaseURL             string
	RedisURL                string
	EventBus                string
	KafkaBrokers            []string
	LockTTL                 time.Duration
	CallbackCorrelationPath string
	CallbackExecutionPath   string
}

// API hosts the HTTP surface over a full engine wiring. The orchestrator is
// the execution controller behind the control endpoints and the aggregation
// service is the sink behind callback ingress.
type API struct {
	logger *slog.Logger
	store  persistence.Persistence
	bus    eventbus.EventBus
	orch   *workflow.Orchestrator
	app    *fiber.App
}

func NewAPI(ctx context.Context, logger *slog.Logger, instanceID string, config APIConfig) (*API, error) {
	store, err := pkgcmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, rawPub, _, err := pkgcmd.NewEventBus(config.EventBus, logger, config.KafkaBrokers, "cascade-api")
	if err != nil {
		return nil, err
	}

	locker, err := pkgcmd.NewLocker(config.RedisURL, instanceID)
	if err != nil {
		return nil, err
	}

	reg := registry.NewDefaultRegistry(logger, rawPub, http.DefaultClient, nil)
	dispatcher := reg.Dispatcher(logger)

	agg := aggregation.NewService(logger, store.WaitStateRepository())
	orch := workflow.NewOrchestrator(logger, store, dispatcher, agg, locker, bus, instanceID, config.LockTTL)
	agg.SetResumer(orch)

	// Retry rows scheduled here are picked up by worker sweeps.
	scheduler := retry.NewScheduler(logger, store.RetryScheduleRepository(), orch, instanceID, 5*time.Minute, 10*time.Second)
	orch.SetRetryPlanner(scheduler)

	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewHandlers(store, orch, agg, validate)
	handlers.SetCallbackConfig(web.CallbackConfig{
		CorrelationIDPath: config.CallbackCorrelationPath,
		ExecutionIDPath:   config.CallbackExecutionPath,
	})

	return &API{
		logger: logger,
		store:  store,
		bus:    bus,
		orch:   orch,
		app:    web.NewApp(handlers),
	}, nil
}

// Start serves HTTP until the context is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- a.app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := a.app.Shutdown(); err != nil {
			return err
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

func (a *API) Close() {
	a.orch.Close()

	if err := a.bus.Close(); err != nil {
		a.logger.Error("Failed to close event bus", "error", err)
	}

	if err := a.store.Close(context.Background()); err != nil {
		a.logger.Error("Failed to close persistence", "error", err)
	}
}
