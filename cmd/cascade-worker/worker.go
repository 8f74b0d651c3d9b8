package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cascadehq/cascade/pkg/aggregation"
	pkgcmd "github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	kafkaingress "github.com/cascadehq/cascade/pkg/ingress/kafka"
	"github.com/cascadehq/cascade/pkg/otelhelper"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/retry"
	"github.com/cascadehq/cascade/pkg/sweeper"
	"github.com/cascadehq/cascade/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WorkerConfig carries the resolved CLI flags for one worker instance.
type WorkerConfig struct {
	DatabaseURL     string
	RedisURL        string
	EventBus        string
	KafkaBrokers    []string
	ConsumerGroup   string
	IngressTopics   []string
	LockTTL         time.Duration
	SweepInterval   time.Duration
	StuckThreshold  time.Duration
	FailThreshold   time.Duration
	RetryInterval   time.Duration
	RetryStaleClaim time.Duration
}

// Worker owns the full engine wiring of one instance: orchestrator,
// aggregation, retry scheduler, recovery sweeper and the two inbound
// surfaces (lifecycle bus, queue ingress).
type Worker struct {
	id        string
	logger    *slog.Logger
	config    WorkerConfig
	store     persistence.Persistence
	orch      *workflow.Orchestrator
	scheduler *retry.Scheduler
	sweep     *sweeper.Sweeper
	bus       eventbus.EventBus
	ingress   *kafkaingress.Ingress
	tracer    trace.Tracer
}

func NewWorker(ctx context.Context, logger *slog.Logger, workerID string, config WorkerConfig) (*Worker, error) {
	store, err := pkgcmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, rawPub, rawSub, err := pkgcmd.NewEventBus(config.EventBus, logger, config.KafkaBrokers, config.ConsumerGroup)
	if err != nil {
		return nil, err
	}

	locker, err := pkgcmd.NewLocker(config.RedisURL, workerID)
	if err != nil {
		return nil, err
	}

	tracer, err := otelhelper.NewTracer(ctx, "cascade-worker")
	if err != nil {
		return nil, err
	}

	reg := registry.NewDefaultRegistry(logger, rawPub, http.DefaultClient, nil)
	dispatcher := reg.Dispatcher(logger)

	agg := aggregation.NewService(logger, store.WaitStateRepository())
	orch := workflow.NewOrchestrator(logger, store, dispatcher, agg, locker, bus, workerID, config.LockTTL)
	agg.SetResumer(orch)

	scheduler := retry.NewScheduler(logger, store.RetryScheduleRepository(), orch, workerID, config.RetryStaleClaim, config.RetryInterval)
	orch.SetRetryPlanner(scheduler)

	sweep := sweeper.New(logger, store, orch, agg, workerID, sweeper.Config{
		Interval:       config.SweepInterval,
		StuckThreshold: config.StuckThreshold,
		FailThreshold:  config.FailThreshold,
	})

	var ingress *kafkaingress.Ingress
	if len(config.IngressTopics) > 0 {
		ingress = kafkaingress.NewIngress(logger, rawSub, agg)
	}

	return &Worker{
		id:        workerID,
		logger:    logger,
		config:    config,
		store:     store,
		orch:      orch,
		scheduler: scheduler,
		sweep:     sweep,
		bus:       bus,
		ingress:   ingress,
		tracer:    tracer,
	}, nil
}

// Run starts every background loop and blocks until the context is
// cancelled or a termination signal arrives.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.bus.Handle(events.WorkflowTriggeredEvent, w.handleWorkflowTriggered); err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return err
	}

	if w.ingress != nil {
		if err := w.ingress.Subscribe(ctx, w.config.IngressTopics); err != nil {
			return err
		}

		w.logger.InfoContext(ctx, "Queue ingress subscribed", "topics", w.config.IngressTopics)
	}

	go func() {
		if err := w.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Retry scheduler stopped", "error", err)
		}
	}()

	if err := w.sweep.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	w.shutdown()

	return nil
}

func (w *Worker) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Unexpected payload for workflow triggered event")
		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.workflow_triggered",
		attribute.String(otelhelper.WorkflowIDKey, triggered.WorkflowID),
		attribute.String(otelhelper.NodeIDKey, triggered.TriggerNodeID),
	)
	defer span.End()

	w.logger.InfoContext(ctx, "Processing workflow triggered event",
		"workflow_id", triggered.WorkflowID,
		"trigger_node_id", triggered.TriggerNodeID,
	)

	exec, err := w.orch.StartExecution(ctx, triggered.WorkflowID, triggered.TriggerNodeID, triggered.TriggerData)
	if err != nil {
		span.RecordError(err)
		w.logger.ErrorContext(ctx, "Workflow execution failed",
			"workflow_id", triggered.WorkflowID,
			"error", err,
		)
		// The failure is recorded on the execution row. Returning nil keeps
		// the bus from redelivering an event the engine already accounted for.
		return nil
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, exec.ID))

	return nil
}

func (w *Worker) shutdown() {
	w.sweep.Stop()
	w.orch.Close()

	if w.ingress != nil {
		if err := w.ingress.Close(); err != nil {
			w.logger.Error("Failed to close queue ingress", "error", err)
		}
	} else if err := w.bus.Close(); err != nil {
		w.logger.Error("Failed to close event bus", "error", err)
	}

	if err := w.store.Close(context.Background()); err != nil {
		w.logger.Error("Failed to close persistence", "error", err)
	}

	w.logger.Info("Worker stopped")
}
