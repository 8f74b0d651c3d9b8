package main

import (
	"context"
	"os"
	"time"

	"github.com/cascadehq/cascade/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "cascade-worker",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow execution engine worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed execution lock (in-process lock when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, memory)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "consumer-group",
				Usage:   "Kafka consumer group shared by worker instances",
				Value:   "cascade-worker",
				Sources: cli.EnvVars("CONSUMER_GROUP"),
			},
			&cli.StringSliceFlag{
				Name:    "ingress-topics",
				Usage:   "External topics watched for correlated queue events",
				Sources: cli.EnvVars("INGRESS_TOPICS"),
			},
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Execution lock lease duration",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Interval between recovery sweep passes",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "stuck-threshold",
				Usage:   "Inactivity before a running execution counts as stuck",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("STUCK_THRESHOLD"),
			},
			&cli.DurationFlag{
				Name:    "fail-threshold",
				Usage:   "Additional stuck time before force-failing an execution",
				Value:   30 * time.Minute,
				Sources: cli.EnvVars("FAIL_THRESHOLD"),
			},
			&cli.DurationFlag{
				Name:    "retry-interval",
				Usage:   "Interval between retry scheduler sweeps",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("RETRY_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "retry-stale-claim",
				Usage:   "Age after which another instance may reclaim an in-progress retry",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("RETRY_STALE_CLAIM"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("cascade-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Cascade worker")

			worker, err := NewWorker(ctx, logger, workerID, WorkerConfig{
				DatabaseURL:     command.String("database-url"),
				RedisURL:        command.String("redis-url"),
				EventBus:        command.String("event-bus"),
				KafkaBrokers:    command.StringSlice("kafka-brokers"),
				ConsumerGroup:   command.String("consumer-group"),
				IngressTopics:   command.StringSlice("ingress-topics"),
				LockTTL:         command.Duration("lock-ttl"),
				SweepInterval:   command.Duration("sweep-interval"),
				StuckThreshold:  command.Duration("stuck-threshold"),
				FailThreshold:   command.Duration("fail-threshold"),
				RetryInterval:   command.Duration("retry-interval"),
				RetryStaleClaim: command.Duration("retry-stale-claim"),
			})
			if err != nil {
				return err
			}

			return worker.Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cascade-worker").Error("Worker terminated", "error", err)
		os.Exit(1)
	}
}
