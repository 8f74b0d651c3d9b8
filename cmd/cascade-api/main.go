package main

import (
	"context"
	"os"
	"time"

	"github.com/cascadehq/cascade/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "cascade-api",
		Usage:                 "Serve the execution query and control API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Execution lock lease duration",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.StringFlag{
				Name:    "callback-correlation-path",
				Usage:   "Body field path resolved for the callback correlation ID",
				Value:   "correlation_id",
				Sources: cli.EnvVars("CALLBACK_CORRELATION_PATH"),
			},
			&cli.StringFlag{
				Name:    "callback-execution-path",
				Usage:   "Body field path resolved for the callback execution ID",
				Value:   "execution_id",
				Sources: cli.EnvVars("CALLBACK_EXECUTION_PATH"),
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

			instanceID := "api-" + uuid.New().String()[:8]
			logger := logger.With("instance_id", instanceID)

			logger.InfoContext(ctx, "Initializing Cascade API")

			api, err := NewAPI(ctx, logger, instanceID, APIConfig{
				DatabaseURL:             command.String("database-url"),
				RedisURL:                command.String("redis-url"),
				EventBus:                command.String("event-bus"),
				KafkaBrokers:            command.StringSlice("kafka-brokers"),
				LockTTL:                 command.Duration("lock-ttl"),
				CallbackCorrelationPath: command.String("callback-correlation-path"),
				CallbackExecutionPath:   command.String("callback-execution-path"),
			})
			if err != nil {
				return err
			}

			defer api.Close()

			return api.Start(ctx, command.Int("port"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("API terminated", "error", err)
		os.Exit(1)
	}
}
