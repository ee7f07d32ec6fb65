package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowstudio/pkg/cmd"
	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/gateway"
	"github.com/dukex/flowstudio/pkg/log"
	"github.com/dukex/flowstudio/pkg/otelhelper"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/workerpool"
	"github.com/gofiber/fiber/v3/client"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort          = 9091
	defaultWebSocketPort = 9092
	serviceName          = "flowstudio-api"
)

func main() {
	defaults := workerpool.DefaultConfig()

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Build, run and publish flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "websocket-port",
				Usage:   "Port of the execution events WebSocket server",
				Value:   defaultWebSocketPort,
				Sources: cli.EnvVars("WEBSOCKET_PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file://, postgres://, memory://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "notify-redis-url",
				Usage:   "Redis URL to publish execution events to",
				Sources: cli.EnvVars("NOTIFY_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "blob-bucket-url",
				Usage:   "Bucket URL of the file components (file://, mem://, s3://, gs://)",
				Sources: cli.EnvVars("BLOB_BUCKET_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing component plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "worker-binary",
				Usage:   "Path to the flowstudio-worker binary serving published flows",
				Value:   "flowstudio-worker",
				Sources: cli.EnvVars("WORKER_BINARY"),
			},
			&cli.IntFlag{
				Name:    "worker-base-port",
				Usage:   "First port handed to worker processes",
				Value:   defaults.BasePort,
				Sources: cli.EnvVars("WORKER_BASE_PORT"),
			},
			&cli.IntFlag{
				Name:    "worker-max-processes",
				Usage:   "Maximum number of worker processes",
				Value:   defaults.MaxProcesses,
				Sources: cli.EnvVars("WORKER_MAX_PROCESSES"),
			},
			&cli.DurationFlag{
				Name:    "worker-idle-timeout",
				Usage:   "Idle time after which a worker process is stopped",
				Value:   defaults.IdleTimeout,
				Sources: cli.EnvVars("WORKER_IDLE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "parallel-execution",
				Usage:   "Run independent nodes of a flow concurrently",
				Sources: cli.EnvVars("PARALLEL_EXECUTION"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces with OTLP over HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		stop()
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing flowstudio API")

	tracer := otelhelper.NoopTracer()

	if command.Bool("otel-enabled") {
		var err error

		tracer, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return err
		}
	}

	registry, files, err := cmd.NewRegistry(ctx, logger, cmd.RegistryConfig{
		BlobBucketURL: command.String("blob-bucket-url"),
		PluginsPath:   command.String("plugins-path"),
	})
	if err != nil {
		return err
	}

	if files != nil {
		defer func() {
			err := files.Close()
			if err != nil {
				logger.ErrorContext(ctx, "Failed to close file store", "error", err)
			}
		}()
	}

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := store.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	sink, closeSink, err := cmd.NewNotificationSink(logger, eventBus, command.String("notify-redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := closeSink()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close notification sink", "error", err)
		}
	}()

	coordinator := execution.NewCoordinator(registry, store.ExecutionRepository(), sink,
		execution.WithParallel(command.Bool("parallel-execution")),
		execution.WithTracer(tracer),
		execution.WithLogger(logger),
	)

	gw, err := newGateway(ctx, command, tracer, store.FlowRepository(), store.PublicationRepository(), eventBus)
	if err != nil {
		return err
	}

	api := NewAPI(logger, store, registry, eventBus, coordinator, gw)

	return api.Start(ctx, command.Int("port"), command.Int("websocket-port"))
}

func newGateway(
	ctx context.Context,
	command *cli.Command,
	tracer trace.Tracer,
	flows persistence.FlowRepository,
	publications persistence.PublicationRepository,
	publisher eventbus.EventPublisher,
) (*gateway.Gateway, error) {
	logger := log.WithModule("gateway")
	httpClient := client.New()

	pool := workerpool.New(
		workerpool.Config{
			BasePort:     command.Int("worker-base-port"),
			MaxProcesses: command.Int("worker-max-processes"),
			IdleTimeout:  command.Duration("worker-idle-timeout"),
		},
		workerpool.NewExecLauncher(command.String("worker-binary"), "", logger),
		workerpool.NewHTTPProber(httpClient, "127.0.0.1"),
		workerpool.WithLogger(logger),
	)

	err := pool.Start(ctx)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(flows, publications, pool,
		gateway.WithPublisher(publisher),
		gateway.WithClient(httpClient),
		gateway.WithTracer(tracer),
		gateway.WithLogger(logger),
	)

	err = gw.Load(ctx)
	if err != nil {
		pool.Shutdown(ctx)

		return nil, err
	}

	return gw, nil
}
