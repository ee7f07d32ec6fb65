// Package main is the worker process serving one published flow version.
// The API starts it through its worker pool, one process per published flow.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowstudio/pkg/cmd"
	"github.com/dukex/flowstudio/pkg/execution"
	"github.com/dukex/flowstudio/pkg/log"
	"github.com/dukex/flowstudio/pkg/notify"
	"github.com/dukex/flowstudio/pkg/worker"
	"github.com/dukex/flowstudio/pkg/workerpool"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:  "flowstudio-worker",
		Usage: "Serve one published flow version over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "port",
				Usage:    "Port to serve the flow on",
				Required: true,
				Sources:  cli.EnvVars(workerpool.EnvFlowPort),
			},
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Path to the flow snapshot JSON",
				Required: true,
				Sources:  cli.EnvVars(workerpool.EnvFlowConfig),
			},
			&cli.StringFlag{
				Name:    "flow-id",
				Usage:   "Published flow id, defaults to the id in the snapshot",
				Sources: cli.EnvVars(workerpool.EnvFlowID),
			},
			&cli.StringFlag{
				Name:    "flow-version",
				Usage:   "Published flow version, defaults to the version in the snapshot",
				Sources: cli.EnvVars(workerpool.EnvFlowVersion),
			},
			&cli.StringFlag{
				Name:    "flow-name",
				Usage:   "Display name of the flow",
				Sources: cli.EnvVars(workerpool.EnvFlowName),
			},
			&cli.StringFlag{
				Name:    "blob-bucket-url",
				Usage:   "Bucket URL of the file components",
				Sources: cli.EnvVars("BLOB_BUCKET_URL"),
			},
			&cli.BoolFlag{
				Name:    "parallel-execution",
				Usage:   "Run independent nodes of the flow concurrently",
				Sources: cli.EnvVars("PARALLEL_EXECUTION"),
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
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	flow, err := worker.LoadFlow(command.String("config"))
	if err != nil {
		return err
	}

	logger := log.WithModule("flowstudio-worker")

	registry, files, err := cmd.NewRegistry(ctx, logger, cmd.RegistryConfig{
		BlobBucketURL: command.String("blob-bucket-url"),
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

	coordinator := execution.NewCoordinator(registry, worker.NewRunStore(), notify.NewLogSink(logger),
		execution.WithParallel(command.Bool("parallel-execution")),
		execution.WithLogger(logger),
	)

	server, err := worker.NewServer(worker.Config{
		FlowID:  command.String("flow-id"),
		Version: command.String("flow-version"),
		Name:    command.String("flow-name"),
		Flow:    flow,
	}, coordinator, logger)
	if err != nil {
		return err
	}

	return server.Listen(ctx, command.Int("port"))
}
