package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"chatdesk/internal/application"
	"chatdesk/internal/config"
	"chatdesk/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ---- Application ----
	app, err := application.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", zap.Error(err))
		os.Exit(1)
	}

	// Sessions live in this execution environment only; the sweeper runs
	// while the environment is thawed.
	go app.Sweep(ctx)

	lambda.Start(app.Handler().Handle)
}
