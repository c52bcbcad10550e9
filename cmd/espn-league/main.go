package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/tyler180/espn-league-backend/internal/app/espnleague"
	"github.com/tyler180/espn-league-backend/internal/config"
	"github.com/tyler180/espn-league-backend/internal/logging"
	"github.com/tyler180/espn-league-backend/internal/observability"
)

func main() {
	ctx := context.Background()

	// Per-request settings are re-read by the handler; only tracing and the
	// log level are taken from the cold-start environment.
	cfg, err := config.FromEnv()
	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	if err != nil {
		logger.Warn("load configuration at startup", "err", err)
	}

	tracing, err := observability.InitTracing(ctx, cfg, logger)
	if err != nil {
		logger.Error("init tracing", "err", err)
	}
	espnleague.UseTracing(tracing)

	lambda.StartWithOptions(espnleague.LambdaEntrypoint,
		lambda.WithEnableSIGTERM(func() {
			if err := tracing.Shutdown(context.Background()); err != nil {
				logger.Error("shutdown tracing", "err", err)
			}
		}),
	)
}
