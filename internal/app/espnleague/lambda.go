package espnleague

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tyler180/espn-league-backend/internal/config"
	"github.com/tyler180/espn-league-backend/internal/espn"
	"github.com/tyler180/espn-league-backend/internal/logging"
	"github.com/tyler180/espn-league-backend/internal/observability"
	"github.com/tyler180/espn-league-backend/internal/store"
)

const tracerName = "espn-league-backend/internal/app/espnleague"

// awsClients are built on first successful use and reused by warm
// invocations. A failed load is not cached; the next invocation tries again.
type awsClients struct {
	mu         sync.Mutex
	ddb        *dynamodb.Client
	secrets    *secretsmanager.Client
	loadConfig func(context.Context) (aws.Config, error)
}

var (
	shared  awsClients
	tracing *observability.Tracing
)

// UseTracing registers the provider flushed at the end of each invocation.
func UseTracing(t *observability.Tracing) {
	tracing = t
}

func (c *awsClients) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ddb != nil {
		return nil
	}

	loadConfig := c.loadConfig
	if loadConfig == nil {
		loadConfig = func(ctx context.Context) (aws.Config, error) {
			return awsconfig.LoadDefaultConfig(ctx)
		}
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return crerr.Wrap(err, "load aws config")
	}
	c.ddb = dynamodb.NewFromConfig(cfg)
	c.secrets = secretsmanager.NewFromConfig(cfg)
	return nil
}

// LambdaEntrypoint is the handler registered with lambda.Start. Each
// invocation runs under one server span, continuing any trace context the
// caller sent, and buffered spans are flushed before returning.
func LambdaEntrypoint(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(ev.Headers))
	ctx, span := tracing.TracerProvider().Tracer(tracerName).Start(ctx, "espn.league.invoke", trace.WithSpanKind(trace.SpanKindServer))

	out := invoke(ctx, ev)

	span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
	if out.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(out.StatusCode))
	}
	span.End()
	if err := tracing.Flush(ctx); err != nil {
		logging.Default().WarnContext(ctx, "flush spans", "err", err)
	}
	return out, nil
}

// invoke reads config on every call so a missing value is reported per
// request.
func invoke(ctx context.Context, ev events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	cfg, err := config.FromEnv()
	logger := logging.NewJSON(cfg.LogLevel)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("aws_request_id", lc.AwsRequestID)
	}
	defer logger.Sync()

	if err != nil {
		logger.ErrorContext(ctx, "load configuration", "err", err)
		h := &Handler{Logger: logger}
		return toAPIGateway(h.encode(http.StatusInternalServerError, ErrorBody{Error: err.Error()}))
	}
	if cfg.SeasonIDInvalid != "" {
		logger.WarnContext(ctx, "ignoring SEASON_ID", "value", cfg.SeasonIDInvalid)
	}

	h := &Handler{
		Config: cfg,
		Resolver: espn.NewResolver(espn.ResolverConfig{
			Timeout:        cfg.HTTPTimeout,
			Logger:         logger,
			TracerProvider: tracing.TracerProvider(),
		}),
		Logger: logger,
	}

	if cfg.SecretID != "" || cfg.SnapshotTable != "" {
		if err := shared.load(ctx); err != nil {
			logger.WarnContext(ctx, "aws config unavailable", "err", err)
		} else {
			h.Config, err = config.ResolveCredentials(ctx, shared.secrets, cfg)
			if err != nil {
				logger.WarnContext(ctx, "read espn cookies from secrets manager", "secret_id", cfg.SecretID, "err", err)
			}
			if cfg.SnapshotTable != "" {
				h.Archive = &store.Archive{DB: shared.ddb, Table: cfg.SnapshotTable}
			}
		}
	}

	return toAPIGateway(h.Handle(ctx, RequestFromQuery(ev.QueryStringParameters, logger)))
}

// RequestFromQuery picks up the optional ?season= override.
func RequestFromQuery(q map[string]string, logger *logging.Logger) Request {
	raw := strings.TrimSpace(q["season"])
	if raw == "" {
		return Request{}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Warn("ignoring season query parameter", "value", raw)
		return Request{}
	}
	return Request{Season: n}
}

func toAPIGateway(r Response) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: r.StatusCode,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(r.Body),
	}
}
