package espn

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tyler180/espn-league-backend/internal/logging"
)

const maxBodyBytes = 16 << 20

var (
	ErrMissingLeagueID    = crerr.New("espn: league id is required")
	ErrMissingCredentials = crerr.New("espn: SWID and espn_s2 are required")
)

const tracerName = "espn-league-backend/internal/espn"

// documentAPI keeps numbers as json.Number so ids round-trip unchanged.
var documentAPI = sonic.Config{UseNumber: true}.Froze()

// Options is everything one resolution needs; nothing is read from the
// process environment here.
type Options struct {
	LeagueID        string
	Credentials     Credentials
	RequestedSeason int // 0 = not requested
	FallbackSeasons []int
	Hosts           []string
	DetectRedirects bool
}

// Resolution is the first candidate that produced a JSON object.
type Resolution struct {
	Document map[string]any
	Season   int
	Host     string
	Tried    []Candidate
}

// ExhaustedError is returned when every candidate failed.
type ExhaustedError struct {
	Detail string
	Last   *Diagnostic
	Tried  []Candidate
}

func (e *ExhaustedError) Error() string {
	if e.Detail == "" {
		return "ESPN fetch failed"
	}
	return "ESPN fetch failed: " + e.Detail
}

// Seasons lists the distinct seasons that were tried, in trial order.
func (e *ExhaustedError) Seasons() []int {
	return seasonsOf(e.Tried)
}

type ResolverConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *logging.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Resolver walks (season, host) candidates until ESPN hands back league JSON.
type Resolver struct {
	follow   *http.Client
	noFollow *http.Client
	logger   *logging.Logger
	tracer   trace.Tracer
}

func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	follow, noFollow := httpClients(cfg.HTTPClient, cfg.Timeout, tp)
	return &Resolver{
		follow:   follow,
		noFollow: noFollow,
		logger:   logger,
		tracer:   tp.Tracer(tracerName),
	}
}

// Resolve tries candidates strictly in order and stops at the first one whose
// body parses as a JSON object. Per-candidate failures only update the last
// diagnostic.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (Resolution, error) {
	if strings.TrimSpace(opts.LeagueID) == "" {
		return Resolution{}, ErrMissingLeagueID
	}
	if !opts.Credentials.Complete() {
		return Resolution{}, ErrMissingCredentials
	}

	fallbacks := opts.FallbackSeasons
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackSeasons
	}
	cands := Candidates(Seasons(opts.RequestedSeason, fallbacks), opts.Hosts)

	var last *Diagnostic
	for i, c := range cands {
		doc, diag := r.attempt(ctx, c, opts, i+1)
		if diag == nil {
			return Resolution{Document: doc, Season: c.Season, Host: c.Host, Tried: cands[:i+1]}, nil
		}
		last = diag
	}

	out := &ExhaustedError{Last: last, Tried: cands}
	if last != nil {
		out.Detail = last.Message
	}
	return Resolution{}, out
}

// attempt fetches one candidate inside its own span; the outcome is logged
// with that span's context so log lines join the trace.
func (r *Resolver) attempt(ctx context.Context, c Candidate, opts Options, n int) (doc map[string]any, diag *Diagnostic) {
	ctx, span := r.tracer.Start(ctx, "espn.league.attempt", trace.WithAttributes(
		attribute.Int("espn.season", c.Season),
		attribute.String("espn.host", c.Host),
		attribute.Int("espn.attempt", n),
	))
	defer func() {
		if diag != nil {
			span.SetAttributes(attribute.String("espn.failure", diag.Kind.String()))
			span.SetStatus(codes.Error, diag.Message)
			r.logger.WarnContext(ctx, "espn candidate failed",
				"league_id", opts.LeagueID, "season", c.Season, "host", c.Host, "attempt", n,
				"kind", diag.Kind.String(), "detail", diag.Message, "page_title", diag.PageTitle)
		} else {
			r.logger.InfoContext(ctx, "espn league resolved",
				"league_id", opts.LeagueID, "season", c.Season, "host", c.Host, "attempt", n)
		}
		span.End()
	}()

	target := LeagueURL(c.Host, c.Season, opts.LeagueID)

	client := r.follow
	if opts.DetectRedirects {
		client = r.noFollow
	}
	resp, err := r.get(ctx, client, target, opts.Credentials)
	if err != nil {
		return nil, transportDiagnostic(c, err)
	}
	defer resp.Body.Close()

	if opts.DetectRedirects && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, redirectDiagnostic(c, resp.StatusCode, resp.Header.Get("Location"))
	}

	// A pre-flight that did not redirect already is the final response.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportDiagnostic(c, crerr.Wrap(err, "read body"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpDiagnostic(c, resp.StatusCode, body)
	}

	doc, err = decodeDocument(body)
	if err != nil {
		return nil, parseDiagnostic(c, body)
	}
	return doc, nil
}

func (r *Resolver) get(ctx context.Context, client *http.Client, target string, creds Credentials) (*http.Response, error) {
	req, err := newLeagueRequest(ctx, target, creds)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// decodeDocument accepts only a JSON object; arrays, scalars and null are
// not league data.
func decodeDocument(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := documentAPI.Unmarshal(body, &doc); err != nil {
		return nil, crerr.Wrap(err, "decode league document")
	}
	if doc == nil {
		return nil, crerr.New("league document is null")
	}
	return doc, nil
}
