package espnleague

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/tyler180/espn-league-backend/internal/config"
	"github.com/tyler180/espn-league-backend/internal/espn"
	"github.com/tyler180/espn-league-backend/internal/league"
	"github.com/tyler180/espn-league-backend/internal/logging"
)

type state int

const (
	awaitingCredentials state = iota
	resolving
	responding
)

func (s state) String() string {
	switch s {
	case awaitingCredentials:
		return "awaiting_credentials"
	case resolving:
		return "resolving"
	case responding:
		return "responding"
	default:
		return "unknown"
	}
}

// Handler serves one invocation: validate config, resolve, respond. It holds
// no state between calls.
type Handler struct {
	Config   config.Config
	Resolver Resolver
	Archive  Archiver
	Logger   *logging.Logger
}

// Handle always produces exactly one response; panics in any state become a
// 500 carrying the panic message.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	st := awaitingCredentials
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = crerr.Newf("%v", rec)
			}
			resp = h.unexpected(ctx, st, err)
		}
	}()

	var (
		res     espn.Resolution
		failure error
	)
	for {
		switch st {
		case awaitingCredentials:
			if err := h.Config.Validate(); err != nil {
				h.logger().ErrorContext(ctx, "configuration rejected", "state", st.String(), "err", err)
				return h.encode(http.StatusInternalServerError, ErrorBody{Error: err.Error()})
			}
			st = resolving
		case resolving:
			res, failure = h.Resolver.Resolve(ctx, h.Config.ResolveOptions(req.Season))
			st = responding
		case responding:
			if failure != nil {
				return h.failed(ctx, failure)
			}
			return h.succeeded(ctx, res)
		}
	}
}

func (h *Handler) succeeded(ctx context.Context, res espn.Resolution) Response {
	body := league.Normalize(league.Document(res.Document), res.Season)

	if h.Archive != nil {
		if err := h.Archive.PutLeague(ctx, h.Config.LeagueID, res.Host, body); err != nil {
			h.logger().WarnContext(ctx, "archive league snapshot", "league_id", h.Config.LeagueID, "err", err)
		}
	}
	return h.encode(http.StatusOK, body)
}

func (h *Handler) failed(ctx context.Context, err error) Response {
	var ex *espn.ExhaustedError
	if !crerr.As(err, &ex) {
		return h.unexpected(ctx, responding, err)
	}

	out := FailureBody{Error: FetchFailed, TriedSeasons: ex.Seasons()}
	if ex.Detail != "" {
		detail := ex.Detail
		out.Detail = &detail
	}
	if out.TriedSeasons == nil {
		out.TriedSeasons = []int{}
	}
	h.logger().ErrorContext(ctx, "espn resolution exhausted",
		"league_id", h.Config.LeagueID, "detail", ex.Detail, "tried_seasons", out.TriedSeasons)
	return h.encode(http.StatusInternalServerError, out)
}

func (h *Handler) unexpected(ctx context.Context, st state, err error) Response {
	h.logger().ErrorContext(ctx, "unexpected failure", "state", st.String(), "err", err)
	return h.encode(http.StatusInternalServerError, ErrorBody{Error: err.Error()})
}

func (h *Handler) encode(status int, body any) Response {
	b, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		b, _ = sonic.ConfigStd.Marshal(ErrorBody{Error: fmt.Sprintf("encode response: %v", err)})
		status = http.StatusInternalServerError
	}
	return Response{StatusCode: status, Body: b}
}

func (h *Handler) logger() *logging.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logging.Default()
}
