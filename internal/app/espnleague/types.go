package espnleague

import (
	"context"

	"github.com/tyler180/espn-league-backend/internal/espn"
	"github.com/tyler180/espn-league-backend/internal/league"
)

// FetchFailed is the error text for an exhausted resolution.
const FetchFailed = "ESPN fetch failed"

type Resolver interface {
	Resolve(ctx context.Context, opts espn.Options) (espn.Resolution, error)
}

// Archiver receives each successful body; nil disables archiving.
type Archiver interface {
	PutLeague(ctx context.Context, leagueID, host string, body league.League) error
}

// Request carries per-invocation overrides.
type Request struct {
	Season int // 0 = use SEASON_ID
}

// Response is always JSON.
type Response struct {
	StatusCode int
	Body       []byte
}

type FailureBody struct {
	Error        string  `json:"error"`
	Detail       *string `json:"detail"`
	TriedSeasons []int   `json:"triedSeasons"`
}

type ErrorBody struct {
	Error string `json:"error"`
}
