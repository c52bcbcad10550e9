package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/tyler180/espn-league-backend/internal/espn"
	"github.com/tyler180/espn-league-backend/internal/logging"
)

// MissingConfigMessage is what the caller sees when a required value is unset.
const MissingConfigMessage = "Missing env vars. Set LEAGUE_ID, SEASON_ID (optional), ESPN_S2, SWID."

const DefaultServiceName = "espn-league"

var ErrMissingConfig = crerr.New(MissingConfigMessage)

// Config is the explicit parameter object handed to the handler; nothing
// below this package reads the environment.
type Config struct {
	LeagueID        string `validate:"required"`
	SeasonID        int    `validate:"gte=0"` // 0 = not requested
	EspnS2          string `validate:"required"`
	SWID            string `validate:"required"`
	SecretID        string
	FallbackSeasons []int    `validate:"min=1,dive,gt=0"`
	Hosts           []string `validate:"min=1,dive,url"`
	DetectRedirects bool
	HTTPTimeout     time.Duration `validate:"gt=0"`
	SnapshotTable   string
	LogLevel        logging.Level
	ServiceName     string
	// UptraceDSN, or failing that OTLPEndpoint, enables span export.
	UptraceDSN   string
	OTLPEndpoint string
	// SeasonIDInvalid is set when SEASON_ID was present but not a year.
	SeasonIDInvalid string `validate:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LookupFunc reads one named value; os.Getenv in production.
type LookupFunc func(string) string

// FromEnv loads from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load reads every setting through get. Required values are not checked
// here (see Validate) so a missing cookie can still be filled from Secrets
// Manager first. Malformed optional values are errors.
func Load(get LookupFunc) (Config, error) {
	env := func(k, def string) string {
		if v := strings.TrimSpace(get(k)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		LeagueID:      env("LEAGUE_ID", ""),
		EspnS2:        env("ESPN_S2", ""),
		SWID:          env("SWID", ""),
		SecretID:      env("ESPN_SECRET_ID", ""),
		Hosts:         splitList(env("ESPN_HOSTS", strings.Join(espn.DefaultHosts, ","))),
		SnapshotTable: env("SNAPSHOT_TABLE_NAME", ""),
		LogLevel:      logging.ParseLevel(env("LOG_LEVEL", "info")),
		ServiceName:   env("OTEL_SERVICE_NAME", DefaultServiceName),
		UptraceDSN:    env("UPTRACE_DSN", ""),
		OTLPEndpoint:  env("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", env("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
	}

	if raw := env("SEASON_ID", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.SeasonID = n
		} else {
			cfg.SeasonIDInvalid = raw
		}
	}

	seasons, err := ParseSeasons(env("FALLBACK_SEASONS", ""))
	if err != nil {
		return Config{}, crerr.Wrap(err, "parse FALLBACK_SEASONS")
	}
	if len(seasons) == 0 {
		seasons = append([]int(nil), espn.DefaultFallbackSeasons...)
	}
	cfg.FallbackSeasons = seasons

	cfg.DetectRedirects, err = strconv.ParseBool(env("DETECT_REDIRECTS", "true"))
	if err != nil {
		return Config{}, crerr.Wrap(err, "parse DETECT_REDIRECTS")
	}

	cfg.HTTPTimeout, err = time.ParseDuration(env("HTTP_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, crerr.Wrap(err, "parse HTTP_TIMEOUT")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, crerr.New("HTTP_TIMEOUT must be > 0")
	}

	return cfg, nil
}

// Validate reports ErrMissingConfig when the league id or either cookie is
// unset, and a plain validation error for anything else out of range.
func (c Config) Validate() error {
	if c.LeagueID == "" || !c.Credentials().Complete() {
		return ErrMissingConfig
	}
	if err := validate.Struct(c); err != nil {
		return crerr.Wrap(err, "invalid configuration")
	}
	return nil
}

func (c Config) Credentials() espn.Credentials {
	return espn.Credentials{SWID: c.SWID, EspnS2: c.EspnS2}
}

// ResolveOptions builds the resolver input, with season overriding SeasonID
// when positive.
func (c Config) ResolveOptions(season int) espn.Options {
	requested := c.SeasonID
	if season > 0 {
		requested = season
	}
	return espn.Options{
		LeagueID:        c.LeagueID,
		Credentials:     c.Credentials(),
		RequestedSeason: requested,
		FallbackSeasons: append([]int(nil), c.FallbackSeasons...),
		Hosts:           append([]string(nil), c.Hosts...),
		DetectRedirects: c.DetectRedirects,
	}
}

// ParseSeasons reads a comma separated list of years.
func ParseSeasons(raw string) ([]int, error) {
	var out []int
	for _, tok := range splitList(raw) {
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return nil, crerr.Newf("invalid season %q", tok)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
