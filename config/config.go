package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// Config holds every runtime knob of the arena service. Values come from the
// environment, optionally primed from a .env file.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":5200"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Empty DATABASE_URL runs with an in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`

	// Gateway bearer token. Empty disables gateway auth.
	GameServiceToken string        `env:"GAME_SERVICE_TOKEN"`
	AuthServiceURL   string        `env:"AUTH_SERVICE_URL"`
	SyncServiceURL   string        `env:"SYNC_SERVICE_URL"`
	SyncEndpointPath string        `env:"SYNC_ENDPOINT_PATH" envDefault:"/api/v1/public/profiles"`
	SyncInterval     time.Duration `env:"SYNC_INTERVAL" envDefault:"1m"`

	R2AccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKey string `env:"R2_ACCESS_KEY_ID"`
	R2Secret    string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket    string `env:"R2_BUCKET_NAME"`

	TickRate               int           `env:"TICK_RATE" envDefault:"60"`
	TournamentTickInterval time.Duration `env:"TOURNAMENT_TICK_INTERVAL" envDefault:"1s"`
	TournamentHealInterval time.Duration `env:"TOURNAMENT_HEAL_INTERVAL" envDefault:"10s"`
	QueueTimeout           time.Duration `env:"QUEUE_TIMEOUT" envDefault:"30s"`
	InviteTimeout          time.Duration `env:"INVITE_TIMEOUT" envDefault:"30s"`
	Countdown              time.Duration `env:"COUNTDOWN" envDefault:"10s"`
	SessionIdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"10m"`
	DeclineCancelThreshold int           `env:"DECLINE_CANCEL_THRESHOLD" envDefault:"3"`
	NoShowRetries          int           `env:"NO_SHOW_RETRIES" envDefault:"3"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, eris.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.TickRate <= 0 || cfg.TickRate > 240 {
		return eris.Errorf("tick rate must be in 1..240, got %d", cfg.TickRate)
	}
	durations := map[string]time.Duration{
		"TOURNAMENT_TICK_INTERVAL": cfg.TournamentTickInterval,
		"TOURNAMENT_HEAL_INTERVAL": cfg.TournamentHealInterval,
		"QUEUE_TIMEOUT":            cfg.QueueTimeout,
		"INVITE_TIMEOUT":           cfg.InviteTimeout,
		"COUNTDOWN":                cfg.Countdown,
		"SESSION_IDLE_TIMEOUT":     cfg.SessionIdleTimeout,
		"SYNC_INTERVAL":            cfg.SyncInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return eris.Errorf("%s must be positive", name)
		}
	}
	if cfg.DeclineCancelThreshold <= 0 {
		return eris.New("DECLINE_CANCEL_THRESHOLD must be positive")
	}
	if cfg.NoShowRetries < 0 {
		return eris.New("NO_SHOW_RETRIES cannot be negative")
	}
	return nil
}

// Origins returns the trimmed, comma-joined CORS origin list.
func (cfg Config) Origins() string {
	parts := strings.Split(cfg.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// R2Enabled reports whether tournament archives can be uploaded.
func (cfg Config) R2Enabled() bool {
	return cfg.R2AccountID != "" && cfg.R2AccessKey != "" && cfg.R2Secret != "" && cfg.R2Bucket != ""
}

// TickInterval is the duration of one simulation tick.
func (cfg Config) TickInterval() time.Duration {
	return time.Second / time.Duration(cfg.TickRate)
}
