package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicURL string `env:"PUBLIC_URL"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres|memory
	DBDSN    string `env:"DB_DSN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console|json

	AuthHMACSecret string        `env:"AUTH_HMAC_SECRET" envDefault:"supersecret-dev-key"`
	AdminTokenTTL  time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"8h"`
	SheetTokenTTL  time.Duration `env:"SHEET_TOKEN_TTL" envDefault:"2h"`

	EnableLocalAuth bool   `env:"ENABLE_LOCAL_AUTH" envDefault:"true"`
	AdminUser       string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash   string `env:"ADMIN_PASS_HASH" envDefault:"$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"` // bcrypt

	// Password attempts per client and sheet within UnlockWindow.
	UnlockMaxAttempts int           `env:"UNLOCK_MAX_ATTEMPTS" envDefault:"10"`
	UnlockWindow      time.Duration `env:"UNLOCK_WINDOW" envDefault:"15m"`
	SheetCacheTTL     time.Duration `env:"SHEET_CACHE_TTL" envDefault:"1m"`

	// Shared rate-limit counters; in-process counters when empty.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Used when an administrator saves a sheet without a password.
	DefaultSheetPassword string `env:"DEFAULT_SHEET_PASSWORD" envDefault:"assess2024"`

	CORSOriginsOnline  []string `env:"CORS_ORIGINS_ONLINE" envDefault:"https://assess.mindengage.ai"`
	CORSOriginsOffline []string `env:"CORS_ORIGINS_OFFLINE" envDefault:"http://localhost:3000"`

	EnableGoogleAuth   bool     `env:"ENABLE_GOOGLE_AUTH" envDefault:"false"`
	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string   `env:"GOOGLE_REDIRECT_URI"` // defaults to PUBLIC_URL + "/auth/google/callback"
	GoogleAllowedHD    string   `env:"GOOGLE_ALLOWED_HD"`
	AdminEmails        []string `env:"ADMIN_EMAILS"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.PublicURL = strings.TrimSuffix(c.PublicURL, "/")
	if c.GoogleRedirectURI == "" && c.PublicURL != "" {
		c.GoogleRedirectURI = c.PublicURL + "/auth/google/callback"
	}
	c.AdminEmails = trimAll(c.AdminEmails)
	c.CORSOriginsOnline = trimAll(c.CORSOriginsOnline)
	c.CORSOriginsOffline = trimAll(c.CORSOriginsOffline)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		errs = append(errs, fmt.Errorf("MODE: unknown mode %q", c.Mode))
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	if c.UnlockMaxAttempts < 1 {
		errs = append(errs, errors.New("UNLOCK_MAX_ATTEMPTS must be at least 1"))
	}
	if c.AuthHMACSecret == "" {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET is required"))
	}
	if c.EnableGoogleAuth {
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required when ENABLE_GOOGLE_AUTH is set"))
		}
		if c.GoogleRedirectURI == "" {
			errs = append(errs, errors.New("GOOGLE_REDIRECT_URI or PUBLIC_URL is required when ENABLE_GOOGLE_AUTH is set"))
		}
	}
	return errors.Join(errs...)
}

// CORSOrigins returns the allow-list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
