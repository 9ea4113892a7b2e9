package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr string `env:"APP_ADDR" envDefault:":8080"`
	GinMode string `env:"GIN_MODE"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"./data/logbook.sqlite"`

	CacheDir        string `env:"CACHE_DIR" envDefault:"./data/cache"`
	LegacyDir       string `env:"LEGACY_CACHE_DIR"` // empty means CACHE_DIR
	CacheQuotaBytes int64  `env:"CACHE_QUOTA_BYTES" envDefault:"5242880"`
	StoreQuotaBytes int64  `env:"STORE_QUOTA_BYTES" envDefault:"0"`

	SeatCapacity int    `env:"SEAT_CAPACITY" envDefault:"18"`
	Timezone     string `env:"TIMEZONE" envDefault:"America/Caracas"`

	JWTSecret    string        `env:"JWT_SECRET"`
	JWTTTL       time.Duration `env:"JWT_TTL" envDefault:"12h"`
	RootUsername string        `env:"ROOT_USERNAME" envDefault:"root"`
	RootPassword string        `env:"ROOT_PASSWORD"`

	LogFile  string `env:"LOG_FILE" envDefault:"./logs/app.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	MirroredCollections []string `env:"MIRRORED_COLLECTIONS" envSeparator:","`
}

// LoadEnv reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Env{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Env{}, err
	}
	return cfg, nil
}

// MirrorDir is where the live mirror writes. It is a subdirectory so the
// mirror never overwrites the legacy snapshots migration reads from.
func (e Env) MirrorDir() string {
	return filepath.Join(e.CacheDir, "mirror")
}

// LegacyCacheDir holds the snapshots written before the durable store existed.
func (e Env) LegacyCacheDir() string {
	if strings.TrimSpace(e.LegacyDir) != "" {
		return e.LegacyDir
	}
	return e.CacheDir
}

func (e Env) Validate() error {
	if e.SeatCapacity <= 0 {
		return fmt.Errorf("SEAT_CAPACITY must be positive, got %d", e.SeatCapacity)
	}
	if strings.TrimSpace(e.DBDSN) == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if e.CacheQuotaBytes < 0 || e.StoreQuotaBytes < 0 {
		return fmt.Errorf("quota values must not be negative")
	}
	if filepath.Clean(e.LegacyCacheDir()) == filepath.Clean(e.MirrorDir()) {
		return fmt.Errorf("LEGACY_CACHE_DIR must differ from the mirror dir %s", e.MirrorDir())
	}
	return nil
}
