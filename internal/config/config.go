package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"chargemirror"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"chargemirror"`
	}

	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}

	Upstream struct {
		BaseURL string        `envconfig:"UPSTREAM_BASE_URL" default:"https://api.stripe.com"`
		Timeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
	}

	Sync struct {
		// Horizon is the earliest charge creation date the engine will ever
		// fetch, regardless of what a caller asks for.
		Horizon  string        `envconfig:"SYNC_HORIZON" default:"2020-01-01"`
		Lookback time.Duration `envconfig:"SYNC_LOOKBACK" default:"168h"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// HorizonTime parses the configured sync horizon date.
func (c *Config) HorizonTime() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.Sync.Horizon)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing sync horizon: %w", err)
	}

	return t.UTC(), nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
