// Package config loads daemon configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all opsyncd settings.
type Config struct {
	DataDir            string        `env:"OPSYNC_DATA_DIR" envDefault:"./data"`
	RemoteBaseURL      string        `env:"OPSYNC_REMOTE_URL,notEmpty"`
	AuthToken          string        `env:"OPSYNC_AUTH_TOKEN"`
	ListenAddr         string        `env:"OPSYNC_LISTEN_ADDR" envDefault:"localhost:8090"`
	DispatchTimeout    time.Duration `env:"OPSYNC_DISPATCH_TIMEOUT" envDefault:"30s"`
	BackgroundInterval time.Duration `env:"OPSYNC_BACKGROUND_INTERVAL" envDefault:"1m"`
	RunTimeout         time.Duration `env:"OPSYNC_RUN_TIMEOUT" envDefault:"5m"`
	LogLevel           string        `env:"OPSYNC_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
