package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      App
	HTTP     HTTP
	Postgres Postgres
	Redis    Redis
	Cache    Cache
	Stats    Stats
	Cart     Cart
	Refresh  Refresh
	Asynq    Asynq
	Alert    Alert
}

type App struct {
	Name           string     `env:"APP_NAME" envDefault:"storefront"`
	Version        string     `env:"APP_VERSION" envDefault:"dev"`
	LogLevel       slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLog      bool       `env:"LOG_PRETTY" envDefault:"false"`
	ProbeAddress   string     `env:"PROBE_LISTEN_ADDRESS" envDefault:":8081"`
	MetricsAddress string     `env:"METRICS_LISTEN_ADDRESS" envDefault:":9090"`
}

type HTTP struct {
	ListenAddress     string        `env:"HTTP_LISTEN_ADDRESS" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogFieldMaxLen    int           `env:"HTTP_LOG_FIELD_MAX_LEN" envDefault:"4096"`
}

// Load reads the environment, after an optional .env file in the working
// directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config

	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	return config, nil
}
