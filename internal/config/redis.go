package config

import "time"

// Redis is optional: with an empty address the cache runs in process and
// the order-event consumer is disabled.
type Redis struct {
	Address            string        `env:"REDIS_ADDRESS"`
	Username           string        `env:"REDIS_USERNAME"`
	Password           string        `env:"REDIS_PASSWORD" json:"-"`
	DatabaseNumber     int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize           int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	MinIdleConnections int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxIdleConnections int           `env:"REDIS_MAX_IDLE_CONNS" envDefault:"10"`
	MaxRetries         int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	MinRetryBackoff    time.Duration `env:"REDIS_MIN_RETRY_BACKOFF" envDefault:"50ms"`
	MaxRetryBackoff    time.Duration `env:"REDIS_MAX_RETRY_BACKOFF" envDefault:"2s"`
	DialTimeout        time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"2s"`
}

func (r Redis) Enabled() bool {
	return r.Address != ""
}

type Cache struct {
	DefaultTTL    time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"300s"`
	WatchInterval time.Duration `env:"CACHE_WATCH_INTERVAL" envDefault:"10s"`
}

type Asynq struct {
	Concurrency     int           `env:"ASYNQ_CONCURRENCY" envDefault:"4"`
	Queue           string        `env:"ASYNQ_QUEUE" envDefault:"storefront"`
	ShutdownTimeout time.Duration `env:"ASYNQ_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}
