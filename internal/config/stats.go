package config

import "time"

type Stats struct {
	TTL              time.Duration `env:"STATS_TTL" envDefault:"5m"`
	BatchConcurrency int           `env:"STATS_BATCH_CONCURRENCY" envDefault:"16"`
	// Source is "live" or "view-first".
	Source string `env:"STATS_SOURCE" envDefault:"live"`
}

type Cart struct {
	MaxQuantity int `env:"CART_MAX_QUANTITY" envDefault:"99"`
}

type Refresh struct {
	Schedule   string `env:"SOLD_COUNT_REFRESH_SCHEDULE" envDefault:"*/15 * * * *"`
	RunOnStart bool   `env:"SOLD_COUNT_REFRESH_ON_START" envDefault:"false"`
}
