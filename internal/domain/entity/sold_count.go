package entity

import "time"

// SoldCountSnapshot is one row of the periodically refreshed sold-count view.
type SoldCountSnapshot struct {
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	SoldCount int64     `json:"sold_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoldCountStats summarizes the sold-count view. LastUpdated is nil while
// the view is empty.
type SoldCountStats struct {
	TotalProducts int64      `json:"total_products"`
	TotalSold     int64      `json:"total_sold"`
	LastUpdated   *time.Time `json:"last_updated"`
}

type TopSeller struct {
	Product   Product `json:"product"`
	SoldCount int64   `json:"sold_count"`
}

// CacheStats reports how much of the catalog is currently cached.
type CacheStats struct {
	TotalProducts  int     `json:"total_products"`
	CachedProducts int     `json:"cached_products"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	RedisAvailable bool    `json:"redis_available"`
}
