package cache

import (
	"time"

	"github.com/stellarpay/starbridge/pkg/domain"
)

// RateCache caches aggregated rates per currency pair with a TTL.
// Implementations must treat a missing key as (nil, nil).
type RateCache interface {
	Get(key string) (*domain.AggregatedRate, error)
	Set(key string, rate *domain.AggregatedRate, ttl time.Duration) error
	Delete(key string) error
}
