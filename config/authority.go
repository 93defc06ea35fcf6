package config

import (
	"time"

	"github.com/spf13/viper"
)

// Authority configures the collective authority cache
type Authority struct {
	// CacheDriver is "redis" or "memory"
	CacheDriver string
	CacheTTL    time.Duration
}

func getAuthority(v *viper.Viper) *Authority {
	return &Authority{
		CacheDriver: getStringOrDefault(v, "authority.cache.driver", "memory"),
		CacheTTL:    getDurationOrDefault(v, "authority.cache.ttl", 10*time.Minute),
	}
}
