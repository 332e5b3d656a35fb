package config

import "time"

// RateLimitConfig configures the limiter on the write routes (join,
// rename, leave, transfer).  Each diner may burst Burst requests per
// route and then gets one more every Refill.
type RateLimitConfig struct {
	Enabled bool
	Burst   int
	Refill  time.Duration
	Prefix  string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Burst:   envInt("RATE_LIMIT_BURST", 10),
		Refill:  envDur("RATE_LIMIT_REFILL", 2*time.Second),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "ts:rl"),
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Refill <= 0 {
		cfg.Refill = time.Second
	}
	return cfg
}
