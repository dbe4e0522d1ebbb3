package config

import "time"

// Signing requires /_image requests to carry an HMAC of url, width and
// quality in the s parameter.
type Signing struct {
	Enabled bool   `yaml:"enabled" env:"HMAC_ENABLED" env-default:"false"`
	Secret  string `yaml:"secret" env:"HMAC_SECRET" env-default:""`
	Salt    string `yaml:"salt" env:"HMAC_SALT" env-default:""`
}

// CacheControl sets the Cache-Control header of successful optimizer
// responses.
type CacheControl struct {
	Enabled bool          `yaml:"enabled" env:"CACHE_CONTROL_ENABLED" env-default:"true"`
	MaxAge  time.Duration `yaml:"max_age" env:"CACHE_CONTROL_MAX_AGE" env-default:"1h"`
}

// ResponseCache keeps optimized images in memory, keyed by request.
type ResponseCache struct {
	Enabled bool          `yaml:"enabled" env:"RESPONSE_CACHE_ENABLED" env-default:"true"`
	TTL     time.Duration `yaml:"ttl" env:"RESPONSE_CACHE_TTL" env-default:"1h"`
}
