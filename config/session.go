package config

import "time"

type Session struct {
	Secret string        `yaml:"secret" env:"SESSION_SECRET" env-default:""`
	TTL    time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"24h"`
	Secure bool          `yaml:"secure" env:"SESSION_SECURE" env-default:"false"`
}

type RateLimit struct {
	LoginRate  float64 `yaml:"login_rate" env:"LOGIN_RATE" env-default:"0.2"`
	LoginBurst int     `yaml:"login_burst" env:"LOGIN_BURST" env-default:"5"`
}
