package config

import "time"

type Storage struct {
	// Endpoint overrides the account's R2 endpoint, e.g. for MinIO.
	Endpoint   string        `yaml:"endpoint" env:"R2_ENDPOINT" env-default:""`
	PresignTTL time.Duration `yaml:"presign_ttl" env:"PRESIGN_TTL" env-default:"1h"`
	CacheTime  int64         `yaml:"cache_time" env:"S3_CACHE_TIME" env-default:"-1"`
}
