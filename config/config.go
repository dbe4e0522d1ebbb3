package config

import (
	"errors"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server        Server        `yaml:"server"`
	Log           Log           `yaml:"log"`
	Session       Session       `yaml:"session"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	Signing       Signing       `yaml:"signing"`
	Storage       Storage       `yaml:"storage"`
	CacheControl  CacheControl  `yaml:"cache_control"`
	ResponseCache ResponseCache `yaml:"response_cache"`
}

// source names the optional YAML file layered under the environment.
type source struct {
	File string `env:"FREEIMAGES_SERVER_CONFIG" env-default:""`
}

// Load reads a .env file when present, then the YAML file named by
// FREEIMAGES_SERVER_CONFIG if set, and finally the environment, which always
// wins.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	var src source
	if err := cleanenv.ReadEnv(&src); err != nil {
		return nil, err
	}
	var cfg Config
	if src.File != "" {
		if err := cleanenv.ReadConfig(src.File, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
