package config

type Server struct {
	Addr       string `yaml:"addr" env:"LISTEN_ADDR" env-default:":8080"`
	ConfigFile string `yaml:"config_file" env:"FREEIMAGES_CONFIG" env-default:"freeimages.config.json"`
	MaxUpload  int64  `yaml:"max_upload" env:"MAX_UPLOAD_BYTES" env-default:"33554432"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
