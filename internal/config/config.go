package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type ExecConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	WorkRoot       string        `mapstructure:"work_root"`
	RatePerSec     float64       `mapstructure:"rate_per_sec"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type Config struct {
	Mode       string     `mapstructure:"mode"`
	Port       int        `mapstructure:"port"`
	StaticPath string     `mapstructure:"static_path"`
	Secret     string     `mapstructure:"secret"`
	LogLevel   string     `mapstructure:"log_level"`
	WS         WSConfig   `mapstructure:"ws"`
	Exec       ExecConfig `mapstructure:"exec"`
}

func (c *Config) Production() bool {
	return c.Mode == ModeProduction
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeDevelopment)
	v.SetDefault("port", 5000)
	v.SetDefault("static_path", "./dist")
	v.SetDefault("secret", "coroom-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.read_limit", 1<<20)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("exec.timeout", "8s")
	v.SetDefault("exec.max_output_bytes", 1<<20)
	v.SetDefault("exec.max_concurrent", 8)
	v.SetDefault("exec.max_body_bytes", 200<<10)
	v.SetDefault("exec.work_root", os.TempDir())
	v.SetDefault("exec.rate_per_sec", 5)
	v.SetDefault("exec.rate_burst", 10)
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then applies
// environment overrides such as PORT or EXEC_TIMEOUT.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Mode != ModeProduction && cfg.Mode != ModeDevelopment {
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
