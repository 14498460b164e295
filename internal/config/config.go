package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	LogLevel   string        `mapstructure:"log_level"`
}

type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	MessagingURL     string        `mapstructure:"messaging_url"`
	EventsURL        string        `mapstructure:"events_url"`
	Region           string        `mapstructure:"region"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
	LogLevel         string        `mapstructure:"log_level"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
}

// New returns a viper instance with defaults, the CONFIG_ENV file and
// CLASSROOM_* environment overrides wired in. The file is not read yet.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("classroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "./web")
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "classroom-dev-secret")
	v.SetDefault("server.send_buffer", 32)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_window", "1s")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("client.base_url", "http://localhost:8080/")
	v.SetDefault("client.messaging_url", "ws://localhost:8080/messaging")
	v.SetDefault("client.events_url", "ws://localhost:8080/events")
	v.SetDefault("client.region", "us-east-1")
	v.SetDefault("client.request_timeout", "10s")
	v.SetDefault("client.open_timeout", "10s")
	v.SetDefault("client.reconnect_initial", "1s")
	v.SetDefault("client.reconnect_max", "10s")
	v.SetDefault("client.log_level", "warn")
	return v
}

// Read loads the config file if present; a missing file means defaults.
func Read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func Load() (*Config, error) {
	return Read(New())
}

// WatchLogLevel re-applies key as the global zerolog level whenever the
// config file changes.
func WatchLogLevel(v *viper.Viper, key string) {
	v.OnConfigChange(func(e fsnotify.Event) {
		lvl := v.GetString(key)
		if err := ApplyLogLevel(lvl); err != nil {
			log.Warn().Err(err).Str("module", "config").Str("file", e.Name).Msg("bad log level")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("level", lvl).Msg("config reloaded")
	})
	v.WatchConfig()
}

func ApplyLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
