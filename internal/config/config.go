package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	MaxConnections   int           `mapstructure:"max_connections"`
	SendQueue        int           `mapstructure:"send_queue"`
	RateLimit        RateLimit     `mapstructure:"rate_limit"`
	PresenceDebounce time.Duration `mapstructure:"presence_debounce"`

	// Served to participants by GET /api/config.
	RingTimeout time.Duration `mapstructure:"ring_timeout"`
	ICEServers  []string      `mapstructure:"ice_servers"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default), then RING_*
// environment variables. A missing file is not an error. When a file was
// read, later edits to its log_level are applied without a restart.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v := newViper(fmt.Sprintf("config/config.%s.yaml", env))

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		fromFile = false
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := ApplyLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if fromFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			level := v.GetString("log_level")
			if err := ApplyLogLevel(level); err != nil {
				log.Warn().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload ignored")
				return
			}
			log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", level).Msg("config reloaded")
		})
		v.WatchConfig()
	}

	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config")
	return cfg, nil
}

func newViper(fileName string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("RING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "ring-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_connections", 1024)
	v.SetDefault("send_queue", 256)
	v.SetDefault("rate_limit.limit", 50)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("presence_debounce", "250ms")
	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod <= 0 {
		return nil, fmt.Errorf("ping_period must be positive, got %s", cfg.PingPeriod)
	}
	return &cfg, nil
}

// ApplyLogLevel sets the global zerolog level. An empty level means info.
func ApplyLogLevel(level string) error {
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log_level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
