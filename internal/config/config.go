package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GROUPCALL"

type Config struct {
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath      string        `mapstructure:"static_path"`
	ReadLimit       int64         `mapstructure:"read_limit" validate:"min=1"`
	PingPeriod      time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	WriteWait       time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	Secret          string        `mapstructure:"secret" validate:"required"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	Signal Signal `mapstructure:"signal"`
	Media  Media  `mapstructure:"media"`
	Hooks  Hooks  `mapstructure:"hooks"`
}

type Signal struct {
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	RateLimit    int           `mapstructure:"rate_limit" validate:"min=1"`
	RateInterval time.Duration `mapstructure:"rate_interval" validate:"gt=0"`
}

type Media struct {
	Engine      string        `mapstructure:"engine" validate:"oneof=pion memory"`
	ICEServers  []string      `mapstructure:"ice_servers"`
	PLIInterval time.Duration `mapstructure:"pli_interval"`
}

type Hooks struct {
	TestDisable bool `mapstructure:"test_disable"`
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("secret", "groupcall-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", "5s")

	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.rate_limit", 5)
	v.SetDefault("signal.rate_interval", "1s")

	v.SetDefault("media.engine", "pion")
	v.SetDefault("media.ice_servers", []string{})
	v.SetDefault("media.pli_interval", "3s")

	v.SetDefault("hooks.test_disable", true)
}

// Load reads config/config.<env>.yaml, where env comes from the config-env
// flag or CONFIG_ENV (default "dev"). Environment variables prefixed with
// GROUPCALL_ and then flags override the file.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("could not read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if flags != nil {
		if f := flags.Lookup("config-env"); f != nil && f.Changed {
			env = f.Value.String()
		}
		for key, name := range map[string]string{"port": "port", "mode": "mode"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("engine", cfg.Media.Engine).
		Msg("config ready")
	return &cfg, nil
}
