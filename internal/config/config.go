package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".opsrelay"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".opsrelay/opsrelay.db"
)

// Load reads the config file and returns a validated Config. The configPath
// flag may override the default location (~/.opsrelay/config.json). A missing
// file yields the defaults; a malformed or invalid file is fatal.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("opsrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies structural validation to a Config. Any violation is a
// startup-fatal configuration error.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults populates viper with the documented out-of-the-box values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("alerting.dedupe_window_seconds", 300)
	v.SetDefault("alerting.rate_limit", 10)
	v.SetDefault("alerting.rate_limit_window_seconds", 60)
	v.SetDefault("alerting.retry_interval_seconds", 60)
	v.SetDefault("alerting.max_retries", 3)
	v.SetDefault("alerting.history_limit", 1000)
}
