package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type cliConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int    `mapstructure:"db_max_conns"`
	ServerURL   string `mapstructure:"server_url"`
	Token       string `mapstructure:"token"`
}

// newViper layers the config file, NEXUS_* env vars and DATABASE_URL. Flags bound
// later by the root command take precedence over all of them.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("db_max_conns", 4)
	v.SetDefault("server_url", "http://localhost:8090")
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		v.SetDefault("database_url", dsn)
	}

	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if configPath == "" {
				return v, nil
			}
		}
		return nil, err
	}
	return v, nil
}

func loadCLIConfig(v *viper.Viper) (cliConfig, error) {
	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, err
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	cfg.Token = strings.TrimSpace(cfg.Token)
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nexus", "config.yaml")
}
