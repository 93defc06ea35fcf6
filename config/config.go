// Package config loads keyvault configuration with viper from a file plus
// KEYVAULT_* environment overrides, and supports hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "KEYVAULT"

var (
	config *Config
	path   string
	mu     sync.Mutex
	v      *viper.Viper
)

// Config represents the configuration implementation.
type Config struct {
	AppName   string
	RunMode   string
	Host      string
	Port      int
	Logger    *Logger
	Data      *Data
	Auth      *Auth
	Authority *Authority
	Event     *Event
	Observes  *Observes
	Viper     *viper.Viper
}

// IsProd reports whether the service runs in release mode.
func (c *Config) IsProd() bool {
	return c.RunMode == "release" || c.RunMode == "production"
}

// GetConfig returns the last loaded configuration.
func GetConfig() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return config, nil
}

// LoadConfig loads the configuration from the file.
func LoadConfig(configPath string) (*Config, error) {
	nv := viper.New()
	nv.SetEnvPrefix(envPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.AddConfigPath("/etc/keyvault")
		nv.AddConfigPath("$HOME/.keyvault")
		nv.AddConfigPath(".")
		if ex, err := os.Executable(); err == nil {
			nv.AddConfigPath(filepath.Dir(ex))
		}
	}

	if err := nv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := fromViper(nv)

	mu.Lock()
	config, path, v = cfg, configPath, nv
	mu.Unlock()

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppName:   getStringOrDefault(v, "app_name", "keyvault"),
		RunMode:   getStringOrDefault(v, "run_mode", "debug"),
		Host:      getStringOrDefault(v, "server.host", "0.0.0.0"),
		Port:      getIntOrDefault(v, "server.port", 8080),
		Logger:    getLoggerConfig(v),
		Data:      getDataConfig(v),
		Auth:      getAuth(v),
		Authority: getAuthority(v),
		Event:     getEvent(v),
		Observes:  getObservesConfig(v),
		Viper:     v,
	}
}

// Reload reloads the configuration from the file.
func Reload() error {
	mu.Lock()
	nv := v
	mu.Unlock()
	if nv == nil {
		return fmt.Errorf("config not loaded")
	}

	if err := nv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	mu.Lock()
	config = fromViper(nv)
	mu.Unlock()
	return nil
}

// Watch watches the configuration file and reloads it when it changes.
func Watch(callback func(*Config)) {
	mu.Lock()
	nv := v
	mu.Unlock()
	if nv == nil {
		return
	}

	nv.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := Reload(); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
			return
		}
		cfg, err := GetConfig()
		if err == nil {
			callback(cfg)
		}
	})
	nv.WatchConfig()
}
