/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"bytes"
	"fmt"

	"github.com/acronis/go-reqguard/adaptivecache"
	"github.com/acronis/go-reqguard/config"
	"github.com/acronis/go-reqguard/httpserver"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/ratelimit"
)

// EnvVarsPrefix is a prefix of environment variables that override configuration values
// (REQGUARD_SERVER_ADDRESS, REQGUARD_RATELIMIT_STORE_TYPE and so on).
const EnvVarsPrefix = "reqguard"

// Config is the configuration of the whole service.
type Config struct {
	Server    *httpserver.Config    `mapstructure:"server" yaml:"server" json:"server"`
	Log       *log.Config           `mapstructure:"log" yaml:"log" json:"log"`
	Cache     *adaptivecache.Config `mapstructure:"cache" yaml:"cache" json:"cache"`
	RateLimit *ratelimit.Config     `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
}

// NewConfig creates a new Config with not yet loaded sections.
func NewConfig() *Config {
	return &Config{
		Server:    httpserver.NewConfig(),
		Log:       log.NewConfig(),
		Cache:     adaptivecache.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
	}
}

// NewDefaultConfig creates a new Config with default values in all sections.
func NewDefaultConfig() *Config {
	return &Config{
		Server:    httpserver.NewDefaultConfig(),
		Log:       log.NewDefaultConfig(),
		Cache:     adaptivecache.NewDefaultConfig(),
		RateLimit: ratelimit.NewDefaultConfig(),
	}
}

var _ config.Config = (*Config)(nil)

// SetProviderDefaults sets default values of all sections in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets values of all sections from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// LoadConfig loads the configuration from the YAML file. Environment variables prefixed with
// REQGUARD_ take precedence over the file. If path is empty, only defaults and environment variables are used.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	var err error
	if path == "" {
		err = loader.LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
	} else {
		err = loader.LoadFromFile(path, config.DataTypeYAML, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
