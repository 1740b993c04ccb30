/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-reqguard/config"
	"github.com/acronis/go-reqguard/internal/throttleconfig"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress                 = "address"
	cfgKeyServerLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyServerRateLimitKeyType        = "rateLimitKey.type"
	cfgKeyServerRateLimitKeyHeaderName  = "rateLimitKey.headerName"
)

const (
	defaultServerAddress           = ":8080"
	defaultServerLimitsMaxBodySize = 1024 * 1024
	defaultSlowRequestThreshold    = time.Second
)

// serverTimeouts binds every timeout to its key and default value.
var serverTimeouts = []struct {
	key   string
	def   time.Duration
	field func(*TimeoutsConfig) *config.TimeDuration
}{
	{"timeouts.write", time.Minute, func(t *TimeoutsConfig) *config.TimeDuration { return &t.Write }},
	{"timeouts.read", 15 * time.Second, func(t *TimeoutsConfig) *config.TimeDuration { return &t.Read }},
	{"timeouts.readHeader", 10 * time.Second, func(t *TimeoutsConfig) *config.TimeDuration { return &t.ReadHeader }},
	{"timeouts.idle", time.Minute, func(t *TimeoutsConfig) *config.TimeDuration { return &t.Idle }},
	{"timeouts.shutdown", 5 * time.Second, func(t *TimeoutsConfig) *config.TimeDuration { return &t.Shutdown }},
}

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address      string                    `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts     TimeoutsConfig            `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits       LimitsConfig              `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log          LogConfig                 `mapstructure:"log" yaml:"log" json:"log"`
	RateLimitKey throttleconfig.KeyConfig `mapstructure:"rateLimitKey" yaml:"rateLimitKey" json:"rateLimitKey"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

func makeConfigOptions(options []ConfigOption) configOptions {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	return &Config{keyPrefix: makeConfigOptions(options).keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = defaultServerAddress
	for _, timeout := range serverTimeouts {
		*timeout.field(&cfg.Timeouts) = config.TimeDuration(timeout.def)
	}
	cfg.Limits.MaxBodySizeBytes = defaultServerLimitsMaxBodySize
	cfg.Log.SlowRequestThreshold = config.TimeDuration(defaultSlowRequestThreshold)
	cfg.RateLimitKey.Type = throttleconfig.KeyTypeIdentity
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)
	for _, timeout := range serverTimeouts {
		dp.SetDefault(timeout.key, timeout.def)
	}
	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, defaultServerLimitsMaxBodySize)
	dp.SetDefault(cfgKeyServerLogRequestStart, false)
	dp.SetDefault(cfgKeyServerLogSlowRequestThreshold, defaultSlowRequestThreshold)
	dp.SetDefault(cfgKeyServerRateLimitKeyType, string(throttleconfig.KeyTypeIdentity))
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for _, timeout := range serverTimeouts {
		dur, err := dp.GetDuration(timeout.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(timeout.key, fmt.Errorf("must not be negative"))
		}
		*timeout.field(t) = config.TimeDuration(dur)
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body in bytes. Zero means no limit.
	MaxBodySizeBytes config.BytesCount `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error
	if l.MaxBodySizeBytes, err = dp.GetBytesCount(cfgKeyServerLimitsMaxBodySize); err != nil {
		return dp.WrapKeyErr(cfgKeyServerLimitsMaxBodySize, err)
	}
	return nil
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart         bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	ExcludedEndpoints    []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set sets log server configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerLogExcludedEndpoints); err != nil {
		return err
	}
	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyServerLogSlowRequestThreshold); err != nil {
		return err
	}
	l.SlowRequestThreshold = config.TimeDuration(dur)
	return nil
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, fmt.Errorf("must not be empty"))
	}
	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}

	var keyType string
	if keyType, err = dp.GetStringFromSet(cfgKeyServerRateLimitKeyType, []string{
		string(throttleconfig.KeyTypeIdentity), string(throttleconfig.KeyTypeHeader), string(throttleconfig.KeyTypeRemoteAddr),
	}, true); err != nil {
		return err
	}
	c.RateLimitKey.Type = throttleconfig.KeyType(strings.ToLower(keyType))
	if c.RateLimitKey.HeaderName, err = dp.GetString(cfgKeyServerRateLimitKeyHeaderName); err != nil {
		return err
	}
	if err = c.RateLimitKey.Validate(); err != nil {
		return dp.WrapKeyErr(cfgKeyServerRateLimitKeyHeaderName, err)
	}
	return nil
}
