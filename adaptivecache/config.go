/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"fmt"
	"time"

	"github.com/acronis/go-reqguard/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyMaxEntries           = "maxEntries"
	cfgKeyDefaultTTL           = "defaultTTL"
	cfgKeyCleanupInterval      = "cleanupInterval"
	cfgKeyMaxQueryRecords      = "maxQueryRecords"
	cfgKeyLargeInListThreshold = "analyzer.largeInListThreshold"
)

// Default configuration values.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Config represents a set of configuration parameters for the cache.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxEntries is the maximum number of entries, 0 means no limit.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	// DefaultTTL is the TTL of entries stored without an explicit one, 0 means no expiration.
	DefaultTTL config.TimeDuration `mapstructure:"defaultTTL" yaml:"defaultTTL" json:"defaultTTL"`

	// CleanupInterval is the interval of the background sweep of expired entries, 0 disables it.
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	MaxQueryRecords int `mapstructure:"maxQueryRecords" yaml:"maxQueryRecords" json:"maxQueryRecords"`

	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer" json:"analyzer"`

	keyPrefix string
}

// AnalyzerConfig is a configuration for the query analyzer.
type AnalyzerConfig struct {
	LargeInListThreshold int `mapstructure:"largeInListThreshold" yaml:"largeInListThreshold" json:"largeInListThreshold"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.DefaultTTL = config.TimeDuration(DefaultTTL)
	cfg.CleanupInterval = config.TimeDuration(DefaultCleanupInterval)
	cfg.MaxQueryRecords = DefaultMaxQueryRecords
	cfg.Analyzer.LargeInListThreshold = DefaultLargeInListThreshold
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the cache in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxEntries, 0)
	dp.SetDefault(cfgKeyDefaultTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyMaxQueryRecords, DefaultMaxQueryRecords)
	dp.SetDefault(cfgKeyLargeInListThreshold, DefaultLargeInListThreshold)
}

// Set sets cache configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries < 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("should be >= 0"))
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyDefaultTTL); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyDefaultTTL, fmt.Errorf("should be >= 0"))
	}
	c.DefaultTTL = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyCleanupInterval, fmt.Errorf("should be >= 0"))
	}
	c.CleanupInterval = config.TimeDuration(dur)

	if c.MaxQueryRecords, err = dp.GetInt(cfgKeyMaxQueryRecords); err != nil {
		return err
	}
	if c.MaxQueryRecords <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxQueryRecords, fmt.Errorf("should be > 0"))
	}

	if c.Analyzer.LargeInListThreshold, err = dp.GetInt(cfgKeyLargeInListThreshold); err != nil {
		return err
	}
	if c.Analyzer.LargeInListThreshold <= 0 {
		return dp.WrapKeyErr(cfgKeyLargeInListThreshold, fmt.Errorf("should be > 0"))
	}

	return nil
}

// Options converts the configuration into cache options.
// Logger, metrics collector and clock are left for the caller to fill.
func (c *Config) Options() Options {
	return Options{
		DefaultTTL:      time.Duration(c.DefaultTTL),
		MaxEntries:      c.MaxEntries,
		MaxQueryRecords: c.MaxQueryRecords,
		Analyzer:        NewQueryAnalyzer(DefaultQueryRules(c.Analyzer.LargeInListThreshold)...),
	}
}
