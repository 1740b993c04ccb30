/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/go-reqguard/config"
	localratelimit "github.com/acronis/go-reqguard/internal/ratelimit"
	"github.com/acronis/go-reqguard/internal/throttleconfig"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyKeyPrefix             = "keyPrefix"
	cfgKeyStoreTimeout          = "storeTimeout"
	cfgKeyCleanupInterval       = "cleanupInterval"
	cfgKeyStoreType             = "store.type"
	cfgKeyStoreRedisAddr        = "store.redis.addr"
	cfgKeyStoreRedisPassword    = "store.redis.password"
	cfgKeyStoreRedisDB          = "store.redis.db"
	cfgKeyStoreRedisDialTimeout = "store.redis.dialTimeout"
	cfgKeyStoreRedisReadTimeout = "store.redis.readTimeout"
	cfgKeyStoreRedisWriteTimout = "store.redis.writeTimeout"
	cfgKeyStoreSQLitePath       = "store.sqlite.path"
	cfgKeyPolicies              = "policies"
	cfgKeyLocalFallbackEnabled  = "localFallback.enabled"
	cfgKeyLocalFallbackAlg      = "localFallback.alg"
	cfgKeyLocalFallbackMaxKeys  = "localFallback.maxKeys"
)

// StoreType is a type of the backing store for rate limit counters.
type StoreType string

// Supported store types.
const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// Default configuration values.
const (
	DefaultStoreType         = StoreTypeMemory
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = time.Second
	DefaultRedisWriteTimeout = time.Second
	DefaultSQLitePath        = "reqguard-ratelimit.db"
)

// Config represents a set of configuration parameters for the rate limiter.
type Config struct {
	CounterKeyPrefix string              `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	StoreTimeout     config.TimeDuration `mapstructure:"storeTimeout" yaml:"storeTimeout" json:"storeTimeout"`
	CleanupInterval  config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Policies override the built-in policies with the same names and add new ones.
	// Keys are policy names.
	Policies map[string]PolicyConfig `mapstructure:"policies" yaml:"policies" json:"policies"`

	LocalFallback LocalFallbackConfig `mapstructure:"localFallback" yaml:"localFallback" json:"localFallback"`

	keyPrefix string
}

// StoreConfig represents a configuration of the counters store.
type StoreConfig struct {
	Type   StoreType    `mapstructure:"type" yaml:"type" json:"type"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis" json:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite" json:"sqlite"`
}

// RedisConfig represents a configuration of the Redis connection.
type RedisConfig struct {
	Addr         string              `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password     string              `mapstructure:"password" yaml:"password" json:"password"`
	DB           int                 `mapstructure:"db" yaml:"db" json:"db"`
	DialTimeout  config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  config.TimeDuration `mapstructure:"readTimeout" yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout config.TimeDuration `mapstructure:"writeTimeout" yaml:"writeTimeout" json:"writeTimeout"`
}

// SQLiteConfig represents a configuration of the SQLite database.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// PolicyConfig represents a configuration of a single policy.
type PolicyConfig struct {
	// Rate is a limit in "N/duration" form, for example "5/15m" or "100/m".
	Rate      throttleconfig.RateLimitValue `mapstructure:"rate" yaml:"rate" json:"rate"`
	Namespace string                        `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

// LocalFallbackConfig represents a configuration of the local limiter used while the store is unavailable.
type LocalFallbackConfig struct {
	Enabled bool        `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg     FallbackAlg `mapstructure:"alg" yaml:"alg" json:"alg"`
	MaxKeys int         `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
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
	cfg.CounterKeyPrefix = DefaultKeyPrefix
	cfg.StoreTimeout = config.TimeDuration(DefaultStoreTimeout)
	cfg.CleanupInterval = config.TimeDuration(DefaultCleanupInterval)
	cfg.Store = StoreConfig{
		Type: DefaultStoreType,
		Redis: RedisConfig{
			Addr:         DefaultRedisAddr,
			DialTimeout:  config.TimeDuration(DefaultRedisDialTimeout),
			ReadTimeout:  config.TimeDuration(DefaultRedisReadTimeout),
			WriteTimeout: config.TimeDuration(DefaultRedisWriteTimeout),
		},
		SQLite: SQLiteConfig{Path: DefaultSQLitePath},
	}
	cfg.LocalFallback = LocalFallbackConfig{Alg: FallbackAlgSlidingWindow, MaxKeys: localratelimit.DefaultMaxKeys}
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

// SetProviderDefaults sets default configuration values for the rate limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyStoreTimeout, DefaultStoreTimeout.String())
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyStoreType, string(DefaultStoreType))
	dp.SetDefault(cfgKeyStoreRedisAddr, DefaultRedisAddr)
	dp.SetDefault(cfgKeyStoreRedisDB, 0)
	dp.SetDefault(cfgKeyStoreRedisDialTimeout, DefaultRedisDialTimeout.String())
	dp.SetDefault(cfgKeyStoreRedisReadTimeout, DefaultRedisReadTimeout.String())
	dp.SetDefault(cfgKeyStoreRedisWriteTimout, DefaultRedisWriteTimeout.String())
	dp.SetDefault(cfgKeyStoreSQLitePath, DefaultSQLitePath)
	dp.SetDefault(cfgKeyLocalFallbackEnabled, false)
	dp.SetDefault(cfgKeyLocalFallbackAlg, string(FallbackAlgSlidingWindow))
	dp.SetDefault(cfgKeyLocalFallbackMaxKeys, localratelimit.DefaultMaxKeys)
}

// Set sets rate limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.CounterKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}
	if c.CounterKeyPrefix == "" {
		return dp.WrapKeyErr(cfgKeyKeyPrefix, fmt.Errorf("should not be empty"))
	}

	if err = c.setDurations(dp); err != nil {
		return err
	}
	if err = c.setStore(dp); err != nil {
		return err
	}
	if err = c.setPolicies(dp); err != nil {
		return err
	}
	return c.setLocalFallback(dp)
}

func (c *Config) setDurations(dp config.DataProvider) error {
	dur, err := dp.GetDuration(cfgKeyStoreTimeout)
	if err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyStoreTimeout, fmt.Errorf("should be > 0"))
	}
	c.StoreTimeout = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyCleanupInterval, fmt.Errorf("should be >= 0"))
	}
	c.CleanupInterval = config.TimeDuration(dur)
	return nil
}

func (c *Config) setStore(dp config.DataProvider) error {
	storeType, err := dp.GetStringFromSet(cfgKeyStoreType,
		[]string{string(StoreTypeMemory), string(StoreTypeRedis), string(StoreTypeSQLite)}, true)
	if err != nil {
		return err
	}
	c.Store.Type = StoreType(strings.ToLower(storeType))

	if c.Store.Redis.Addr, err = dp.GetString(cfgKeyStoreRedisAddr); err != nil {
		return err
	}
	if c.Store.Type == StoreTypeRedis && c.Store.Redis.Addr == "" {
		return dp.WrapKeyErr(cfgKeyStoreRedisAddr, fmt.Errorf("should not be empty for %q store", StoreTypeRedis))
	}
	if c.Store.Redis.Password, err = dp.GetString(cfgKeyStoreRedisPassword); err != nil {
		return err
	}
	if c.Store.Redis.DB, err = dp.GetInt(cfgKeyStoreRedisDB); err != nil {
		return err
	}
	if c.Store.Redis.DB < 0 {
		return dp.WrapKeyErr(cfgKeyStoreRedisDB, fmt.Errorf("should be >= 0"))
	}
	for _, d := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyStoreRedisDialTimeout, &c.Store.Redis.DialTimeout},
		{cfgKeyStoreRedisReadTimeout, &c.Store.Redis.ReadTimeout},
		{cfgKeyStoreRedisWriteTimout, &c.Store.Redis.WriteTimeout},
	} {
		dur, dErr := dp.GetDuration(d.key)
		if dErr != nil {
			return dErr
		}
		if dur < 0 {
			return dp.WrapKeyErr(d.key, fmt.Errorf("should be >= 0"))
		}
		*d.dst = config.TimeDuration(dur)
	}

	if c.Store.SQLite.Path, err = dp.GetString(cfgKeyStoreSQLitePath); err != nil {
		return err
	}
	if c.Store.Type == StoreTypeSQLite && c.Store.SQLite.Path == "" {
		return dp.WrapKeyErr(cfgKeyStoreSQLitePath, fmt.Errorf("should not be empty for %q store", StoreTypeSQLite))
	}
	return nil
}

func (c *Config) setPolicies(dp config.DataProvider) error {
	c.Policies = nil
	if !dp.IsSet(cfgKeyPolicies) {
		return nil
	}
	var policies map[string]PolicyConfig
	if err := dp.UnmarshalKey(cfgKeyPolicies, &policies, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = throttleconfig.MapstructureDecodeHook()
	}); err != nil {
		return err
	}
	for name, p := range policies {
		if p.Rate.Count <= 0 || p.Rate.Duration <= 0 {
			return dp.WrapKeyErr(cfgKeyPolicies+"."+name+".rate", fmt.Errorf("should be specified in N/duration form"))
		}
	}
	c.Policies = policies
	return nil
}

func (c *Config) setLocalFallback(dp config.DataProvider) error {
	var err error
	if c.LocalFallback.Enabled, err = dp.GetBool(cfgKeyLocalFallbackEnabled); err != nil {
		return err
	}
	alg, err := dp.GetStringFromSet(cfgKeyLocalFallbackAlg, []string{
		string(FallbackAlgSlidingWindow), string(FallbackAlgLeakyBucket), string(FallbackAlgTokenBucket),
	}, true)
	if err != nil {
		return err
	}
	c.LocalFallback.Alg = FallbackAlg(strings.ToLower(alg))
	if c.LocalFallback.MaxKeys, err = dp.GetInt(cfgKeyLocalFallbackMaxKeys); err != nil {
		return err
	}
	if c.LocalFallback.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyLocalFallbackMaxKeys, fmt.Errorf("should be > 0"))
	}
	return nil
}

// PolicyList returns the built-in policies with configured overrides applied.
// Built-in policies keep their order, additional ones follow sorted by name.
func (c *Config) PolicyList() []Policy {
	result := DefaultPolicies()
	seen := make(map[string]bool, len(result))
	for i := range result {
		seen[result[i].Name] = true
		if pc, ok := c.Policies[result[i].Name]; ok {
			result[i] = pc.policy(result[i].Name)
		}
	}
	extra := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		result = append(result, c.Policies[name].policy(name))
	}
	return result
}

func (pc PolicyConfig) policy(name string) Policy {
	return Policy{Name: name, Window: pc.Rate.Duration, MaxRequests: pc.Rate.Count, Namespace: pc.Namespace}
}

// Opts converts the configuration into limiter options.
// Logger, metrics collector and clock are left for the caller to fill.
func (c *Config) Opts() Opts {
	opts := Opts{
		KeyPrefix:    c.CounterKeyPrefix,
		StoreTimeout: time.Duration(c.StoreTimeout),
		Policies:     c.PolicyList(),
	}
	if c.LocalFallback.Enabled {
		opts.LocalFallback = &LocalFallbackOpts{Alg: c.LocalFallback.Alg, MaxKeys: c.LocalFallback.MaxKeys}
	}
	return opts
}
