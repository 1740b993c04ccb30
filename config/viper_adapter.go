/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by viper.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes environment variables override configuration values.
// The variable name is the upper-cased prefix and key joined with underscores,
// e.g. REQGUARD_RATELIMIT_STORE_TYPE for the "rateLimit.store.type" key and the "reqguard" prefix.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// Set overrides the value of the key.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the value used when neither the loaded data nor the environment provide one.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// IsSet reports whether the key has a value in any source. Keys are case-insensitive.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get returns the raw value of the key.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// getAs converts the raw value with the cast function. Missing values are converted as nil,
// which gives the zero value for scalar types.
func getAs[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	res, err := castFn(va.Get(key))
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetInt returns the value of the key as an integer.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return getAs(va, key, cast.ToIntE)
}

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return getAs(va, key, cast.ToStringE)
}

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return getAs(va, key, cast.ToBoolE)
}

// GetStringSlice returns the value of the key as a slice of strings, nil if the key is missing.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	if va.Get(key) == nil {
		return nil, nil
	}
	return getAs(va, key, cast.ToStringSliceE)
}

// GetDuration returns the value of the key as a duration.
// Both "1m30s" strings and integer nanoseconds are accepted.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	if va.Get(key) == nil {
		return 0, nil
	}
	return getAs(va, key, cast.ToDurationE)
}

// GetStringFromSet returns the value of the key if it is one of the set elements.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetBytesCount returns the value of the key as a size in bytes.
// Human-readable strings ("64K", "1Mi") and non-negative numbers are accepted.
func (va *ViperAdapter) GetBytesCount(key string) (BytesCount, error) {
	switch v := va.Get(key).(type) {
	case nil:
		return 0, nil
	case BytesCount:
		return v, nil
	case string:
		res, err := ParseBytesCount(v)
		return res, WrapKeyErrIfNeeded(key, err)
	case float32, float64:
		return BytesCount(uint64(cast.ToFloat64(v))), nil
	default:
		num, err := cast.ToInt64E(v)
		if err != nil {
			return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for BytesCount: %T", v))
		}
		if num < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
		}
		return BytesCount(num), nil
	}
}

// UnmarshalKey decodes the subtree of the key into the struct.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		options = append(options, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr prefixes the error with the key.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
