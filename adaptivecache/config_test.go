/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(""), config.DataTypeYAML, cfg))
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("custom values", func(t *testing.T) {
		cfgData := `
cache:
  maxEntries: 1000
  defaultTTL: 30s
  cleanupInterval: 10s
  maxQueryRecords: 50
  analyzer:
    largeInListThreshold: 20
`
		cfg := NewConfig()
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg))
		require.Equal(t, 1000, cfg.MaxEntries)
		require.Equal(t, config.TimeDuration(30*time.Second), cfg.DefaultTTL)
		require.Equal(t, config.TimeDuration(10*time.Second), cfg.CleanupInterval)
		require.Equal(t, 50, cfg.MaxQueryRecords)
		require.Equal(t, 20, cfg.Analyzer.LargeInListThreshold)

		opts := cfg.Options()
		require.Equal(t, 30*time.Second, opts.DefaultTTL)
		require.Equal(t, 1000, opts.MaxEntries)
		rec := opts.Analyzer.Analyze("SELECT a FROM t WHERE b IN (1,2,3,4,5,6,7,8,9,10,11)", 100*time.Millisecond)
		require.Equal(t, []string{"add_index"}, rec.MatchedRules)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("demo.cache"))
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(
			bytes.NewBufferString("demo:\n  cache:\n    maxEntries: 7\n"), config.DataTypeYAML, cfg))
		require.Equal(t, 7, cfg.MaxEntries)
	})

	tests := []struct {
		name    string
		cfgData string
		errMsg  string
	}{
		{"negative max entries", "cache:\n  maxEntries: -1\n", "cache.maxEntries: should be >= 0"},
		{"negative TTL", "cache:\n  defaultTTL: -1s\n", "cache.defaultTTL: should be >= 0"},
		{"zero query records", "cache:\n  maxQueryRecords: 0\n", "cache.maxQueryRecords: should be > 0"},
		{"invalid TTL", "cache:\n  defaultTTL: soon\n", "cache.defaultTTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
