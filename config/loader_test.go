/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	t.Run("from reader with env overrides", func(t *testing.T) {
		t.Setenv("LOADERTEST_STORE_TIMEOUT", "3s")

		store := &storeSection{}
		cache := &cacheSection{}
		loader := NewDefaultLoader("loadertest")
		require.NoError(t, loader.LoadFromReader(
			bytes.NewBufferString("store:\n  type: redis\n"), DataTypeYAML, store, cache))
		require.Equal(t, &storeSection{Type: "redis", Timeout: 3 * time.Second}, store)
		require.Equal(t, &cacheSection{MaxEntries: 100}, cache)
	})

	t.Run("from file", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(cfgPath, []byte(`{"cache": {"maxEntries": 3}}`), 0o600))

		cache := &cacheSection{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeJSON, cache))
		require.Equal(t, 3, cache.MaxEntries)
	})

	t.Run("invalid data", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("store: [1"), DataTypeYAML, &storeSection{})
		require.Error(t, err)

		err = NewLoader(NewViperAdapter()).LoadFromFile(
			filepath.Join(t.TempDir(), "missing.yml"), DataTypeYAML, &storeSection{})
		require.Error(t, err)
	})
}
