/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/log/logtest"
)

func TestPrefixedLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	logger := log.NewPrefixedLogger(recorder, "[cleanup] ")

	logger.Debug("started", log.Int("entries", 10))
	logger.Infof("removed %d expired entries", 3)
	logger.With(log.String("store", "redis")).Warn("store is unavailable")
	logger.Errorf("cleanup failed: %s", "timeout")
	logger.WithLevel(log.LevelError).Info("dropped")
	logger.AtLevel(log.LevelInfo, func(write log.LogFunc) {
		write("finished", log.Int("entries", 7))
	})

	want := []struct {
		level log.Level
		text  string
	}{
		{log.LevelDebug, "[cleanup] started"},
		{log.LevelInfo, "[cleanup] removed 3 expired entries"},
		{log.LevelWarn, "[cleanup] store is unavailable"},
		{log.LevelError, "[cleanup] cleanup failed: timeout"},
		{log.LevelInfo, "[cleanup] finished"},
	}
	entries := recorder.Entries()
	require.Len(t, entries, len(want))
	for i, w := range want {
		require.Equal(t, w.level, entries[i].Level)
		require.Equal(t, w.text, entries[i].Text)
	}

	field, found := entries[2].FindField("store")
	require.True(t, found)
	require.Equal(t, "redis", string(field.Bytes))
	field, found = entries[4].FindField("entries")
	require.True(t, found)
	require.EqualValues(t, 7, field.Int)
}
