/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"strings"
	"sync"
	"testing"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-reqguard/log"
)

type testingEntryWriter struct {
	mu      sync.Mutex
	tb      testing.TB
	encoder logf.Encoder
}

//nolint:gocritic
func (w *testingEntryWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, e); err != nil {
		w.tb.Logf("encode log entry %q: %v", e.Text, err)
		return
	}
	w.tb.Log(strings.TrimSuffix(string(buf.Data), "\n"))
}

// NewLogger returns a debug-level logger that writes JSON entries with tb.Log,
// so they are shown only for failed tests or with "go test -v".
func NewLogger(tb testing.TB) log.FieldLogger {
	encoder := logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
	})
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, &testingEntryWriter{tb: tb, encoder: encoder})}
}
