/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"fmt"

	"github.com/acronis/go-reqguard/log"
)

func Example() {
	rejectRequest := func(logger log.FieldLogger, policy string, retryAfter int) {
		logger.Warn("rate limit exceeded", log.String("policy", policy), log.Int("retry_after", retryAfter))
	}

	recorder := NewRecorder()
	rejectRequest(recorder, "upload", 42)

	if entry, found := recorder.FindEntry("rate limit exceeded"); found {
		fmt.Printf("[%s] %s\n", entry.Level, entry.Text)
		if field, ok := entry.FindField("policy"); ok {
			fmt.Printf("policy: %s\n", field.Bytes)
		}
		if field, ok := entry.FindField("retry_after"); ok {
			fmt.Printf("retry_after: %d\n", field.Int)
		}
	}

	// Output:
	// [warn] rate limit exceeded
	// policy: upload
	// retry_after: 42
}
