/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/log/logtest"
)

func TestContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetRequestIDFromContext(ctx))
	require.Empty(t, GetInternalRequestIDFromContext(ctx))
	require.Empty(t, GetIdentityFromContext(ctx))
	require.Nil(t, GetLoggerFromContext(ctx))
	require.Nil(t, GetLoggingParamsFromContext(ctx))
	require.True(t, GetRequestStartTimeFromContext(ctx).IsZero())

	logger := logtest.NewRecorder()
	lp := &LoggingParams{}
	startTime := time.Now()
	ctx = NewContextWithRequestID(ctx, "ext-id")
	ctx = NewContextWithInternalRequestID(ctx, "int-id")
	ctx = NewContextWithIdentity(ctx, "john")
	ctx = NewContextWithLogger(ctx, logger)
	ctx = NewContextWithLoggingParams(ctx, lp)
	ctx = NewContextWithRequestStartTime(ctx, startTime)

	require.Equal(t, "ext-id", GetRequestIDFromContext(ctx))
	require.Equal(t, "int-id", GetInternalRequestIDFromContext(ctx))
	require.Equal(t, "john", GetIdentityFromContext(ctx))
	require.Same(t, logger, GetLoggerFromContext(ctx))
	require.Same(t, lp, GetLoggingParamsFromContext(ctx))
	require.Equal(t, startTime, GetRequestStartTimeFromContext(ctx))
}
