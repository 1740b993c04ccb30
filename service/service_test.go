/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-reqguard/log/logtest"
)

func runService(t *testing.T, svc *Service, ctx context.Context) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- svc.StartContext(ctx) }()
	return done
}

func waitResult(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		require.Fail(t, "service did not stop")
		return nil
	}
}

func TestService_StopBySignal(t *testing.T) {
	recorder := logtest.NewRecorder()
	var running atomic.Int32
	unit := newBlockingUnit("server", &running)
	svc := New(recorder, unit)

	done := runService(t, svc, context.Background())
	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, unit.registrations.Load())

	svc.Signals <- os.Interrupt

	require.NoError(t, waitResult(t, done))
	require.EqualValues(t, 1, unit.gracefulStops.Load())
	require.EqualValues(t, 1, unit.unregistrations.Load())
	_, found := recorder.FindEntry("shutdown signal received, stopping service")
	require.True(t, found)
}

func TestService_StopByContext(t *testing.T) {
	var running atomic.Int32
	unit := newBlockingUnit("server", &running)
	ctx, cancel := context.WithCancel(context.Background())

	done := runService(t, New(logtest.NewLogger(t), unit), ctx)
	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	require.NoError(t, waitResult(t, done))
	require.EqualValues(t, 1, unit.gracefulStops.Load())
}

func TestService_StopError(t *testing.T) {
	var running atomic.Int32
	unit := newBlockingUnit("server", &running)
	unit.stopErr = errors.New("shutdown timeout")
	ctx, cancel := context.WithCancel(context.Background())

	done := runService(t, New(nil, unit), ctx)
	require.Eventually(t, func() bool { return running.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	require.EqualError(t, waitResult(t, done), "stop service gracefully: shutdown timeout")
}

func TestService_FatalError(t *testing.T) {
	recorder := logtest.NewRecorder()
	unit := newBlockingUnit("server", new(atomic.Int32))
	unit.failErr = errors.New("address already in use")

	err := waitResult(t, runService(t, New(recorder, unit), context.Background()))
	require.EqualError(t, err, "fatal error: address already in use")
	require.Zero(t, unit.stops.Load())
	_, found := recorder.FindEntry("service fatal error")
	require.True(t, found)
}
