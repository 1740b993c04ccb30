/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestWorkerUnit(t *testing.T) {
	t.Run("non-graceful stop does not wait", func(t *testing.T) {
		var finished atomic.Bool
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(200 * time.Millisecond)
			finished.Store(true)
			return nil
		}))
		fatalErr, returned := startAsync(unit)

		require.NoError(t, unit.Stop(false))
		require.False(t, finished.Load())
		<-returned
		require.True(t, finished.Load())
		require.Empty(t, fatalErr)
	})

	t.Run("graceful stop waits for worker", func(t *testing.T) {
		var finished atomic.Bool
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(100 * time.Millisecond)
			finished.Store(true)
			return nil
		}))
		startAsync(unit)

		require.NoError(t, unit.Stop(true))
		require.True(t, finished.Load())
	})

	t.Run("graceful stop timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: 100 * time.Millisecond})
		startAsync(unit)

		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		errSweep := errors.New("sweep failed")
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return errSweep }))
		fatalErr, returned := startAsync(unit)
		<-returned
		require.ErrorIs(t, <-fatalErr, errSweep)
		require.NoError(t, unit.Stop(true))
	})

	t.Run("metrics registerer", func(t *testing.T) {
		registerer := newBlockingUnit("metrics", new(atomic.Int32))
		unit := NewWorkerUnitWithOpts(WorkerFunc(nil), WorkerUnitOpts{MetricsRegisterer: registerer})
		unit.MustRegisterMetrics()
		unit.UnregisterMetrics()
		require.EqualValues(t, 1, registerer.registrations.Load())
		require.EqualValues(t, 1, registerer.unregistrations.Load())
	})
}
