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
)

func TestResourceUnit(t *testing.T) {
	t.Run("open and close", func(t *testing.T) {
		var opened, closed int
		unit := NewResourceUnit("rate limit store", func(ctx context.Context) error {
			opened++
			return nil
		}, func() error {
			closed++
			return nil
		})

		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		require.Len(t, fatalErr, 0)
		require.NoError(t, unit.Stop(true))
		require.NoError(t, unit.Stop(false))
		require.Equal(t, 1, opened)
		require.Equal(t, 1, closed)
	})

	t.Run("open error is fatal", func(t *testing.T) {
		openErr := errors.New("connection refused")
		unit := NewResourceUnit("rate limit store", func(ctx context.Context) error {
			return openErr
		}, nil)

		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		err := <-fatalErr
		require.ErrorIs(t, err, openErr)
		require.EqualError(t, err, "open rate limit store: connection refused")
		require.NoError(t, unit.Stop(false))
	})

	t.Run("stop interrupts opening", func(t *testing.T) {
		unit := NewResourceUnit("rate limit store", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, func() error {
			return errors.New("already closed")
		})

		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		time.Sleep(10 * time.Millisecond)
		require.EqualError(t, unit.Stop(true), "close rate limit store: already closed")

		select {
		case err := <-fatalErr:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			require.Fail(t, "opening was not interrupted")
		}
	})
}
