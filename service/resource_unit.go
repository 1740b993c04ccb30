/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"sync"
)

// ResourceUnit presents an external resource (a database or a cache connection, for example) as Unit.
// The resource is opened when the unit starts and closed when it stops.
type ResourceUnit struct {
	name  string
	open  func(ctx context.Context) error
	close func() error

	ctx       context.Context
	ctxCancel context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewResourceUnit creates a new ResourceUnit.
// Open may be nil if the resource needs no preparation. It receives a context that is canceled by Stop.
func NewResourceUnit(name string, open func(ctx context.Context) error, close func() error) *ResourceUnit {
	ctx, ctxCancel := context.WithCancel(context.Background())
	return &ResourceUnit{name: name, open: open, close: close, ctx: ctx, ctxCancel: ctxCancel}
}

// Start opens the resource. An opening error is sent to the fatalErr channel.
func (u *ResourceUnit) Start(fatalErr chan<- error) {
	if u.open == nil {
		return
	}
	if err := u.open(u.ctx); err != nil {
		fatalErr <- fmt.Errorf("open %s: %w", u.name, err)
	}
}

// Stop interrupts the opening (if it's still in progress) and closes the resource.
// The resource is closed only once, subsequent calls return the same result.
func (u *ResourceUnit) Stop(gracefully bool) error {
	u.ctxCancel()
	u.closeOnce.Do(func() {
		if u.close == nil {
			return
		}
		if err := u.close(); err != nil {
			u.closeErr = fmt.Errorf("close %s: %w", u.name, err)
		}
	})
	return u.closeErr
}
