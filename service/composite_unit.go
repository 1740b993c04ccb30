/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a CompositeUnit of the units.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and returns when every Start has returned or as soon as one of them fails.
// On failure the remaining units are stopped non-gracefully and a CompositeUnitError with the start
// and stop errors is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	failed := make(chan struct{}, len(cu.Units))
	var wg sync.WaitGroup
	for i, u := range cu.Units {
		unitErrs[i] = make(chan error, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Start(unitErrs[i])
			if len(unitErrs[i]) != 0 {
				failed <- struct{}{}
			}
		}()
	}
	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	select {
	case <-failed:
	case <-allReturned:
		if len(failed) == 0 {
			return
		}
	}

	stopErr := cu.Stop(false)
	var errs []error
	for _, ch := range unitErrs {
		select {
		case err := <-ch:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently and returns a CompositeUnitError if any of them failed to stop.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	stopErrs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	for i, u := range cu.Units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopErrs[i] = u.Stop(gracefully)
		}()
	}
	wg.Wait()

	var errs []error
	for _, err := range stopErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: errs}
}

// MustRegisterMetrics registers metrics of the units that implement MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	forEachMetricsRegisterer(cu.Units, MetricsRegisterer.MustRegisterMetrics)
}

// UnregisterMetrics unregisters metrics of the units that implement MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	forEachMetricsRegisterer(cu.Units, MetricsRegisterer.UnregisterMetrics)
}

// CompositeUnitError joins errors of several units.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, len(cue.UnitErrors))
	for i, err := range cue.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is and errors.As to inspect the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
