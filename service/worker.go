/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-reqguard/log"
)

// ErrPeriodicWorkerStop may be returned by the underlying worker to end the PeriodicWorker loop without error.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker does some (usually long-running) work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to every log entry of the worker as the "worker" field.
	Name string

	// InitialDelay is the delay before the first run.
	InitialDelay time.Duration

	// IntervalDelayFunc overrides the interval after each run. It receives the error of that run.
	IntervalDelayFunc func(worker Worker, err error) time.Duration
}

// PeriodicWorker runs the underlying worker at intervals until ctx is done.
// Errors of single runs are logged and do not stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
	opts     PeriodicWorkerOpts
}

// NewPeriodicWorker creates a PeriodicWorker with a constant interval.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a PeriodicWorker with optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger, opts: opts}
}

// Run runs the loop. It returns nil when ctx is done or the worker returns ErrPeriodicWorkerStop.
// A panic of the worker is logged with the stack and re-raised.
func (pw *PeriodicWorker) Run(ctx context.Context) (err error) {
	defer pw.logExit(&err)

	pw.logger.Infof("running periodic worker (initialDelay=%s, intervalDelay=%s)...", pw.opts.InitialDelay, pw.interval)

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		runErr := pw.worker.Run(ctx)
		if errors.Is(runErr, ErrPeriodicWorkerStop) {
			return nil
		}
		if runErr != nil {
			pw.logger.Error("periodically running worker finished with error", log.Error(runErr))
		}
		timer.Reset(pw.nextDelay(runErr))
	}
}

func (pw *PeriodicWorker) nextDelay(runErr error) time.Duration {
	if pw.opts.IntervalDelayFunc != nil {
		return pw.opts.IntervalDelayFunc(pw.worker, runErr)
	}
	return pw.interval
}

func (pw *PeriodicWorker) logExit(err *error) {
	if p := recover(); p != nil {
		stack := make([]byte, 8192)
		stack = stack[:runtime.Stack(stack, false)]
		pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
		panic(p)
	}
	if *err != nil {
		pw.logger.Error("periodic worker stopped with error", log.Error(*err))
		return
	}
	pw.logger.Info("periodic worker stopped")
}
