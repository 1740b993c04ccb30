/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrGoexit is returned to waiters when the computing goroutine calls runtime.Goexit.
var ErrGoexit = errors.New("runtime.Goexit was called")

// PanicError is returned to waiters when the compute function panics.
// It carries the panic value and the stack trace of the computing goroutine.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("compute function panicked: %v\n\n%s", p.Value, p.Stack)
}

// Unwrap returns the panic value if it is an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v interface{}) error {
	stack := debug.Stack()
	// Drop the "goroutine N [status]:" header, it describes a goroutine that may be gone by now.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}

type inflightCall[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// computeRegistry tracks in-flight computations per key.
type computeRegistry[V any] struct {
	mu    sync.Mutex
	calls map[string]*inflightCall[V]
}

// do runs fn for the key unless a computation for the same key is already in flight,
// in which case it waits for that computation and returns its result.
func (r *computeRegistry[V]) do(key string, fn func() (V, error)) (V, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]*inflightCall[V])
	}
	if call, ok := r.calls[key]; ok {
		r.mu.Unlock()
		call.wg.Wait()
		return call.val, call.err
	}
	call := &inflightCall[V]{}
	call.wg.Add(1)
	r.calls[key] = call
	r.mu.Unlock()

	return r.run(call, key, fn)
}

func (r *computeRegistry[V]) run(call *inflightCall[V], key string, fn func() (V, error)) (val V, err error) {
	returned := false
	panicked := false

	// Two deferred functions are needed to tell a panic from runtime.Goexit.
	defer func() {
		if !returned && !panicked {
			call.err = ErrGoexit
		}
		call.wg.Done()

		r.mu.Lock()
		delete(r.calls, key)
		r.mu.Unlock()

		if panicked {
			panic(call.err.(*PanicError).Value)
		}
		val, err = call.val, call.err
	}()

	defer func() {
		if returned {
			return
		}
		if v := recover(); v != nil {
			call.err = newPanicError(v)
			panicked = true
		}
	}()

	call.val, call.err = fn()
	returned = true
	return call.val, call.err
}
