// Package provider implements a small JSON-RPC dispatch chain: an ordered list
// of subproviders, each of which may answer a request, pass it on, or pass it
// on and ask to be called back once the request has settled.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// ErrUnhandled is returned when a request travels past the last subprovider
// without being answered.
var ErrUnhandled = errors.New("request not handled by any provider")

// DoneFunc is a completion callback registered through NextFunc. It receives the
// settled outcome of the request and must invoke cb exactly once when it is
// finished with it.
type DoneFunc func(err error, result json.RawMessage, cb func(error))

// NextFunc passes the request on to the following subprovider. onDone may be
// nil when the caller is not interested in the outcome.
type NextFunc func(onDone DoneFunc)

// EndFunc answers the request and stops it from travelling further.
type EndFunc func(result json.RawMessage, err error)

// Subprovider is one link in the dispatch chain. Every call must result in
// exactly one invocation of either next or end, possibly asynchronously.
type Subprovider interface {
	HandleRequest(ctx context.Context, req Request, next NextFunc, end EndFunc)
}

// Emitter issues requests into a dispatch chain.
type Emitter interface {
	Emit(ctx context.Context, req Request) (json.RawMessage, error)
}

// engineAware is implemented by subproviders that issue their own requests
// into the chain they are part of.
type engineAware interface {
	SetEngine(e Emitter)
}

// SubproviderFunc adapts a plain function to the Subprovider interface.
type SubproviderFunc func(ctx context.Context, req Request, next NextFunc, end EndFunc)

func (f SubproviderFunc) HandleRequest(ctx context.Context, req Request, next NextFunc, end EndFunc) {
	f(ctx, req, next, end)
}

// Engine runs requests through its subproviders in the order they were added.
type Engine struct {
	mu        sync.RWMutex
	providers []Subprovider
	pending   handleRegistry
}

// NewEngine creates an engine with the given subproviders.
func NewEngine(providers ...Subprovider) *Engine {
	e := new(Engine)
	for _, p := range providers {
		e.AddProvider(p)
	}
	return e
}

// AddProvider appends a subprovider to the end of the chain.
func (e *Engine) AddProvider(p Subprovider) {
	if aware, ok := p.(engineAware); ok {
		aware.SetEngine(e)
	}
	e.mu.Lock()
	e.providers = append(e.providers, p)
	e.mu.Unlock()
}

// InFlight returns the number of requests that entered the engine and have
// not yet returned to their caller.
func (e *Engine) InFlight() int {
	return e.pending.len()
}

// Pending lists the requests in flight, oldest first.
func (e *Engine) Pending() []PendingRequest {
	return e.pending.pending()
}

// Emit implements Emitter. Requests emitted by subproviders travel through the
// whole chain, just like external ones.
func (e *Engine) Emit(ctx context.Context, req Request) (json.RawMessage, error) {
	return e.Send(ctx, req)
}

type response struct {
	result json.RawMessage
	err    error
}

// Send dispatches the request and blocks until it was answered and every
// completion callback registered on the way has been invoked. When the request
// itself succeeded, the first error reported by a completion callback is
// returned instead.
func (e *Engine) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	h := e.pending.register(req.Method())
	defer e.pending.release(h)

	e.mu.RLock()
	providers := e.providers
	e.mu.RUnlock()

	var (
		stack    []DoneFunc
		finished = make(chan response, 1)
		once     sync.Once
	)
	end := func(result json.RawMessage, err error) {
		once.Do(func() { finished <- response{result, err} })
	}
	var dispatch func(idx int)
	dispatch = func(idx int) {
		if idx >= len(providers) {
			end(nil, fmt.Errorf("%w: %s", ErrUnhandled, req.Method()))
			return
		}
		providers[idx].HandleRequest(ctx, req, func(onDone DoneFunc) {
			if onDone != nil {
				stack = append(stack, onDone)
			}
			dispatch(idx + 1)
		}, end)
	}
	dispatch(0)

	var res response
	select {
	case res = <-finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Unwind completion callbacks, innermost first.
	var cbErr error
	for i := len(stack) - 1; i >= 0; i-- {
		done := make(chan error, 1)
		stack[i](res.err, res.result, func(err error) { done <- err })
		if err := <-done; err != nil {
			log.Debug("Request completion callback failed", "method", req.Method(), "err", err)
			if cbErr == nil {
				cbErr = err
			}
		}
	}
	if res.err != nil {
		return nil, res.err
	}
	return res.result, cbErr
}
