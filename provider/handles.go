package provider

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
)

// PendingRequest describes a request that entered the engine and has not yet
// had its completion callbacks unwound.
type PendingRequest struct {
	Method string
	Age    time.Duration
}

type inflight struct {
	method  string
	started time.Time
}

// handleRegistry keeps track of in-flight requests. Handles come from an
// atomically-incremented counter starting at 1, reserving the zero value for
// "no request".
type handleRegistry struct {
	entries sync.Map // map[uint64]inflight
	seq     atomic.Uint64
	count   atomic.Int64
}

// register records a new in-flight request and returns its handle.
func (r *handleRegistry) register(method string) uint64 {
	h := r.seq.Add(1)
	r.entries.Store(h, inflight{method: method, started: time.Now()})
	r.count.Add(1)
	return h
}

// release removes the handle. Releasing an unknown handle is a no-op.
func (r *handleRegistry) release(h uint64) {
	if _, ok := r.entries.LoadAndDelete(h); ok {
		r.count.Add(-1)
	}
}

// len returns the number of requests currently in flight.
func (r *handleRegistry) len() int {
	return int(r.count.Load())
}

// pending returns the in-flight requests, oldest first.
func (r *handleRegistry) pending() []PendingRequest {
	var (
		now = time.Now()
		out []PendingRequest
	)
	r.entries.Range(func(_, v any) bool {
		entry := v.(inflight)
		out = append(out, PendingRequest{Method: entry.method, Age: now.Sub(entry.started)})
		return true
	})
	slices.SortFunc(out, func(a, b PendingRequest) int {
		switch {
		case a.Age > b.Age:
			return -1
		case a.Age < b.Age:
			return 1
		}
		return 0
	})
	return out
}
