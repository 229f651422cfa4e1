package coverage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clydemeng/solcov/provider"
)

// TraceStore collects execution traces keyed by the address that was called.
// It only ever grows and is safe for concurrent use.
type TraceStore struct {
	mu     sync.RWMutex
	traces map[common.Address][]*provider.TransactionTrace
	count  int
}

// NewTraceStore creates an empty store.
func NewTraceStore() *TraceStore {
	return &TraceStore{traces: make(map[common.Address][]*provider.TransactionTrace)}
}

// Append records a trace for the given address.
func (s *TraceStore) Append(addr common.Address, trace *provider.TransactionTrace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces[addr] = append(s.traces[addr], trace)
	s.count++
}

// Addresses returns every address with at least one trace, in ascending order.
func (s *TraceStore) Addresses() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]common.Address, 0, len(s.traces))
	for addr := range s.traces {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// Traces returns a snapshot of the traces recorded for addr.
func (s *TraceStore) Traces(addr common.Address) []*provider.TransactionTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*provider.TransactionTrace(nil), s.traces[addr]...)
}

// Len returns the total number of recorded traces.
func (s *TraceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.count
}
