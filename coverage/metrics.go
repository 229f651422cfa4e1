package coverage

import "sync/atomic"

// resolveStats counts trace steps by whether their program counter mapped to
// a source range of the executing program.
type resolveStats struct {
	resolved int64
	unmapped int64
}

func (s *resolveStats) add(other resolveStats) {
	s.resolved += other.resolved
	s.unmapped += other.unmapped
}

// profile holds the counters of the latest computation of an aggregator.
type profile struct {
	resolved atomic.Int64
	unmapped atomic.Int64
}

func (p *profile) store(s resolveStats) {
	p.resolved.Store(s.resolved)
	p.unmapped.Store(s.unmapped)
}

// ProfileCounters returns (resolved, unmapped) trace steps of the latest
// Compute call.
func (a *Aggregator) ProfileCounters() (int64, int64) {
	return a.profile.resolved.Load(), a.profile.unmapped.Load()
}
