// Package coverage records the execution traces of transactions sent through a
// dispatch chain and maps them back to Solidity line and function coverage.
package coverage

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clydemeng/solcov/artifacts"
	"github.com/clydemeng/solcov/provider"
)

// Config holds the settings of a coverage run.
type Config struct {
	ArtifactsPath    string
	SourcesPath      string
	NetworkID        uint64
	ReportPath       string
	LCOVPath         string `toml:",omitempty"`
	FetchConcurrency int
}

// DefaultConfig contains the settings used by a test harness that does not
// override them.
var DefaultConfig = Config{
	ArtifactsPath:    "./src/artifacts",
	SourcesPath:      "./src/contracts",
	NetworkID:        50,
	ReportPath:       DefaultReportPath,
	FetchConcurrency: defaultFetchConcurrency,
}

// Registry returns the program registry settings of the configuration.
func (c *Config) Registry() artifacts.Config {
	return artifacts.Config{
		ArtifactsPath: c.ArtifactsPath,
		SourcesPath:   c.SourcesPath,
		NetworkID:     c.NetworkID,
	}
}

// inFlighter is implemented by engines that can report outstanding requests.
type inFlighter interface {
	Pending() []provider.PendingRequest
}

// Collector is the coverage subprovider of a test harness. It is created once
// when the harness starts, added to the harness' provider.Engine and closed
// when the harness is done.
type Collector struct {
	config      Config
	store       *TraceStore
	interceptor *Interceptor
	aggregator  *Aggregator
	engine      provider.Emitter
	closed      atomic.Bool
}

// NewCollector creates a collector attributing traces to the programs of
// registry.
func NewCollector(config Config, registry *artifacts.Registry, instrumenter Instrumenter) *Collector {
	if config.ReportPath == "" {
		config.ReportPath = DefaultReportPath
	}
	store := NewTraceStore()
	return &Collector{
		config:      config,
		store:       store,
		interceptor: NewInterceptor(store),
		aggregator:  NewAggregator(registry, instrumenter, config.FetchConcurrency),
	}
}

// SetEngine is called by provider.Engine.AddProvider.
func (c *Collector) SetEngine(e provider.Emitter) {
	c.engine = e
	c.interceptor.SetEngine(e)
	c.aggregator.SetEngine(e)
}

// HandleRequest implements provider.Subprovider. After Close every request is
// passed through untouched.
func (c *Collector) HandleRequest(ctx context.Context, req provider.Request, next provider.NextFunc, end provider.EndFunc) {
	if c.closed.Load() {
		next(nil)
		return
	}
	c.interceptor.HandleRequest(ctx, req, next, end)
}

// RecordTrace fetches and stores the trace of an already mined transaction.
func (c *Collector) RecordTrace(ctx context.Context, to *common.Address, hash common.Hash) error {
	return c.interceptor.RecordTrace(ctx, to, hash)
}

// Traces returns the trace store of the collector.
func (c *Collector) Traces() *TraceStore {
	return c.store
}

// ComputeCoverage maps every trace recorded so far to source coverage. The
// caller must make sure all transactions it sent have returned, traces of
// calls still in flight are not waited for.
func (c *Collector) ComputeCoverage(ctx context.Context) (Report, error) {
	if e, ok := c.engine.(inFlighter); ok {
		if pending := e.Pending(); len(pending) > 0 {
			methods := make([]string, len(pending))
			for i, req := range pending {
				methods[i] = req.Method
			}
			log.Warn("Computing coverage with requests in flight", "count", len(pending), "methods", methods, "oldest", common.PrettyDuration(pending[0].Age))
		}
	}
	return c.aggregator.Compute(ctx, c.store)
}

// ProfileCounters returns (resolved, unmapped) trace steps of the latest
// coverage computation.
func (c *Collector) ProfileCounters() (int64, int64) {
	return c.aggregator.ProfileCounters()
}

// WriteCoverage computes the coverage and writes the report. Nothing is written
// if the computation fails.
func (c *Collector) WriteCoverage(ctx context.Context) (Report, error) {
	report, err := c.ComputeCoverage(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteReport(c.config.ReportPath, report); err != nil {
		return nil, err
	}
	if c.config.LCOVPath != "" {
		if err := WriteLCOV(c.config.LCOVPath, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Close stops the collector from intercepting further transactions.
func (c *Collector) Close() {
	if c.closed.CompareAndSwap(false, true) {
		log.Debug("Closed coverage collector", "traces", c.store.Len())
	}
}
