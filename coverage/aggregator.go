package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/clydemeng/solcov/artifacts"
	"github.com/clydemeng/solcov/provider"
	"github.com/clydemeng/solcov/sourcemap"
)

// ErrUnknownAddress is returned when a trace was recorded for an address whose
// deployed code matches none of the known programs.
var ErrUnknownAddress = errors.New("transaction to an unknown address")

const defaultFetchConcurrency = 8

// Aggregator turns recorded traces into per-file coverage.
type Aggregator struct {
	registry     *artifacts.Registry
	instrumenter Instrumenter
	engine       provider.Emitter
	concurrency  int
	profile      profile
}

// NewAggregator creates an aggregator resolving programs from registry.
// concurrency bounds the number of parallel eth_getCode requests; values below
// one select the default.
func NewAggregator(registry *artifacts.Registry, instrumenter Instrumenter, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = defaultFetchConcurrency
	}
	return &Aggregator{registry: registry, instrumenter: instrumenter, concurrency: concurrency}
}

// SetEngine attaches the chain used to fetch deployed code.
func (a *Aggregator) SetEngine(e provider.Emitter) {
	a.engine = e
}

// Compute builds the coverage report of every trace in the store. It fails as
// a whole if any traced address cannot be matched to a program. The store is
// only read, so computing twice over the same store yields the same report.
func (a *Aggregator) Compute(ctx context.Context, store *TraceStore) (Report, error) {
	start := time.Now()
	addrs := store.Addresses()

	codes, err := a.fetchCode(ctx, addrs)
	if err != nil {
		return nil, err
	}
	var (
		report = make(Report)
		stats  resolveStats
	)
	for i, addr := range addrs {
		program := a.registry.ByBytecode(codes[i])
		if program == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr.Hex())
		}
		partial, partialStats, err := a.programCoverage(program, store.Traces(addr))
		if err != nil {
			return nil, fmt.Errorf("program %s at %s: %w", program.Name, addr.Hex(), err)
		}
		report.Merge(partial)
		stats.add(partialStats)
	}
	a.profile.store(stats)
	log.Info("Computed coverage", "addresses", len(addrs), "traces", store.Len(), "files", len(report), "steps", stats.resolved, "unmapped", stats.unmapped, "elapsed", common.PrettyDuration(time.Since(start)))
	return report, nil
}

// fetchCode retrieves the currently deployed code of every address.
func (a *Aggregator) fetchCode(ctx context.Context, addrs []common.Address) ([]hexutil.Bytes, error) {
	codes := make([]hexutil.Bytes, len(addrs))
	if len(addrs) == 0 {
		return codes, nil
	}
	if a.engine == nil {
		return nil, errDetached
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			if err := provider.Decode(gctx, a.engine, &provider.GetCode{Address: addr}, &codes[i]); err != nil {
				return fmt.Errorf("fetch code of %s: %w", addr.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return codes, nil
}

// programCoverage computes the coverage of every source file of the program
// from the traces recorded at one of its deployments.
func (a *Aggregator) programCoverage(program *artifacts.Program, traces []*provider.TransactionTrace) (Report, resolveStats, error) {
	var stats resolveStats
	offsets, err := sourcemap.Parse(program.SourceCodes, program.SourceMapRuntime, program.RuntimeBytecode, program.Sources)
	if err != nil {
		return nil, stats, err
	}
	resolved := make([][]sourcemap.Range, len(traces))
	for i, trace := range traces {
		for _, step := range trace.StructLogs {
			if r, ok := offsets[int(step.Pc)]; ok {
				resolved[i] = append(resolved[i], r)
			} else {
				stats.unmapped++
			}
		}
		stats.resolved += int64(len(resolved[i]))
	}
	report := make(Report, len(program.Sources))
	for i, file := range program.Sources {
		inst, err := a.instrumenter.Instrument(program.SourceCodes[i], file)
		if err != nil {
			return nil, stats, fmt.Errorf("instrument %s: %w", file, err)
		}
		fc := newFileCoverage(file, inst)
		for _, ranges := range resolved {
			lines := mapset.NewThreadUnsafeSet[int]()
			for _, r := range ranges {
				if r.File == file {
					lines.Add(r.Location.Start.Line)
				}
			}
			fc.addTrace(lines)
		}
		report.Merge(Report{file: fc})
	}
	return report, stats, nil
}
