package coverage

import (
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/solcov/artifacts"
	"github.com/clydemeng/solcov/provider"
	"github.com/clydemeng/solcov/sourcemap"
)

func init() {
	// Attach a human-readable terminal handler so we can see logs during tests.
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
}

// testNode is an in-memory node answering the handful of methods the
// collector relies on. Transactions "execute" by consuming the next scripted
// trace of their destination.
type testNode struct {
	mu         sync.Mutex
	code       map[common.Address]hexutil.Bytes
	scripts    map[common.Address][]*provider.TransactionTrace
	traces     map[common.Hash]*provider.TransactionTrace
	latest     provider.Block
	txCount    int64
	failSend   bool
	dropTraces bool
}

func newTestNode() *testNode {
	return &testNode{
		code:    make(map[common.Address]hexutil.Bytes),
		scripts: make(map[common.Address][]*provider.TransactionTrace),
		traces:  make(map[common.Hash]*provider.TransactionTrace),
	}
}

func (n *testNode) deploy(addr common.Address, code string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code[addr] = common.FromHex(code)
}

func (n *testNode) script(addr common.Address, traces ...*provider.TransactionTrace) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scripts[addr] = append(n.scripts[addr], traces...)
}

// start serves the node in-process and returns an engine with the collector in
// front of it.
func (n *testNode) start(t *testing.T, collector *Collector) *provider.Engine {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &testEthAPI{n}))
	require.NoError(t, srv.RegisterName("debug", &testDebugAPI{n}))
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return provider.NewEngine(collector, provider.NewRPCProvider(client))
}

type testEthAPI struct{ n *testNode }

func (api *testEthAPI) GetCode(addr common.Address, block string) (hexutil.Bytes, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	code, ok := api.n.code[addr]
	if !ok {
		return hexutil.Bytes{}, nil
	}
	return code, nil
}

func (api *testEthAPI) SendTransaction(args provider.TransactionArgs) (common.Hash, error) {
	n := api.n
	n.mu.Lock()
	defer n.mu.Unlock()

	n.txCount++
	hash := common.BigToHash(big.NewInt(n.txCount))
	trace := &provider.TransactionTrace{}
	if args.To != nil {
		if queue := n.scripts[*args.To]; len(queue) > 0 {
			trace, n.scripts[*args.To] = queue[0], queue[1:]
		}
	}
	if !n.dropTraces {
		n.traces[hash] = trace
	}
	n.latest = provider.Block{
		Number:       hexutil.Uint64(n.txCount),
		Transactions: []provider.Transaction{{Hash: hash, From: args.From, To: args.To}},
	}
	if n.failSend {
		return common.Hash{}, errors.New("execution reverted")
	}
	return hash, nil
}

func (api *testEthAPI) GetBlockByNumber(number string, full bool) (*provider.Block, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	if number != "latest" || !full {
		return nil, errors.New("unsupported block query")
	}
	block := api.n.latest
	return &block, nil
}

type testDebugAPI struct{ n *testNode }

func (api *testDebugAPI) TraceTransaction(hash common.Hash, config *provider.TraceConfig) (*provider.TransactionTrace, error) {
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	trace, ok := api.n.traces[hash]
	if !ok {
		return nil, errors.New("transaction " + hash.Hex() + " not found")
	}
	return trace, nil
}

// The token fixture is a single-file program whose four instructions map to
// lines 1, 2, 3 and 3.
const (
	tokenFile      = "/contracts/Token.sol"
	tokenSource    = "aaaa\nbbbb\ncccc\n"
	tokenCode      = "0x5b5b5b00"
	tokenSourceMap = "0:4:0:-;5:4:0:-;10:4:0:-;10:4:0:-"
)

var (
	tokenAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	otherAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	transferFn  = FunctionDescription{Name: "transfer", Line: 1, Loc: sourcemap.Location{Start: sourcemap.LineColumn{Line: 1}, End: sourcemap.LineColumn{Line: 3, Column: 4}}}
	tokenLayout = &Instrumentation{RunnableLines: []int{1, 2, 3}, FnMap: map[int]FunctionDescription{1: transferFn}}
)

func tokenProgram() *artifacts.Program {
	return &artifacts.Program{
		Name:             "Token",
		RuntimeBytecode:  tokenCode,
		SourceMapRuntime: tokenSourceMap,
		Sources:          []string{tokenFile},
		SourceCodes:      []string{tokenSource},
	}
}

// staticInstrumenter serves fixed instrumentation per file name.
type staticInstrumenter map[string]*Instrumentation

func (s staticInstrumenter) Instrument(_, fileName string) (*Instrumentation, error) {
	inst, ok := s[fileName]
	if !ok {
		return nil, errors.New("no instrumentation for " + fileName)
	}
	return inst, nil
}

// trace builds a trace sampling the given program counters.
func trace(pcs ...uint64) *provider.TransactionTrace {
	t := &provider.TransactionTrace{Gas: 21000}
	for _, pc := range pcs {
		t.StructLogs = append(t.StructLogs, provider.StructLog{Pc: pc, Op: "JUMPDEST", Depth: 1})
	}
	return t
}

// newTestCollector returns a collector for the token fixture writing its
// report into a temporary directory.
func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	cfg := DefaultConfig
	cfg.ReportPath = t.TempDir() + "/coverage/coverage.json"
	return NewCollector(cfg, artifacts.NewRegistry(tokenProgram()), staticInstrumenter{tokenFile: tokenLayout})
}
