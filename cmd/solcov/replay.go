package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/clydemeng/solcov/artifacts"
	"github.com/clydemeng/solcov/coverage"
	"github.com/clydemeng/solcov/instrument"
	"github.com/clydemeng/solcov/provider"
)

var (
	fromBlockFlag = &cli.Uint64Flag{
		Name:  "from",
		Usage: "First block to replay",
	}
	toBlockFlag = &cli.Uint64Flag{
		Name:  "to",
		Usage: "Last block to replay (defaults to --from)",
	}
	txFlag = &cli.StringSliceFlag{
		Name:  "tx",
		Usage: "Transaction hash to replay, may be repeated",
	}
	rateFlag = &cli.Float64Flag{
		Name:  "rate",
		Usage: "Maximum trace requests per second (0 = unlimited)",
	}
)

var replayCommand = &cli.Command{
	Name:  "replay",
	Usage: "Trace mined transactions and write their coverage report",
	Description: `
The replay command fetches the struct log trace of every transaction in the
given block range, or of the given transaction hashes, attributes the traces
to the compiled programs of the artifacts directory and writes the report.

Transactions whose destination does not run one of the compiled programs,
such as plain transfers or calls to unrelated contracts, are skipped.
Contract creations are skipped as well.`,
	Flags:  []cli.Flag{fromBlockFlag, toBlockFlag, txFlag, rateFlag},
	Action: replay,
}

func replay(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	if !ctx.IsSet(fromBlockFlag.Name) && len(ctx.StringSlice(txFlag.Name)) == 0 {
		return errors.New("nothing to replay, pass --from or --tx")
	}
	registry, err := artifacts.Load(cfg.Coverage.Registry())
	if err != nil {
		return err
	}
	instrumenter, err := instrument.NewFileInstrumenter(cfg.Instrumentation, 0)
	if err != nil {
		return err
	}
	node, err := provider.DialRPCProvider(ctx.Context, cfg.Node.RPC)
	if err != nil {
		return err
	}
	defer node.Close()

	collector := coverage.NewCollector(cfg.Coverage, registry, instrumenter)
	defer collector.Close()
	engine := provider.NewEngine(collector, node)

	txs, err := replayTargets(ctx, engine)
	if err != nil {
		return err
	}
	known, err := knownTargets(ctx.Context, engine, registry, txs)
	if err != nil {
		return err
	}
	log.Info("Replaying transactions", "count", len(known), "skipped", len(txs)-len(known), "programs", registry.Len())

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r := ctx.Float64(rateFlag.Name); r > 0 {
		limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	if err := recordTraces(ctx.Context, collector, known, cfg.Coverage.FetchConcurrency, limiter); err != nil {
		return err
	}
	report, err := collector.WriteCoverage(ctx.Context)
	if err != nil {
		return err
	}
	printSummary(color.Output, report)
	return nil
}

// replayTargets resolves the transactions selected on the command line.
func replayTargets(ctx *cli.Context, engine *provider.Engine) ([]provider.Transaction, error) {
	var txs []provider.Transaction
	for _, h := range ctx.StringSlice(txFlag.Name) {
		hash := common.HexToHash(h)
		var tx provider.Transaction
		req := &provider.Call{Name: "eth_getTransactionByHash", Args: []interface{}{hash}}
		if err := provider.Decode(ctx.Context, engine, req, &tx); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", hash, err)
		}
		txs = append(txs, tx)
	}
	if !ctx.IsSet(fromBlockFlag.Name) {
		return txs, nil
	}
	from := ctx.Uint64(fromBlockFlag.Name)
	to := from
	if ctx.IsSet(toBlockFlag.Name) {
		to = ctx.Uint64(toBlockFlag.Name)
	}
	if to < from {
		return nil, fmt.Errorf("invalid block range %d-%d", from, to)
	}
	for number := from; number <= to; number++ {
		block, err := fetchBlock(ctx.Context, engine, number)
		if err != nil {
			return nil, err
		}
		txs = append(txs, block.Transactions...)
	}
	return txs, nil
}

func fetchBlock(ctx context.Context, engine provider.Emitter, number uint64) (*provider.Block, error) {
	block := new(provider.Block)
	req := &provider.GetBlockByNumber{Block: hexutil.EncodeUint64(number), FullTx: true}
	if err := provider.Decode(ctx, engine, req, block); err != nil {
		return nil, fmt.Errorf("block %d: %w", number, err)
	}
	log.Debug("Fetched block", "number", number, "hash", block.Hash, "txs", len(block.Transactions))
	return block, nil
}

// knownTargets keeps the transactions calling an address whose deployed code
// is one of the registry's programs.
func knownTargets(ctx context.Context, engine provider.Emitter, registry *artifacts.Registry, txs []provider.Transaction) ([]provider.Transaction, error) {
	var (
		known = make(map[common.Address]bool)
		kept  []provider.Transaction
	)
	for _, tx := range txs {
		if tx.To == nil {
			continue
		}
		match, ok := known[*tx.To]
		if !ok {
			var code hexutil.Bytes
			if err := provider.Decode(ctx, engine, &provider.GetCode{Address: *tx.To}, &code); err != nil {
				return nil, fmt.Errorf("fetch code of %s: %w", tx.To.Hex(), err)
			}
			match = registry.ByBytecode(code) != nil
			known[*tx.To] = match
		}
		if !match {
			log.Debug("Skipping transaction to unknown code", "hash", tx.Hash, "to", *tx.To)
			continue
		}
		kept = append(kept, tx)
	}
	return kept, nil
}

// recordTraces fetches the traces of txs with at most limit requests in flight,
// paced by limiter.
func recordTraces(ctx context.Context, collector *coverage.Collector, txs []provider.Transaction, limit int, limiter *rate.Limiter) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			return collector.RecordTrace(gctx, tx.To, tx.Hash)
		})
	}
	return g.Wait()
}
