package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clydemeng/solcov/provider"
)

var errDetached = errors.New("interceptor is not attached to an engine")

// Interceptor is the dispatch chain link that watches outgoing transactions
// and records the execution trace of each one once it has been mined.
type Interceptor struct {
	store  *TraceStore
	engine provider.Emitter
}

// NewInterceptor creates an interceptor recording into store.
func NewInterceptor(store *TraceStore) *Interceptor {
	return &Interceptor{store: store}
}

// SetEngine attaches the chain the interceptor issues its own requests into.
func (i *Interceptor) SetEngine(e provider.Emitter) {
	i.engine = e
}

// HandleRequest implements provider.Subprovider. Transactions are passed on
// with a completion callback that fetches their trace in the background, every
// other request is passed on untouched.
func (i *Interceptor) HandleRequest(ctx context.Context, req provider.Request, next provider.NextFunc, _ provider.EndFunc) {
	send, ok := req.(*provider.SendTransaction)
	if !ok {
		next(nil)
		return
	}
	var to *common.Address
	if send.Args.To != nil {
		addr := *send.Args.To
		to = &addr
	}
	next(func(err error, result json.RawMessage, cb func(error)) {
		go func() {
			cb(i.onTransactionSent(context.WithoutCancel(ctx), to, err, result))
		}()
	})
}

// onTransactionSent records the trace of a settled transaction. When the node
// rejected it and no hash is available, every transaction of the latest block
// is traced instead.
func (i *Interceptor) onTransactionSent(ctx context.Context, to *common.Address, callErr error, result json.RawMessage) error {
	if callErr == nil {
		var hash common.Hash
		if err := json.Unmarshal(result, &hash); err != nil {
			return fmt.Errorf("decode transaction hash: %w", err)
		}
		return i.RecordTrace(ctx, to, hash)
	}
	if i.engine == nil {
		return errDetached
	}
	log.Debug("Transaction failed, tracing latest block", "to", to, "err", callErr)

	var block provider.Block
	if err := provider.Decode(ctx, i.engine, &provider.GetBlockByNumber{Block: "latest", FullTx: true}, &block); err != nil {
		return fmt.Errorf("fetch latest block: %w", err)
	}
	for _, tx := range block.Transactions {
		if err := i.RecordTrace(ctx, tx.To, tx.Hash); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrace fetches the trace of the transaction and stores it under the
// called address. Contract creations (to == nil) are not supported and are
// skipped without error.
func (i *Interceptor) RecordTrace(ctx context.Context, to *common.Address, hash common.Hash) error {
	if to == nil {
		log.Debug("Skipping contract creation trace", "hash", hash)
		return nil
	}
	if i.engine == nil {
		return errDetached
	}
	trace := new(provider.TransactionTrace)
	if err := provider.Decode(ctx, i.engine, &provider.TraceTransaction{Hash: hash}, trace); err != nil {
		return fmt.Errorf("trace transaction %s: %w", hash.Hex(), err)
	}
	i.store.Append(*to, trace)
	log.Debug("Recorded transaction trace", "address", *to, "hash", hash, "steps", len(trace.StructLogs))
	return nil
}
