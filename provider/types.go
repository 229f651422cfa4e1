package provider

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StructLog is a single step of a struct-logger execution trace, as returned by
// debug_traceTransaction.
type StructLog struct {
	Pc      uint64   `json:"pc"`
	Op      string   `json:"op"`
	Gas     uint64   `json:"gas"`
	GasCost uint64   `json:"gasCost"`
	Depth   int      `json:"depth"`
	Error   string   `json:"error,omitempty"`
	Stack   []string `json:"stack,omitempty"`
}

// TransactionTrace is the replayed execution of one transaction. It is never
// modified once decoded.
type TransactionTrace struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

// Transaction is the part of a block transaction object the collector reads.
type Transaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
}

// Block is the part of an eth_getBlockByNumber result (with full transaction
// objects) the collector reads.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	Transactions []Transaction  `json:"transactions"`
}
