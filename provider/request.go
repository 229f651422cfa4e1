package provider

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request is one JSON-RPC call travelling through the dispatch chain. The set
// of implementations is closed: the methods the coverage collector observes or
// issues itself have a dedicated type, everything else is carried by Call.
type Request interface {
	// Method returns the JSON-RPC method name.
	Method() string
	// Params returns the positional JSON-RPC parameters.
	Params() []interface{}

	isRequest()
}

// TransactionArgs carries the fields of an eth_sendTransaction call. A nil To
// marks a contract creation.
type TransactionArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

// SendTransaction is an eth_sendTransaction request.
type SendTransaction struct {
	Args TransactionArgs
}

func (r *SendTransaction) Method() string        { return "eth_sendTransaction" }
func (r *SendTransaction) Params() []interface{} { return []interface{}{r.Args} }
func (*SendTransaction) isRequest()              {}

// GetCode is an eth_getCode request.
type GetCode struct {
	Address common.Address
	Block   string // block tag or hex number, "latest" when empty
}

func (r *GetCode) Method() string { return "eth_getCode" }
func (r *GetCode) Params() []interface{} {
	return []interface{}{r.Address, blockTag(r.Block)}
}
func (*GetCode) isRequest() {}

// GetBlockByNumber is an eth_getBlockByNumber request.
type GetBlockByNumber struct {
	Block  string // block tag or hex number, "latest" when empty
	FullTx bool
}

func (r *GetBlockByNumber) Method() string { return "eth_getBlockByNumber" }
func (r *GetBlockByNumber) Params() []interface{} {
	return []interface{}{blockTag(r.Block), r.FullTx}
}
func (*GetBlockByNumber) isRequest() {}

// TraceConfig is the subset of the debug tracer options the collector sends.
// The zero value asks the node for the default struct logger.
type TraceConfig struct {
	DisableStack   bool   `json:"disableStack,omitempty"`
	DisableStorage bool   `json:"disableStorage,omitempty"`
	EnableMemory   bool   `json:"enableMemory,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

// TraceTransaction is a debug_traceTransaction request.
type TraceTransaction struct {
	Hash   common.Hash
	Config TraceConfig
}

func (r *TraceTransaction) Method() string        { return "debug_traceTransaction" }
func (r *TraceTransaction) Params() []interface{} { return []interface{}{r.Hash, r.Config} }
func (*TraceTransaction) isRequest()              {}

// Call is any request the collector does not need to understand. It is passed
// through the chain untouched.
type Call struct {
	Name string
	Args []interface{}
}

func (r *Call) Method() string        { return r.Name }
func (r *Call) Params() []interface{} { return r.Args }
func (*Call) isRequest()              {}

func blockTag(block string) string {
	if block == "" {
		return "latest"
	}
	return block
}
