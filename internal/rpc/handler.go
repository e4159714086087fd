package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/metrics"
	"github.com/insoblok/inso-txpool/internal/signer"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Handler dispatches JSON-RPC methods to their implementations.
type Handler struct {
	pool    mempool.TxPool
	txpool  TxpoolBackend
	txs     TransactionBackend
	signers *signer.Registry
	metrics *metrics.Metrics
	limiter *rate.Limiter
	chainID *big.Int
	logger  log.Logger
}

// NewHandler creates a new JSON-RPC handler.
func NewHandler(pool mempool.TxPool, txpool TxpoolBackend, txs TransactionBackend, chainID *big.Int) *Handler {
	return &Handler{
		pool:    pool,
		txpool:  txpool,
		txs:     txs,
		chainID: new(big.Int).Set(chainID),
		logger:  log.New("module", "rpc-handler"),
	}
}

// SetSigners attaches the local key registry.
func (h *Handler) SetSigners(r *signer.Registry) { h.signers = r }

// SetMetrics attaches the Prometheus metrics instance.
func (h *Handler) SetMetrics(m *metrics.Metrics) { h.metrics = m }

// SetRateLimit caps request throughput. A non-positive rps disables the limit.
func (h *Handler) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		h.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Handle processes a single JSON-RPC request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	h.logger.Debug("RPC request", "method", req.Method, "id", req.ID)
	start := time.Now()

	if h.limiter != nil && !h.limiter.Allow() {
		h.metrics.RateLimited()
		h.metrics.ObserveRequest(req.Method, time.Since(start), KindRateLimited)
		return errorResponse(req.ID, codeLimitExceeded, KindRateLimited, "request rate limit exceeded")
	}

	var result interface{}
	var err error

	switch req.Method {
	case "eth_chainId":
		result = (*hexutil.Big)(h.chainID)
	case "net_version":
		result = h.chainID.String()
	case "eth_sendRawTransaction":
		result, err = h.sendRawTransaction(ctx, req.Params)
	case "eth_getTransactionByHash":
		result, err = h.getTransactionByHash(ctx, req.Params)
	case "eth_accounts":
		result = h.accounts()
	case "eth_signTransaction":
		result, err = h.signTransaction(req.Params)

	case "txpool_status":
		result, err = h.txpool.Status(ctx)
	case "txpool_inspect":
		result, err = h.txpool.Inspect(ctx)
	case "txpool_content":
		result, err = h.txpool.Content(ctx)
	case "txpool_contentFrom":
		result, err = h.contentFrom(ctx, req.Params)

	default:
		h.metrics.ObserveRequest(req.Method, time.Since(start), KindMethodNotFound)
		return errorResponse(req.ID, codeMethodNotFound, KindMethodNotFound,
			fmt.Sprintf("the method %s does not exist/is not available", req.Method))
	}

	if err == nil {
		var resp *JSONRPCResponse
		if resp, err = resultResponse(req.ID, result); err == nil {
			h.metrics.ObserveRequest(req.Method, time.Since(start), "")
			return resp
		}
	}

	code, kind := classify(err)
	if kind == KindInternal {
		h.logger.Warn("RPC request failed", "method", req.Method, "err", err)
	}
	h.metrics.ObserveRequest(req.Method, time.Since(start), kind)
	return errorResponse(req.ID, code, kind, err.Error())
}

// --- eth namespace ---

func (h *Handler) sendRawTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var args []hexutil.Bytes
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("expected [rawTransaction]")
	}
	raw := args[0]
	if insoTypes.IsDepositEncoding(raw) {
		return nil, errDepositSubmission
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	if err := h.pool.Submit(ctx, tx); err != nil {
		if reason := rejectReason(err); reason != "" {
			h.metrics.PoolRejected(reason)
		}
		return nil, err
	}
	return tx.Hash(), nil
}

func (h *Handler) getTransactionByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var args []common.Hash
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("expected [transactionHash]")
	}
	tx, found, err := h.txs.GetTransactionByHash(ctx, args[0])
	if err != nil || !found {
		return nil, err
	}
	return tx, nil
}

func (h *Handler) accounts() []common.Address {
	if h.signers == nil {
		return []common.Address{}
	}
	return h.signers.Accounts()
}

// signTxArgs are the fields accepted by eth_signTransaction.
type signTxArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
}

// signTxResult mirrors geth's eth_signTransaction response.
type signTxResult struct {
	Raw hexutil.Bytes      `json:"raw"`
	Tx  *types.Transaction `json:"tx"`
}

func (args *signTxArgs) toTransaction(chainID *big.Int) (*types.Transaction, error) {
	if args.From == nil {
		return nil, invalidParams("missing from")
	}
	if args.Gas == nil || args.Nonce == nil {
		return nil, invalidParams("gas and nonce must be set")
	}
	if args.GasPrice != nil && (args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil) {
		return nil, invalidParams("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return nil, invalidParams("both data and input are set and not equal")
	}

	var data []byte
	if args.Input != nil {
		data = *args.Input
	} else if args.Data != nil {
		data = *args.Data
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	if args.MaxFeePerGas != nil {
		tip := new(big.Int)
		if args.MaxPriorityFeePerGas != nil {
			tip = args.MaxPriorityFeePerGas.ToInt()
		}
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     uint64(*args.Nonce),
			GasTipCap: tip,
			GasFeeCap: args.MaxFeePerGas.ToInt(),
			Gas:       uint64(*args.Gas),
			To:        args.To,
			Value:     value,
			Data:      data,
		}), nil
	}
	if args.GasPrice == nil {
		return nil, invalidParams("missing gasPrice or maxFeePerGas")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    uint64(*args.Nonce),
		GasPrice: args.GasPrice.ToInt(),
		Gas:      uint64(*args.Gas),
		To:       args.To,
		Value:    value,
		Data:     data,
	}), nil
}

func (h *Handler) signTransaction(params json.RawMessage) (interface{}, error) {
	if h.signers == nil {
		return nil, fmt.Errorf("%w: no signer configured", signer.ErrUnknownAccount)
	}
	var args []signTxArgs
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("expected [transactionArgs]")
	}
	tx, err := args[0].toTransaction(h.chainID)
	if err != nil {
		return nil, err
	}
	signed, err := h.signers.SignTx(*args[0].From, tx)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return signTxResult{Raw: raw, Tx: signed}, nil
}

// --- txpool namespace ---

func (h *Handler) contentFrom(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("expected [address]")
	}
	if !common.IsHexAddress(args[0]) {
		return nil, invalidParams("invalid address %q", args[0])
	}
	return h.txpool.ContentFrom(ctx, common.HexToAddress(args[0]))
}
