package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/fees"
)

var errNoBaseFee = errors.New("l1 header has no base fee")

// HeaderSource reads L1 block headers. *ethclient.Client satisfies it.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Oracle tracks the L1 block context used to price rollup transactions.
// Without a header source it serves the configured static values.
type Oracle struct {
	mu     sync.RWMutex
	cfg    *config.L1Config
	source HeaderSource
	latest *fees.L1Block
	logger log.Logger
	cancel context.CancelFunc
}

// New creates an oracle. source may be nil.
func New(cfg *config.L1Config, source HeaderSource) *Oracle {
	o := &Oracle{
		cfg:    cfg,
		source: source,
		logger: log.New("module", "l1"),
	}
	if source == nil {
		o.latest = o.blockInfo(0, uint256.NewInt(cfg.BaseFee), uint256.NewInt(cfg.BlobBaseFee))
	}
	return o
}

// Dial connects to the L1 node configured in cfg. An empty RPC URL yields a
// static oracle.
func Dial(ctx context.Context, cfg *config.L1Config) (*Oracle, error) {
	if cfg.RPCURL == "" {
		return New(cfg, nil), nil
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial l1: %w", err)
	}
	return New(cfg, client), nil
}

// Latest returns the most recent L1 block context, or nil before the first
// successful poll.
func (o *Oracle) Latest() fees.L1BlockInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return nil
	}
	return o.latest
}

// Poll fetches the L1 head and updates the block context.
func (o *Oracle) Poll(ctx context.Context) error {
	if o.source == nil {
		return nil
	}
	header, err := o.source.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("fetch l1 head: %w", err)
	}
	if header.BaseFee == nil {
		return errNoBaseFee
	}
	baseFee, overflow := uint256.FromBig(header.BaseFee)
	if overflow {
		return fmt.Errorf("l1 base fee overflows: %s", header.BaseFee)
	}
	blobBaseFee := uint256.NewInt(o.cfg.BlobBaseFee)
	if header.ExcessBlobGas != nil {
		blobFee := eip4844.CalcBlobFee(*header.ExcessBlobGas)
		if blobBaseFee, overflow = uint256.FromBig(blobFee); overflow {
			return fmt.Errorf("l1 blob base fee overflows: %s", blobFee)
		}
	}

	info := o.blockInfo(header.Number.Uint64(), baseFee, blobBaseFee)
	o.mu.Lock()
	o.latest = info
	o.mu.Unlock()

	o.logger.Debug("L1 block context updated",
		"number", info.Number,
		"baseFee", info.BaseFee,
		"blobBaseFee", info.BlobBaseFee,
	)
	return nil
}

func (o *Oracle) blockInfo(number uint64, baseFee, blobBaseFee *uint256.Int) *fees.L1Block {
	return &fees.L1Block{
		Number:              number,
		BaseFee:             baseFee,
		BlobBaseFee:         blobBaseFee,
		FeeOverhead:         uint256.NewInt(o.cfg.FeeOverhead),
		FeeScalar:           uint256.NewInt(o.cfg.FeeScalar),
		BaseFeeScalar:       uint256.NewInt(o.cfg.BaseFeeScalar),
		BlobBaseFeeScalar:   uint256.NewInt(o.cfg.BlobBaseFeeScalar),
		EmptyEcotoneScalars: o.cfg.BaseFeeScalar == 0 && o.cfg.BlobBaseFeeScalar == 0,
	}
}

// Start polls the L1 head every poll interval until ctx is cancelled or
// Stop is called.
func (o *Oracle) Start(ctx context.Context) {
	if o.source == nil {
		o.logger.Info("L1 oracle using static block context", "baseFee", o.cfg.BaseFee)
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.logger.Info("L1 oracle started",
		"interval", o.cfg.PollInterval,
		"l1Rpc", o.cfg.RPCURL,
	)
	if err := o.Poll(ctx); err != nil {
		o.logger.Warn("L1 poll failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("L1 oracle stopped")
			return
		case <-ticker.C:
			if err := o.Poll(ctx); err != nil {
				o.logger.Warn("L1 poll failed", "err", err)
			}
		}
	}
}

// Stop halts the polling loop.
func (o *Oracle) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}
