package mempool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NonceSource reports the next nonce an account is expected to use on chain.
type NonceSource interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// ZeroNonces treats every account as fresh. It is used when no execution
// node is configured.
type ZeroNonces struct{}

func (ZeroNonces) NonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }

// ClientNonces reads account nonces from an execution node at the latest block.
type ClientNonces struct {
	client *ethclient.Client
}

// DialNonces connects to the execution node at rawurl.
func DialNonces(ctx context.Context, rawurl string) (*ClientNonces, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return &ClientNonces{client: client}, nil
}

func (c *ClientNonces) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.client.NonceAt(ctx, account, nil)
}

// Close disconnects from the execution node.
func (c *ClientNonces) Close() { c.client.Close() }
