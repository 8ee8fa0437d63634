package chainrpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// DefaultEthereumRPC public Ethereum mainnet endpoint.
const DefaultEthereumRPC = "https://cloudflare-eth.com"

// EthereumClient reads wei balances with eth_getBalance at the latest block.
type EthereumClient struct {
	client *ethclient.Client
}

// NewEthereumClient dials the endpoint. HTTP endpoints connect lazily on the first call.
func NewEthereumClient(ctx context.Context, endpoint string) (*EthereumClient, error) {
	if endpoint == "" {
		endpoint = DefaultEthereumRPC
	}

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial ethereum rpc %s", endpoint)
	}

	return &EthereumClient{client: client}, nil
}

// Balance returns the wei balance of the address.
func (c *EthereumClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.Wrapf(domain.ErrInvalidAddress, "ethereum address %q", address)
	}

	wei, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrRpcUnavailable, "eth_getBalance: %v", err)
	}

	return wei, nil
}

// Close releases the underlying RPC client.
func (c *EthereumClient) Close() {
	c.client.Close()
}
