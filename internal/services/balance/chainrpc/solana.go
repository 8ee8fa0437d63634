// Package chainrpc queries native balances directly from chain nodes.
package chainrpc

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// DefaultSolanaRPC public Solana mainnet endpoint.
const DefaultSolanaRPC = "https://api.mainnet-beta.solana.com"

// SolanaClient reads lamport balances with getBalance at finalized commitment.
type SolanaClient struct {
	client *solrpc.Client
}

// NewSolanaClient creates a client for the endpoint.
func NewSolanaClient(endpoint string) *SolanaClient {
	if endpoint == "" {
		endpoint = DefaultSolanaRPC
	}
	return &SolanaClient{client: solrpc.New(endpoint)}
}

// Balance returns the lamport balance of the address.
func (c *SolanaClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidAddress, "solana address %q: %v", address, err)
	}

	out, err := c.client.GetBalance(ctx, pk, solrpc.CommitmentFinalized)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrRpcUnavailable, "solana getBalance: %v", err)
	}
	if out == nil {
		return nil, errors.Wrap(domain.ErrRpcUnavailable, "solana getBalance: empty result")
	}

	return new(big.Int).SetUint64(out.Value), nil
}
