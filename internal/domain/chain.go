// Package domain defines core data structures shared by the wallet engine.
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Chain identifies a blockchain network with its own provider, indexer and RPC.
type Chain string

const (
	// ChainSolana Solana mainnet, Phantom-compatible provider.
	ChainSolana Chain = "solana"
	// ChainEthereum Ethereum mainnet, MetaMask-compatible provider.
	ChainEthereum Chain = "ethereum"
)

// AllChains returns every supported chain in a stable order.
func AllChains() []Chain {
	return []Chain{ChainSolana, ChainEthereum}
}

// ParseChain maps a chain name or wallet alias to a Chain.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solana", "sol", "phantom":
		return ChainSolana, nil
	case "ethereum", "eth", "metamask":
		return ChainEthereum, nil
	default:
		return "", errors.Wrapf(ErrUnknownChain, "chain %q", s)
	}
}

// String returns the string representation.
func (c Chain) String() string {
	return string(c)
}

// IsValid checks if the Chain value is valid.
func (c Chain) IsValid() bool {
	return c == ChainSolana || c == ChainEthereum
}

// Symbol returns the ticker of the chain's native unit.
func (c Chain) Symbol() string {
	switch c {
	case ChainSolana:
		return "SOL"
	case ChainEthereum:
		return "ETH"
	default:
		return ""
	}
}

// Decimals is the fixed scale between the smallest unit (lamports, wei)
// and the display unit.
func (c Chain) Decimals() int32 {
	switch c {
	case ChainSolana:
		return 9
	case ChainEthereum:
		return 18
	default:
		return 0
	}
}

// WalletName returns the name of the browser wallet used for the chain.
func (c Chain) WalletName() string {
	switch c {
	case ChainSolana:
		return "Phantom"
	case ChainEthereum:
		return "MetaMask"
	default:
		return ""
	}
}

// InstallURL is where the user is sent when the wallet extension is missing.
func (c Chain) InstallURL() string {
	switch c {
	case ChainSolana:
		return "https://phantom.app/"
	case ChainEthereum:
		return "https://metamask.io/download/"
	default:
		return ""
	}
}

// ExplorerURL returns a block explorer link for the address.
func (c Chain) ExplorerURL(address string) string {
	if address == "" {
		return ""
	}
	switch c {
	case ChainSolana:
		return "https://solscan.io/account/" + address
	case ChainEthereum:
		return "https://etherscan.io/address/" + address
	default:
		return ""
	}
}

// DefaultNetworkLabel is used when config does not name the network.
func (c Chain) DefaultNetworkLabel() string {
	switch c {
	case ChainSolana:
		return "solana-mainnet"
	case ChainEthereum:
		return "ethereum-mainnet"
	default:
		return ""
	}
}
