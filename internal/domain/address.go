package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const (
	shortPrefixLen = 8
	shortSuffixLen = 4
)

// NormalizeAddress validates the address for the chain and returns its canonical form.
// Solana keys must decode from base58 to 32 bytes, Ethereum addresses are
// returned in EIP-55 checksum form.
func NormalizeAddress(chain Chain, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.Wrap(ErrInvalidAddress, "empty address")
	}

	switch chain {
	case ChainSolana:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidAddress, "solana address %q: %v", address, err)
		}
		return pk.String(), nil
	case ChainEthereum:
		if !common.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
			return "", errors.Wrapf(ErrInvalidAddress, "ethereum address %q", address)
		}
		return common.HexToAddress(address).Hex(), nil
	default:
		return "", errors.Wrapf(ErrUnknownChain, "chain %q", chain)
	}
}

// ShortAddress renders the first 8 and last 4 characters of an address.
// Addresses too short to abbreviate are returned unchanged.
func ShortAddress(address string) string {
	if len(address) <= shortPrefixLen+shortSuffixLen {
		return address
	}
	return address[:shortPrefixLen] + "..." + address[len(address)-shortSuffixLen:]
}
