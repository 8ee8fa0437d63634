package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// NewHyperliquidInfo builds a read-only Info client.
// The SDK only constructs Info through an Exchange, which needs a signing key;
// a throwaway key is generated because no signed action is ever sent.
func NewHyperliquidInfo(baseURL string) (*hyperliquid.Info, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pub).Hex()

	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return ex.Info(), nil
}
