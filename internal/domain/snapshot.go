package domain

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// BalanceSource records which data source produced a balance.
type BalanceSource string

const (
	// BalanceSourceNone no balance has been resolved.
	BalanceSourceNone BalanceSource = ""
	// BalanceSourceIndexer balance came from the chain's indexer API.
	BalanceSourceIndexer BalanceSource = "indexer"
	// BalanceSourceRpc balance came from a direct RPC query.
	BalanceSourceRpc BalanceSource = "rpc"
)

// String returns the string representation.
func (s BalanceSource) String() string {
	return string(s)
}

// WalletSnapshot is an immutable description of one chain's wallet state.
// Values are replaced wholesale on every publish; construct them with
// NewConnectedSnapshot or NewDisconnectedSnapshot so the invariants hold.
type WalletSnapshot struct {
	Chain         Chain         `json:"chain"`
	Address       string        `json:"address,omitempty"`
	BalanceNative float64       `json:"balance_native"`
	BalanceUSD    *float64      `json:"balance_usd,omitempty"`
	NetworkLabel  string        `json:"network"`
	Connected     bool          `json:"connected"`
	Source        BalanceSource `json:"source,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewConnectedSnapshot creates a snapshot for a wallet with a resolved balance.
func NewConnectedSnapshot(
	chain Chain,
	address string,
	balanceNative float64,
	balanceUSD *float64,
	networkLabel string,
	source BalanceSource,
	updatedAt time.Time,
) (WalletSnapshot, error) {
	s := WalletSnapshot{
		Chain:         chain,
		Address:       address,
		BalanceNative: balanceNative,
		NetworkLabel:  networkLabel,
		Connected:     true,
		Source:        source,
		UpdatedAt:     updatedAt,
	}
	if balanceUSD != nil {
		usd := *balanceUSD
		s.BalanceUSD = &usd
	}
	if err := s.Validate(); err != nil {
		return WalletSnapshot{}, err
	}
	return s, nil
}

// NewDisconnectedSnapshot creates a cleared snapshot for the chain.
func NewDisconnectedSnapshot(chain Chain, networkLabel string, updatedAt time.Time) WalletSnapshot {
	return WalletSnapshot{
		Chain:        chain,
		NetworkLabel: networkLabel,
		UpdatedAt:    updatedAt,
	}
}

// Validate checks the snapshot invariants.
func (s WalletSnapshot) Validate() error {
	if !s.Chain.IsValid() {
		return errors.Wrapf(ErrUnknownChain, "snapshot chain %q", s.Chain)
	}
	if s.Connected && s.Address == "" {
		return errors.New("connected snapshot without address")
	}
	if s.BalanceNative < 0 || math.IsNaN(s.BalanceNative) || math.IsInf(s.BalanceNative, 0) {
		return errors.Errorf("invalid native balance %v", s.BalanceNative)
	}
	if s.BalanceUSD != nil && (*s.BalanceUSD < 0 || math.IsNaN(*s.BalanceUSD)) {
		return errors.Errorf("invalid usd balance %v", *s.BalanceUSD)
	}
	return nil
}

// Equal reports whether two snapshots describe the same wallet state, ignoring UpdatedAt.
func (s WalletSnapshot) Equal(o WalletSnapshot) bool {
	if s.Chain != o.Chain || s.Address != o.Address || s.BalanceNative != o.BalanceNative ||
		s.NetworkLabel != o.NetworkLabel || s.Connected != o.Connected || s.Source != o.Source {
		return false
	}
	if (s.BalanceUSD == nil) != (o.BalanceUSD == nil) {
		return false
	}
	return s.BalanceUSD == nil || *s.BalanceUSD == *o.BalanceUSD
}

// WalletSnapshotRecord bundles a snapshot with the log index it originated from.
type WalletSnapshotRecord struct {
	Index    uint64         `json:"index"`
	Snapshot WalletSnapshot `json:"snapshot"`
}

// Portfolio aggregates the latest snapshot of every chain.
type Portfolio struct {
	Wallets   []WalletSnapshot `json:"wallets"`
	Connected int              `json:"connected"`
	TotalUSD  float64          `json:"total_usd"`
	// Complete is false when a connected wallet has no fiat value.
	Complete bool `json:"complete"`
}

// NewPortfolio sums the known fiat values of the given snapshots.
func NewPortfolio(snapshots []WalletSnapshot) Portfolio {
	p := Portfolio{Wallets: snapshots, Complete: true}
	for _, s := range snapshots {
		if !s.Connected {
			continue
		}
		p.Connected++
		if s.BalanceUSD == nil {
			p.Complete = false
			continue
		}
		p.TotalUSD += *s.BalanceUSD
	}
	return p
}
