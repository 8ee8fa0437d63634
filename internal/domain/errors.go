package domain

import "github.com/pkg/errors"

var (
	// ErrProviderAbsent the chain's wallet provider is not injected into the host.
	ErrProviderAbsent = errors.New("wallet provider not installed")
	// ErrProviderRejected the user declined the permission prompt.
	ErrProviderRejected = errors.New("wallet provider rejected the request")
	// ErrIndexerUnavailable the indexer could not answer; recovered by RPC fallback.
	ErrIndexerUnavailable = errors.New("indexer unavailable")
	// ErrRpcUnavailable the RPC endpoint could not answer.
	ErrRpcUnavailable = errors.New("rpc unavailable")
	// ErrBalanceUnavailable neither indexer nor RPC returned a balance.
	ErrBalanceUnavailable = errors.New("balance unavailable")
	// ErrUnknownChain the chain is not supported.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrInvalidAddress the address is malformed for the chain.
	ErrInvalidAddress = errors.New("invalid address")
)
