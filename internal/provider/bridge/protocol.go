package bridge

import (
	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Message types exchanged with the page shim.
const (
	TypeHello     = "hello"
	TypeProviders = "providers"
	TypeResponse  = "response"
	TypeRequest   = "request"
)

// Provider methods relayed to the page.
const (
	MethodRequestAccounts = "request_accounts"
	MethodGetAccounts     = "get_accounts"
	MethodDisconnect      = "disconnect"
)

// CodeUserRejected is the EIP-1193 code for a declined request.
// The Solana shim maps Phantom rejections to the same code.
const CodeUserRejected = 4001

// Inbound is a browser to server frame.
type Inbound struct {
	Type      string                `json:"type"`
	Session   string                `json:"session,omitempty"`
	Providers map[domain.Chain]bool `json:"providers,omitempty"`
	ID        uint64                `json:"id,omitempty"`
	Accounts  []string              `json:"accounts,omitempty"`
	Error     *ProviderError        `json:"error,omitempty"`
}

// Request is a server to browser frame.
type Request struct {
	Type   string       `json:"type"`
	ID     uint64       `json:"id"`
	Chain  domain.Chain `json:"chain"`
	Method string       `json:"method"`
}

// ProviderError is an error reported by the injected wallet.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return "wallet provider error"
	}
	return e.Message
}
