package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Initiator tells who started a reconciliation cycle.
type Initiator string

const (
	// InitiatorManual an explicit user action.
	InitiatorManual Initiator = "manual"
	// InitiatorScheduled a periodic timer tick.
	InitiatorScheduled Initiator = "scheduled"
)

// Outcome is the result of a connection attempt.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeProviderAbsent     Outcome = "provider_absent"
	OutcomeProviderRejected   Outcome = "provider_rejected"
	OutcomeBalanceUnavailable Outcome = "balance_unavailable"
	OutcomeDisconnected       Outcome = "disconnected"
	OutcomeNetworkError       Outcome = "network_error"
)

// ConnectionAttempt is an ephemeral record used to drive UI notifications.
type ConnectionAttempt struct {
	ID         string          `json:"id"`
	Chain      Chain           `json:"chain"`
	Initiator  Initiator       `json:"initiator"`
	Outcome    Outcome         `json:"outcome"`
	Snapshot   *WalletSnapshot `json:"snapshot,omitempty"`
	InstallURL string          `json:"install_url,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// NewConnectionAttempt creates an attempt record with a fresh id.
func NewConnectionAttempt(chain Chain, initiator Initiator, outcome Outcome, at time.Time) ConnectionAttempt {
	return ConnectionAttempt{
		ID:        uuid.NewString(),
		Chain:     chain,
		Initiator: initiator,
		Outcome:   outcome,
		At:        at,
	}
}

// OutcomeFromError classifies an engine error into an attempt outcome.
func OutcomeFromError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrProviderAbsent):
		return OutcomeProviderAbsent
	case errors.Is(err, ErrProviderRejected):
		return OutcomeProviderRejected
	case errors.Is(err, ErrBalanceUnavailable):
		return OutcomeBalanceUnavailable
	default:
		return OutcomeNetworkError
	}
}
