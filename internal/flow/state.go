package flow

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the controller's position in the sign-in and submit sequence.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseReady
	PhasePending
	PhaseResult // ready, with a transaction hash to show
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhasePending:
		return "pending"
	case PhaseResult:
		return "ready-with-result"
	default:
		return "unknown"
	}
}

var (
	ErrConnectionFailed  = errors.New("connection failed")
	ErrDerivationFailed  = errors.New("smart account derivation failed")
	ErrSponsorshipDenied = errors.New("sponsorship denied")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrNotReady          = errors.New("smart account client not ready")
	// ErrSessionEnded is returned when sign-out overtakes an operation.
	ErrSessionEnded = errors.New("session ended")
)

// State is a snapshot of the controller.
type State struct {
	Phase          Phase
	Connected      bool
	Loading        bool
	WalletAddress  common.Address // embedded wallet (owner key)
	AccountAddress common.Address // smart account; zero until ready
	TxHash         common.Hash    // zero until a submission returns
	Err            error          // last failure, cleared by the next attempt
}

// Ready reports whether a transaction can be submitted.
func (s State) Ready() bool {
	return s.Phase == PhaseReady || s.Phase == PhaseResult
}

// HasResult reports whether a transaction hash is displayed.
func (s State) HasResult() bool {
	return s.TxHash != (common.Hash{})
}
