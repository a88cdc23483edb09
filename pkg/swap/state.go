package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is a step of the swap state machine
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseApproving Phase = "approving"
	PhaseSwapping  Phase = "swapping"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseApproving, PhaseCompleted, PhaseError},
	PhaseApproving: {PhaseSwapping, PhaseError},
	PhaseSwapping:  {PhaseCompleted, PhaseError},
	PhaseCompleted: {PhaseIdle},
	PhaseError:     {PhaseIdle},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further progress happens without a new swap
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// State is the observable state of the swap in flight
type State struct {
	Phase          Phase
	ApprovalTxHash *common.Hash
	SwapTxHash     *common.Hash
	Err            error
	// Message is the user-facing description of Err
	Message string
}

// Observer receives every state transition
type Observer func(State)

type transitionError struct {
	from, to Phase
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("invalid swap transition %s -> %s", e.from, e.to)
}
