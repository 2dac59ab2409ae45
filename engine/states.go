package engine

// State is a payment case's position in the distribution workflow.
type State string

const (
	StateReceived                 State = "received"
	StateBrokerTransferSubmitted  State = "broker_transfer_submitted"
	StateBrokerTransferConfirmed  State = "broker_transfer_confirmed"
	StateSwapRouteResolved        State = "swap_route_resolved"
	StateSwapSubmitted            State = "swap_submitted"
	StateSwapConfirmed            State = "swap_confirmed"
	StateRetained                 State = "retained"

	StateBrokerTransferFailed State = "broker_transfer_failed"
	StateNoRoute              State = "no_route"
	StateSwapFailed           State = "swap_failed"
)

// Terminal reports whether the state ends the case. No terminal state is
// retried automatically; a failed case requires manual intervention.
func (s State) Terminal() bool {
	switch s {
	case StateRetained, StateBrokerTransferFailed, StateNoRoute, StateSwapFailed:
		return true
	}
	return false
}

// Success reports whether the state is the successful terminal state.
func (s State) Success() bool {
	return s == StateRetained
}
