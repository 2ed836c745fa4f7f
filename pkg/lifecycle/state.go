package lifecycle

// State is a step of the deployment lifecycle.
type State string

const (
	StateUnregistered State = "unregistered"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateActivating   State = "activating"
	StateActive       State = "active"
)

// transitions lists the allowed moves of the state machine.
// A failed precache returns Installing to Unregistered.
var transitions = map[State][]State{
	StateUnregistered: {StateInstalling},
	StateInstalling:   {StateInstalled, StateUnregistered},
	StateInstalled:    {StateInstalling, StateActivating},
	StateActivating:   {StateActive},
	StateActive:       nil,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Serving reports whether a controller in this state may serve traffic.
func (s State) Serving() bool {
	return s == StateActive
}
