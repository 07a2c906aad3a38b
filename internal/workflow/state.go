package workflow

// State is a step of the commitment workflow
type State int

const (
	Disconnected State = iota
	Ready
	Submitting
	AwaitingPropagation
	Decryptable
	Decrypting
	Decrypted
	Error
)

var stateNames = [...]string{
	Disconnected:        "Disconnected",
	Ready:               "Ready",
	Submitting:          "Submitting",
	AwaitingPropagation: "AwaitingPropagation",
	Decryptable:         "Decryptable",
	Decrypting:          "Decrypting",
	Decrypted:           "Decrypted",
	Error:               "Error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// committed reports whether a commitment is already on-chain in this state
func (s State) committed() bool {
	switch s {
	case AwaitingPropagation, Decryptable, Decrypting, Decrypted:
		return true
	}
	return false
}
