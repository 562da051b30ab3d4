package domain

import "strings"

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusCreated Status = "created"
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// transitions is the only place legal status moves are defined. Terminal
// states have no outgoing edges and there are no self-edges.
var transitions = map[Status]map[Status]struct{}{
	StatusCreated: {
		StatusPending: {},
		StatusPaid:    {},
		StatusFailed:  {},
	},
	StatusPending: {
		StatusPaid:   {},
		StatusFailed: {},
	},
	StatusPaid:   {},
	StatusFailed: {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Mode separates sandbox sessions from live ones.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeTest:
		return ModeTest, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", ErrInvalidMode
	}
}
