package orders

import "strings"

// transitions lists the operator moves allowed from each status.
// A move to the current status is always allowed and is handled by CanTransition.
var transitions = map[Status][]Status{
	StatusWaitingOnCustomer: {StatusSubmitted},
	StatusSubmitted:         {StatusInProgress, StatusRejected},
	StatusInProgress:        {StatusRejected, StatusCompleted},
}

// ParseStatus normalizes client input: upper case, spaces as underscores.
// It reports false for values outside the known set.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_"))
	switch st {
	case StatusWaitingOnCustomer, StatusSubmitted, StatusInProgress, StatusCompleted, StatusRejected:
		return st, true
	}
	return st, false
}

// CanTransition reports whether an order in status from may move to status to.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether the owner may still replace the items.
func (s Status) Editable() bool {
	return s == StatusWaitingOnCustomer || s == StatusSubmitted
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}
