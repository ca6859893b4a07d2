package state

import "fmt"

// ConflictError means the apply lock is already held. The run refuses to
// start; no state is mutated.
type ConflictError struct {
	Holder string // human-readable lock holder info
	Hint   string
}

func (e *ConflictError) Error() string {
	msg := "state is locked by another process"
	if e.Holder != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Holder)
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}
