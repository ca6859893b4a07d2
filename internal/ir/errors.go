package ir

import "strings"

// ValidationError reports malformed resource declarations. It is fatal to
// the whole run and raised before any provider call.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid resource set: " + e.Issues[0]
	}
	return "invalid resource set:\n  - " + strings.Join(e.Issues, "\n  - ")
}
