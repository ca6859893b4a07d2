package ir

// Outcome classifies an entire apply run.
type Outcome string

const (
	// OutcomeSuccess means every planned operation reached its target status.
	OutcomeSuccess Outcome = "success"
	// OutcomePartialFailure means at least one resource failed or was
	// skipped because a dependency failed.
	OutcomePartialFailure Outcome = "partial-failure"
	// OutcomeCanceled means the run was aborted before all operations were
	// scheduled. Completed records remain persisted.
	OutcomeCanceled Outcome = "canceled"
)

// ResourceResult is the per-resource outcome of an apply run.
type ResourceResult struct {
	ResourceID  string `json:"resourceId"`
	Action      Action `json:"action"`
	FinalStatus Status `json:"finalStatus"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ApplyReport is the final report of an apply run.
type ApplyReport struct {
	Outcome Outcome                    `json:"outcome"`
	Results map[string]*ResourceResult `json:"results"`
}

// Failed returns the IDs of resources whose operation failed.
func (r *ApplyReport) Failed() []string {
	var ids []string
	for id, res := range r.Results {
		if res.FinalStatus == StatusFailed && !res.Skipped {
			ids = append(ids, id)
		}
	}
	return ids
}

// SkippedResources returns the IDs of resources skipped due to a failed
// dependency.
func (r *ApplyReport) SkippedResources() []string {
	var ids []string
	for id, res := range r.Results {
		if res.Skipped {
			ids = append(ids, id)
		}
	}
	return ids
}
