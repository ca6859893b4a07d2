package ir

// Action classifies what the executor must do for a resource.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
	ActionNoOp    Action = "NOOP"
)

// Operation is a single planned change for one resource.
type Operation struct {
	ResourceID string                   `json:"resourceId"`
	Action     Action                   `json:"action"`
	Desired    *Resource                `json:"desired,omitempty"`
	Prior      *StateRecord             `json:"prior,omitempty"`
	Diff       map[string]*AttributeDiff `json:"diff,omitempty"`
}

// AttributeDiff describes a single attribute change.
type AttributeDiff struct {
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	ForcesReplacement bool   `json:"forcesReplacement,omitempty"`
	Action            string `json:"action"` // "create", "update", "delete"
}

// Wave is a set of operations with no dependency edges among them.
// Members of a wave are eligible for concurrent execution.
type Wave []*Operation

// Plan is an ordered sequence of waves. Earlier waves must complete
// before later waves begin.
type Plan struct {
	Timestamp string       `json:"timestamp"`
	Waves     []Wave       `json:"waves"`
	Summary   *PlanSummary `json:"summary"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Delete  int `json:"delete"`
	NoOp    int `json:"noop"`
}

// Operations returns all operations in wave order, flattened.
func (p *Plan) Operations() []*Operation {
	var ops []*Operation
	for _, w := range p.Waves {
		ops = append(ops, w...)
	}
	return ops
}

// Changes counts operations that require provider calls.
func (p *Plan) Changes() int {
	return p.Summary.Create + p.Summary.Update + p.Summary.Replace + p.Summary.Delete
}
