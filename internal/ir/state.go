package ir

// StateVersion is the current persisted state schema version.
const StateVersion = 1

// Status is the lifecycle status of a resource in state.
type Status string

const (
	StatusAbsent     Status = "absent"
	StatusPending    Status = "pending"
	StatusCreating   Status = "creating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusDestroying Status = "destroying"
	StatusDestroyed  Status = "destroyed"
)

// State is the persisted deployment state.
type State struct {
	Version int                     `json:"version"`
	Serial  int                     `json:"serial"`
	Lineage string                  `json:"lineage"`
	Records map[string]*StateRecord `json:"records"`
}

// StateRecord is the last-applied state of a single resource.
type StateRecord struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	ProviderID   string         `json:"providerId"`
	Attributes   map[string]any `json:"attributes"` // declared, references unresolved
	Outputs      map[string]any `json:"outputs"`    // provider returned
	Dependencies []string       `json:"dependencies"`
	Status       Status         `json:"status"`
}

// NewState returns an empty state at the current schema version.
func NewState() *State {
	return &State{
		Version: StateVersion,
		Records: make(map[string]*StateRecord),
	}
}

// Record returns the record for id, or nil.
func (s *State) Record(id string) *StateRecord {
	if s == nil || s.Records == nil {
		return nil
	}
	return s.Records[id]
}
