package harness

// GraphSnapshot is one scheduler's conflict graph after registration.
type GraphSnapshot struct {
	Scheduler string     `json:"scheduler"`
	Tasks     []string   `json:"tasks"`
	Edges     [][]string `json:"edges"`
	Levels    [][]string `json:"levels"`
}

// TickRecord is one scheduler tick as the host reported it.
type TickRecord struct {
	Frame     int64  `json:"frame"`
	Scheduler string `json:"scheduler"`
	Tick      uint64 `json:"tick"`

	// Order lists tasks in the order they finished.
	Order    []string `json:"order"`
	Panicked []string `json:"panicked,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every assertion and the order check hold.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Graphs holds one snapshot per scheduler in registration order.
	Graphs []GraphSnapshot `json:"graphs"`

	// Ticks holds every tick in the order the host reported them.
	Ticks []TickRecord `json:"ticks"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Graphs: []GraphSnapshot{},
		Ticks:  []TickRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Graph returns the snapshot for scheduler.
func (r *Result) Graph(scheduler string) (GraphSnapshot, bool) {
	for _, g := range r.Graphs {
		if g.Scheduler == scheduler {
			return g, true
		}
	}
	return GraphSnapshot{}, false
}

// TicksOf returns the ticks of one scheduler in order.
func (r *Result) TicksOf(scheduler string) []TickRecord {
	var out []TickRecord
	for _, t := range r.Ticks {
		if t.Scheduler == scheduler {
			out = append(out, t)
		}
	}
	return out
}
