package testutil

// DefaultRunID is used when a scenario names no run id.
const DefaultRunID = "test-run-default"

// FixedRunID generates the same run id every time.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this
// generator never runs out, so hosts built in a loop share one id and
// their recorded traces compare byte for byte.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator. An empty id yields
// DefaultRunID.
func NewFixedRunID(id string) FixedRunID {
	if id == "" {
		id = DefaultRunID
	}
	return FixedRunID{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.RunIDGenerator.
func (g FixedRunID) Generate() string {
	return g.id
}
