package types

// Event represents a typed notification emitted during state transitions. The
// payload is pure telemetry for external indexers and must never be consumed
// for consistency decisions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
