package model

// ClientAction is a structured instruction for the calling surface, carried
// alongside the final text response. At most one client action is surfaced
// per turn even if multiple capabilities produced one; the orchestrator
// keeps the most recent.
type ClientAction struct {
	Kind       string         `json:"kind"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
}
