package capability

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stride-health/stride/pkg/model"
)

// Definition describes one capability a provider advertises. Definitions
// are created when the provider registers at process start and are
// immutable afterward.
type Definition struct {
	// Name is globally unique across all registered providers
	Name        string
	Description string
	// Parameters is the JSON schema the router validates model-supplied
	// arguments against before dispatch
	Parameters *jsonschema.Schema
	// SideEffect marks capabilities that change external state; the guard
	// policy is consulted before these run
	SideEffect bool
}

// Result is the uniform outcome of one capability invocation. It is
// consumed once by the orchestrator and never persisted.
type Result struct {
	Success      bool                `json:"success"`
	Payload      any                 `json:"payload,omitempty"`
	Error        string              `json:"error,omitempty"`
	ClientAction *model.ClientAction `json:"client_action,omitempty"`
}

// Provider is the only contract a new integration must satisfy to
// participate in the agent loop: advertise capabilities, execute them, and
// report health.
type Provider interface {
	// Name identifies the provider for logs and health reporting
	Name() string

	// Capabilities returns the provider's advertised capability catalog
	Capabilities() []Definition

	// Invoke executes the named capability with validated arguments
	Invoke(ctx context.Context, name string, args map[string]any) (*Result, error)

	// HealthCheck reports whether the provider's backing source is reachable
	HealthCheck(ctx context.Context) bool
}

// Succeed builds a successful result with the given payload
func Succeed(payload any) *Result {
	return &Result{Success: true, Payload: payload}
}

// Fail builds a failed result carrying the error detail the model needs to
// retry or choose differently
func Fail(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}
