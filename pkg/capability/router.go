package capability

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// Authorizer decides whether a side-effecting capability invocation is
// allowed for a user. A nil reason error means the invocation may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, user model.UserID, def Definition, args map[string]any) error
}

// Router is the dispatch layer the orchestrator calls. It resolves the
// owning provider via the registry, validates the model's loosely-typed
// arguments against the declared schema, and normalizes every failure mode
// into a uniform Result so the caller can keep looping.
type Router struct {
	registry *Registry
	auth     Authorizer
	timeout  time.Duration
}

// RouterOption is a functional option for Router
type RouterOption func(*Router)

// WithAuthorizer installs a guard consulted before side-effecting
// capabilities run
func WithAuthorizer(auth Authorizer) RouterOption {
	return func(r *Router) {
		r.auth = auth
	}
}

// WithInvokeTimeout bounds each capability invocation. A timeout is treated
// identically to a capability failure: fed back into the loop, not fatal.
func WithInvokeTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

// NewRouter creates a router over the given registry
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke resolves and executes a capability. It never returns an error:
// routing misses, validation failures, guard denials, provider errors and
// timeouts all come back as Result{Success: false} so the orchestrator can
// feed them to the model.
func (r *Router) Invoke(ctx context.Context, user model.UserID, name string, args map[string]any) *Result {
	logger := logging.From(ctx)

	provider, def, ok := r.registry.Resolve(name)
	if !ok {
		logger.Warn("capability routing miss", "capability", name)
		return Fail(goerr.Wrap(ErrCapabilityNotFound, "no provider owns capability",
			goerr.V("capability", name)))
	}

	if err := ValidateArgs(def, args); err != nil {
		logger.Warn("capability argument validation failed",
			"capability", name, "error", err)
		return Fail(err)
	}

	if def.SideEffect && r.auth != nil {
		if err := r.auth.Authorize(ctx, user, def, args); err != nil {
			logger.Warn("capability invocation denied",
				"capability", name, "user", user, "error", err)
			return Fail(goerr.Wrap(ErrNotPermitted, "denied by policy",
				goerr.V("capability", name)))
		}
	}

	invokeCtx := WithUser(ctx, user)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(invokeCtx, r.timeout)
		defer cancel()
	}

	result, err := provider.Invoke(invokeCtx, name, args)
	if err != nil {
		logger.Warn("capability execution failed",
			"capability", name, "provider", provider.Name(), "error", err)
		return Fail(goerr.Wrap(ErrExecutionFailed, err.Error(),
			goerr.V("capability", name),
			goerr.V("provider", provider.Name())))
	}
	if result == nil {
		return Fail(goerr.Wrap(ErrExecutionFailed, "provider returned no result",
			goerr.V("capability", name)))
	}

	return result
}
