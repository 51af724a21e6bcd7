package capability

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrDuplicateCapability is returned by New when two providers
	// advertise the same capability name. Collisions are rejected eagerly
	// at startup, never silently overwritten.
	ErrDuplicateCapability = goerr.New("duplicate capability name")

	// ErrCapabilityNotFound is a routing miss: no registered provider owns
	// the requested name. Recoverable; the router feeds it back to the
	// model as a failed result.
	ErrCapabilityNotFound = goerr.New("capability not found")

	// ErrInvalidArguments means the model-supplied arguments failed schema
	// validation at the router boundary; the malformed call never reaches
	// the provider.
	ErrInvalidArguments = goerr.New("invalid capability arguments")

	// ErrExecutionFailed wraps a provider-level failure
	ErrExecutionFailed = goerr.New("capability execution failed")

	// ErrNotPermitted means the guard policy denied a side-effecting
	// invocation
	ErrNotPermitted = goerr.New("capability invocation not permitted")
)
