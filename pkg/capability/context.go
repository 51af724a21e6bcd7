package capability

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/model"
)

type ctxUserKey struct{}

// WithUser binds the acting user to the context. The router sets it before
// dispatch so providers never take a user parameter per capability.
func WithUser(ctx context.Context, user model.UserID) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, user)
}

// UserFrom extracts the acting user bound by the router
func UserFrom(ctx context.Context) (model.UserID, error) {
	user, ok := ctx.Value(ctxUserKey{}).(model.UserID)
	if !ok || user == "" {
		return "", goerr.New("no acting user bound to context")
	}
	return user, nil
}
