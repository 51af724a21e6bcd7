package guard_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/service/guard"
)

const testPolicy = `package stride.capability

default allow := false

allow if {
	not input.side_effect
}

allow if {
	input.capability == "set_goal"
}

reason := "side-effecting capabilities require explicit approval" if {
	not allow
}
`

func writePolicy(t *testing.T, policy string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "capability.rego")
	gt.NoError(t, os.WriteFile(path, []byte(policy), 0o644))
	return dir
}

func TestGuardAllowsReadOnly(t *testing.T) {
	ctx := context.Background()
	g, err := guard.New(ctx, writePolicy(t, testPolicy))
	gt.NoError(t, err)

	def := capability.Definition{Name: "query_trend", SideEffect: false}
	gt.NoError(t, g.Authorize(ctx, "u-1", def, nil))
}

func TestGuardDeniesUnlistedSideEffect(t *testing.T) {
	ctx := context.Background()
	g, err := guard.New(ctx, writePolicy(t, testPolicy))
	gt.NoError(t, err)

	def := capability.Definition{Name: "start_workout_session", SideEffect: true}
	err = g.Authorize(ctx, "u-1", def, map[string]any{"device": "watch-7"})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("explicit approval")
}

func TestGuardAllowsListedSideEffect(t *testing.T) {
	ctx := context.Background()
	g, err := guard.New(ctx, writePolicy(t, testPolicy))
	gt.NoError(t, err)

	def := capability.Definition{Name: "set_goal", SideEffect: true}
	gt.NoError(t, g.Authorize(ctx, "u-1", def, map[string]any{"metric": "active_minutes"}))
}

func TestGuardWithoutPolicyAllowsEverything(t *testing.T) {
	ctx := context.Background()

	// No directory configured
	g, err := guard.New(ctx, "")
	gt.NoError(t, err)
	gt.NoError(t, g.Authorize(ctx, "u-1", capability.Definition{Name: "set_goal", SideEffect: true}, nil))

	// Directory exists but holds no policies
	g, err = guard.New(ctx, t.TempDir())
	gt.NoError(t, err)
	gt.NoError(t, g.Authorize(ctx, "u-1", capability.Definition{Name: "set_goal", SideEffect: true}, nil))
}

func TestGuardRejectsBrokenPolicy(t *testing.T) {
	ctx := context.Background()
	_, err := guard.New(ctx, writePolicy(t, "package stride.capability\n\nallow {{{"))
	gt.Error(t, err)
}
