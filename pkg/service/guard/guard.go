// Package guard enforces policy on side-effecting capability calls. The
// policy is Rego loaded from a directory; an unconfigured guard allows
// everything so read-only deployments need no policy files.
package guard

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/model"
)

// decisionQuery is the document a policy must define
const decisionQuery = "data.stride.capability"

// Guard implements capability authorization via OPA
type Guard struct {
	query *rego.PreparedEvalQuery
}

var _ capability.Authorizer = (*Guard)(nil)

// New loads all Rego files from policyDir and prepares the decision query.
// An empty or missing directory yields a guard that allows everything.
func New(ctx context.Context, policyDir string) (*Guard, error) {
	if policyDir == "" {
		return &Guard{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return &Guard{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(decisionQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query")
	}

	return &Guard{query: &prepared}, nil
}

// Authorize evaluates the policy for one capability call. With a policy
// loaded, the call is allowed only when the decision document sets allow
// to true; anything else denies with the policy's reason when given.
func (g *Guard) Authorize(ctx context.Context, user model.UserID, def capability.Definition, args map[string]any) error {
	if g.query == nil {
		return nil
	}

	input := map[string]any{
		"user":        string(user),
		"capability":  def.Name,
		"side_effect": def.SideEffect,
		"args":        args,
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return goerr.Wrap(err, "policy evaluation failed", goerr.V("capability", def.Name))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return goerr.New("policy returned no decision", goerr.V("capability", def.Name))
	}

	decision, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return goerr.New("policy decision is not an object", goerr.V("capability", def.Name))
	}

	if allow, _ := decision["allow"].(bool); allow {
		return nil
	}

	reason, _ := decision["reason"].(string)
	if reason == "" {
		reason = "denied by policy"
	}
	return goerr.New(reason, goerr.V("capability", def.Name), goerr.V("user", user))
}
