package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/repository"
	"github.com/stride-health/stride/pkg/usecase/agent"
	"google.golang.org/genai"
)

// scriptedGemini replays canned responses, optionally failing the first
// N calls
type scriptedGemini struct {
	responses []*genai.GenerateContentResponse
	failFirst int
	calls     int
}

func (g *scriptedGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.calls++
	if g.calls <= g.failFirst {
		return nil, goerr.New("model endpoint returned 503")
	}

	idx := g.calls - g.failFirst - 1
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

// scriptedProvider serves one capability with scripted results
type scriptedProvider struct {
	name    string
	def     capability.Definition
	results []*capability.Result
	err     error
	invoked int
}

func (p *scriptedProvider) Name() string {
	return p.name
}

func (p *scriptedProvider) Capabilities() []capability.Definition {
	return []capability.Definition{p.def}
}

func (p *scriptedProvider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	idx := p.invoked
	p.invoked++
	if p.err != nil {
		return nil, p.err
	}
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx], nil
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) bool {
	return true
}

func trendDef() capability.Definition {
	return capability.Definition{
		Name:        "get_trend",
		Description: "trend of a metric",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"metric": {Type: "string"},
			},
			Required: []string{"metric"},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
}

func newAgent(t *testing.T, gemini *scriptedGemini, providers ...capability.Provider) (*agent.Agent, *repository.Memory) {
	registry, err := capability.New(providers...)
	gt.NoError(t, err)
	router := capability.NewRouter(registry)
	repo := repository.NewMemory()
	return agent.New(gemini, registry, router, repo, agent.WithNowFunc(fixedClock)), repo
}

func TestHandleTurnPlainText(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		textResponse("You ran three times this week, nice consistency!"),
	}}
	a, repo := newAgent(t, gemini, &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed("ok")},
	})

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "how was my week?"})
	gt.NoError(t, err)
	gt.S(t, resp.Message).Contains("three times")
	gt.Nil(t, resp.ClientAction)

	// Conversation persisted with the user and assistant turns
	conv, err := repo.GetConversation(ctx, resp.ConversationID)
	gt.NoError(t, err)
	gt.V(t, conv).NotNil()
	gt.A(t, conv.Turns).Length(2)
	gt.V(t, conv.Turns[0].Role).Equal(model.RoleUser)
	gt.V(t, conv.Turns[1].Role).Equal(model.RoleAssistant)
}

func TestHandleTurnWithCapability(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		callResponse("get_trend", map[string]any{"metric": "sleep_minutes"}),
		textResponse("Your sleep is trending down about 12%."),
	}}
	provider := &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed(map[string]any{"direction": "down"})},
	}
	a, repo := newAgent(t, gemini, provider)

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "how is my sleep?"})
	gt.NoError(t, err)
	gt.V(t, provider.invoked).Equal(1)
	gt.S(t, resp.Message).Contains("trending down")

	// Tool turn recorded between user and assistant turns
	conv, err := repo.GetConversation(ctx, resp.ConversationID)
	gt.NoError(t, err)
	gt.A(t, conv.Turns).Length(3)
	gt.V(t, conv.Turns[1].Role).Equal(model.RoleTool)
	gt.V(t, conv.Turns[1].Invocation.Capability).Equal("get_trend")
	gt.True(t, conv.Turns[1].Invocation.Success)
}

func TestHandleTurnCapabilityFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		callResponse("get_trend", map[string]any{"metric": "sleep_minutes"}),
		textResponse("I couldn't reach your sleep data just now, sorry."),
	}}
	provider := &scriptedProvider{
		name: "insights", def: trendDef(),
		err:  goerr.New("backing store timeout"),
	}
	a, repo := newAgent(t, gemini, provider)

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "how is my sleep?"})
	// The failure was fed back to the model, not escalated
	gt.NoError(t, err)
	gt.S(t, resp.Message).Contains("couldn't reach")

	conv, err := repo.GetConversation(ctx, resp.ConversationID)
	gt.NoError(t, err)
	gt.False(t, conv.Turns[1].Invocation.Success)
	gt.S(t, conv.Turns[1].Invocation.Error).Contains("timeout")
}

func TestHandleTurnLastClientActionWins(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		callResponse("get_trend", map[string]any{"metric": "active_minutes"}),
		callResponse("get_trend", map[string]any{"metric": "active_minutes"}),
		textResponse("Starting your run now."),
	}}
	provider := &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{
			{Success: true, ClientAction: &model.ClientAction{Kind: "show_dashboard", Target: "app"}},
			{Success: true, ClientAction: &model.ClientAction{Kind: "start_workout", Target: "watch-7"}},
		},
	}
	a, _ := newAgent(t, gemini, provider)

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "start my usual run"})
	gt.NoError(t, err)
	gt.V(t, resp.ClientAction).NotNil()
	// Two capabilities produced actions; only the most recent surfaces
	gt.V(t, resp.ClientAction.Kind).Equal("start_workout")
}

func TestHandleTurnCycleBudget(t *testing.T) {
	ctx := context.Background()
	// The model asks for a tool on every cycle and never concludes
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		callResponse("get_trend", map[string]any{"metric": "sleep_minutes"}),
	}}
	provider := &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed("ok")},
	}
	a, _ := newAgent(t, gemini, provider)

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "loop forever"})
	gt.NoError(t, err)
	// Exactly five cycles ran, then the turn terminated with a fallback
	gt.V(t, gemini.calls).Equal(5)
	gt.V(t, provider.invoked).Equal(5)
	gt.S(t, resp.Message).Contains("couldn't finish")
}

func TestHandleTurnCompletionFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{failFirst: 100}
	a, _ := newAgent(t, gemini, &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed("ok")},
	})

	_, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "hello"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, agent.ErrCompletionFailed))
	// Initial attempt plus two retries
	gt.V(t, gemini.calls).Equal(3)
}

func TestHandleTurnCompletionRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{
		failFirst: 2,
		responses: []*genai.GenerateContentResponse{textResponse("All good.")},
	}
	a, _ := newAgent(t, gemini, &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed("ok")},
	})

	resp, err := a.HandleTurn(ctx, &agent.Request{UserID: "u-1", Message: "hello"})
	gt.NoError(t, err)
	gt.V(t, resp.Message).Equal("All good.")
}

func TestHandleTurnContinuesConversation(t *testing.T) {
	ctx := context.Background()
	gemini := &scriptedGemini{responses: []*genai.GenerateContentResponse{
		textResponse("Second answer."),
	}}
	a, repo := newAgent(t, gemini, &scriptedProvider{
		name: "insights", def: trendDef(),
		results: []*capability.Result{capability.Succeed("ok")},
	})

	existing := &model.Conversation{
		ID:     model.NewConversationID(),
		UserID: "u-1",
		Turns: []model.Turn{
			{Role: model.RoleUser, Content: "first question"},
			{Role: model.RoleAssistant, Content: "first answer"},
		},
	}
	gt.NoError(t, repo.PutConversation(ctx, existing))

	resp, err := a.HandleTurn(ctx, &agent.Request{
		ConversationID: existing.ID,
		UserID:         "u-1",
		Message:        "and a follow-up?",
	})
	gt.NoError(t, err)
	gt.V(t, resp.ConversationID).Equal(existing.ID)

	conv, err := repo.GetConversation(ctx, existing.ID)
	gt.NoError(t, err)
	gt.A(t, conv.Turns).Length(4)

	// A different user may not touch the thread
	_, err = a.HandleTurn(ctx, &agent.Request{
		ConversationID: existing.ID,
		UserID:         "u-2",
		Message:        "let me see",
	})
	gt.Error(t, err)
}
