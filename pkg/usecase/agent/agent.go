// Package agent runs one conversational turn: a bounded state machine of
// reasoning and capability execution over the hosted model's function
// calling. The cycle bound is a safety valve against runaway tool chains,
// not tuning.
package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

// ErrCompletionFailed is returned when the hosted model cannot be reached
// after retries. It is the only fatal failure of a turn; callers surface a
// generic service error, never the underlying detail.
var ErrCompletionFailed = goerr.New("completion service unavailable")

const (
	// maxCycles bounds reasoning/tool cycles per turn
	maxCycles = 5

	// completionRetries is how many times a failed completion call is
	// retried before the turn is abandoned
	completionRetries = 2

	// budgetExhaustedMessage is the terminal reply when the cycle bound is
	// hit with no usable partial text
	budgetExhaustedMessage = "I couldn't finish working through that request. Could you try asking in a simpler way?"
)

// Request is one inbound user message
type Request struct {
	ConversationID model.ConversationID
	UserID         model.UserID
	Message        string
}

// Response is the completed turn: final text plus at most one client
// action, even when several capabilities ran.
type Response struct {
	ConversationID model.ConversationID `json:"conversation_id"`
	Message        string               `json:"message"`
	ClientAction   *model.ClientAction  `json:"client_action,omitempty"`
}

// Agent orchestrates conversational turns
type Agent struct {
	gemini   adapter.Gemini
	registry *capability.Registry
	router   *capability.Router
	repo     interfaces.Repository
	now      func() time.Time
}

type Option func(*Agent)

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New creates an agent over the given collaborators
func New(gemini adapter.Gemini, registry *capability.Registry, router *capability.Router, repo interfaces.Repository, opts ...Option) *Agent {
	a := &Agent{
		gemini:   gemini,
		registry: registry,
		router:   router,
		repo:     repo,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleTurn runs one full turn: load history, loop reasoning and
// capability execution up to the cycle bound, persist the new turns, and
// return the final text with the last client action any capability
// produced. A completion failure after retries is the only error path.
func (a *Agent) HandleTurn(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, goerr.New("empty message")
	}

	logger := logging.From(ctx)
	conv, err := a.loadConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	config, err := a.buildConfig(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	contents := historyToContents(conv.Turns)
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	newTurns := []model.Turn{{
		Role:      model.RoleUser,
		Content:   req.Message,
		CreatedAt: a.now().UTC(),
	}}

	var finalText string
	var lastAction *model.ClientAction

	for cycle := 0; cycle < maxCycles; cycle++ {
		resp, err := a.complete(ctx, contents, config)
		if err != nil {
			// Persist what happened so the history stays coherent even
			// though the turn failed
			a.persist(ctx, conv, newTurns)
			return nil, err
		}

		var functionResponses []*genai.Part
		var cycleText strings.Builder

		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					cycleText.WriteString(part.Text)
				}
				if part.FunctionCall == nil {
					continue
				}

				fc := part.FunctionCall
				logger.Info("capability requested",
					"capability", fc.Name, "cycle", cycle+1)

				result := a.router.Invoke(ctx, req.UserID, fc.Name, fc.Args)
				if result.ClientAction != nil {
					// Last action wins: exactly one reaches the client
					lastAction = result.ClientAction
				}

				newTurns = append(newTurns, model.Turn{
					Role: model.RoleTool,
					Invocation: &model.ToolInvocation{
						Capability: fc.Name,
						Args:       fc.Args,
						Success:    result.Success,
						Error:      result.Error,
					},
					CreatedAt: a.now().UTC(),
				})

				functionResponses = append(functionResponses, &genai.Part{
					FunctionResponse: toFunctionResponse(fc.Name, result),
				})
			}
		}

		if text := cycleText.String(); text != "" {
			finalText = text
		}

		if len(functionResponses) == 0 {
			break
		}
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: functionResponses,
		})
	}

	// Budget exhausted mid-chain: terminal with whatever partial answer
	// exists rather than looping
	if finalText == "" {
		logger.Warn("turn ended without final text", "conversation", conv.ID)
		finalText = budgetExhaustedMessage
	}

	newTurns = append(newTurns, model.Turn{
		Role:      model.RoleAssistant,
		Content:   finalText,
		CreatedAt: a.now().UTC(),
	})
	a.persist(ctx, conv, newTurns)

	return &Response{
		ConversationID: conv.ID,
		Message:        finalText,
		ClientAction:   lastAction,
	}, nil
}

// complete calls the model with a small fixed retry budget. Every attempt
// failing makes the turn fatal with a generic error.
func (a *Agent) complete(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= completionRetries; attempt++ {
		resp, err := a.gemini.GenerateContent(ctx, contents, config)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logging.From(ctx).Warn("completion call failed",
			"attempt", attempt+1, "error", err)
	}
	return nil, goerr.Wrap(ErrCompletionFailed, lastErr.Error())
}

func (a *Agent) loadConversation(ctx context.Context, req *Request) (*model.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := a.repo.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load conversation",
				goerr.V("conversation", req.ConversationID))
		}
		if conv != nil {
			if conv.UserID != req.UserID {
				return nil, goerr.New("conversation belongs to another user",
					goerr.V("conversation", req.ConversationID))
			}
			return conv, nil
		}
	}

	id := req.ConversationID
	if id == "" {
		id = model.NewConversationID()
	}
	return &model.Conversation{
		ID:        id,
		UserID:    req.UserID,
		CreatedAt: a.now().UTC(),
	}, nil
}

func (a *Agent) buildConfig(ctx context.Context, user model.UserID) (*genai.GenerateContentConfig, error) {
	profile, err := a.repo.GetProfile(ctx, user)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load profile", goerr.V("user", user))
	}

	displayName := string(user)
	timezone := "UTC"
	if profile != nil {
		if profile.DisplayName != "" {
			displayName = profile.DisplayName
		}
		if profile.Timezone != "" {
			timezone = profile.Timezone
		}
	}

	var capList strings.Builder
	defs := a.registry.Definitions()
	declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decl, err := capability.ToFunctionDeclaration(def)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert capability schema",
				goerr.V("capability", def.Name))
		}
		declarations = append(declarations, decl)
		capList.WriteString("- " + def.Name + ": " + def.Description + "\n")
	}

	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, map[string]any{
		"DisplayName":    displayName,
		"Timezone":       timezone,
		"Today":          a.now().UTC().Format(model.DayKey),
		"CapabilityList": capList.String(),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render system prompt")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buf.String(), ""),
	}
	if len(declarations) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	return config, nil
}

// persist appends the turn's entries to the conversation. A persistence
// failure is logged, not surfaced: the user already has their answer.
func (a *Agent) persist(ctx context.Context, conv *model.Conversation, turns []model.Turn) {
	conv.Turns = append(conv.Turns, turns...)
	conv.UpdatedAt = a.now().UTC()

	if err := a.repo.PutConversation(ctx, conv); err != nil {
		logging.From(ctx).Error("failed to persist conversation",
			"conversation", conv.ID, "error", err)
	}
}

func historyToContents(turns []model.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleUser:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		}
		// Tool turns are not replayed: their results are already folded
		// into the assistant replies that follow them
	}
	return contents
}

// toFunctionResponse feeds a capability result back to the model. Failures
// go back as an error field the model can adapt to; they are never fatal.
func toFunctionResponse(name string, result *capability.Result) *genai.FunctionResponse {
	if !result.Success {
		return &genai.FunctionResponse{
			Name:     name,
			Response: map[string]any{"error": result.Error},
		}
	}

	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return &genai.FunctionResponse{
			Name:     name,
			Response: map[string]any{"error": "capability produced an unserializable result"},
		}
	}
	return &genai.FunctionResponse{
		Name:     name,
		Response: map[string]any{"result": string(payload)},
	}
}
