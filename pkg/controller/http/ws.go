package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/ratelimit"
	"github.com/stride-health/stride/pkg/usecase/agent"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// wsRequest is one inbound conversational message
type wsRequest struct {
	ConversationID model.ConversationID `json:"conversation_id,omitempty"`
	UserID         model.UserID         `json:"user_id"`
	Message        string               `json:"message"`
}

// wsError is an error frame. The connection stays open: a failed turn is
// the client's to retry, not a protocol violation.
type wsError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleWS upgrades the connection and serves conversational turns until
// the client disconnects. Turns on one connection run sequentially; the
// client sends the next message after the previous reply arrives.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
			s.writeError(conn, "user_id and message are required", "bad_request")
			continue
		}

		if err := s.allowTurn(ctx, req.UserID); err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				s.writeError(conn, "daily turn limit reached, try again tomorrow", "rate_limited")
				continue
			}
			logger.Error("rate limit check failed", "user", req.UserID, "error", err)
			s.writeError(conn, "something went wrong, please retry", "internal")
			continue
		}

		resp, err := s.coach.HandleTurn(ctx, &agent.Request{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Message:        req.Message,
		})
		if err != nil {
			// The detail stays in the log; the client gets a retryable
			// generic failure
			logger.Error("turn failed", "user", req.UserID, "error", err)
			s.writeError(conn, "the coach is unavailable right now, please retry", "turn_failed")
			continue
		}

		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// allowTurn consumes one turn from the user's daily allowance, resolving
// the tier from the profile. No limiter configured means every turn runs.
func (s *Server) allowTurn(ctx context.Context, user model.UserID) error {
	if s.limiter == nil {
		return nil
	}

	tier := model.TierFree
	profile, err := s.repo.GetProfile(ctx, user)
	if err != nil {
		logging.From(ctx).Warn("profile lookup failed, assuming free tier",
			"user", user, "error", err)
	} else if profile != nil && profile.Tier.Validate() == nil {
		tier = profile.Tier
	}

	return s.limiter.Allow(ctx, user, tier)
}

func (s *Server) writeError(conn *websocket.Conn, message, code string) {
	if err := conn.WriteJSON(wsError{Error: message, Code: code}); err != nil {
		logging.Default().Warn("failed to write error frame", "error", err)
	}
}
