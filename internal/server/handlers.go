package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"muza/internal/dialogue"
	"muza/internal/engine"
	muzaerrors "muza/internal/errors"
	"muza/internal/explain"
	"muza/internal/logging"
	"muza/internal/session"
)

// maxBodyBytes caps request bodies; visitor utterances are short.
const maxBodyBytes = 1 << 16

type queryRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Status    string             `json:"status"`
	Question  *dialogue.Question `json:"question,omitempty"`
	Result    *explain.Result    `json:"result,omitempty"`
	// Degraded accompanies question turns; terminal turns carry the list
	// inside the result.
	Degraded []string `json:"degraded,omitempty"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Status    string             `json:"status"`
	Question  *dialogue.Question `json:"question,omitempty"`
	Profile   string             `json:"profile_summary,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *Server) handleRecommend(c *gin.Context) {
	text, ok := s.decodeQuery(c)
	if !ok {
		return
	}
	turn, err := s.engine.Recommend(c.Request.Context(), text)
	if err != nil {
		s.writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, turn.Result)
}

func (s *Server) handleStartSession(c *gin.Context) {
	text, ok := s.decodeQuery(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	turn, err := s.engine.Start(ctx, text)
	if err != nil {
		s.writeEngineError(c, err)
		return
	}
	if turn.Terminal() {
		// Everything resolved in one utterance; nothing to store.
		c.JSON(http.StatusOK, turnResponse{
			Status: string(turn.Conversation.State),
			Result: turn.Result,
		})
		return
	}

	stored := s.sessions.Create(ctx, turn.Conversation, turn.Profile, turn.Question)
	c.JSON(http.StatusCreated, turnResponse{
		SessionID: stored.ID,
		Status:    string(turn.Conversation.State),
		Question:  turn.Question,
		Degraded:  turn.Degraded,
	})
}

func (s *Server) handleAnswer(c *gin.Context) {
	text, ok := s.decodeQuery(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	stored, err := s.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(c, http.StatusNotFound, "session not found")
		return
	}

	turn, err := s.engine.Answer(ctx, stored.Conversation, stored.Profile, text)
	if err != nil {
		if errors.Is(err, engine.ErrNotAwaiting) {
			s.writeError(c, http.StatusConflict, err.Error())
			return
		}
		s.writeEngineError(c, err)
		return
	}

	if turn.Terminal() {
		_ = s.sessions.Delete(ctx, id)
		c.JSON(http.StatusOK, turnResponse{
			SessionID: id,
			Status:    string(turn.Conversation.State),
			Result:    turn.Result,
		})
		return
	}

	if _, err := s.sessions.Update(ctx, id, turn.Conversation, turn.Profile, turn.Question); err != nil {
		s.writeError(c, http.StatusNotFound, "session expired")
		return
	}
	c.JSON(http.StatusOK, turnResponse{
		SessionID: id,
		Status:    string(turn.Conversation.State),
		Question:  turn.Question,
		Degraded:  turn.Degraded,
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	stored, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(c, http.StatusNotFound, "session not found")
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		SessionID: stored.ID,
		Status:    string(stored.Conversation.State),
		Question:  stored.Question,
		Profile:   stored.Profile.Summary(),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	err := s.sessions.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(c, http.StatusNotFound, "session not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// decodeQuery parses the {"text": ...} body shared by every POST surface.
// On failure it writes the error response and reports false.
func (s *Server) decodeQuery(c *gin.Context) (string, bool) {
	var req queryRequest
	if err := decodeJSON(c, &req); err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(c, http.StatusBadRequest, "text is required")
		return "", false
	}
	return text, true
}

// decodeJSON reads one size-capped JSON object, rejecting unknown fields
// and trailing values.
func decodeJSON(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	defer func() {
		_ = c.Request.Body.Close()
	}()

	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("request body too large")
		default:
			return fmt.Errorf("invalid request body")
		}
	}
	if decoder.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func (s *Server) writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) writeEngineError(c *gin.Context, err error) {
	log := logging.FromContext(c.Request.Context(), s.log)
	switch {
	case muzaerrors.IsTransient(err):
		log.Warn("request failed transiently: %v", err)
		s.writeError(c, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		var perm *muzaerrors.PermanentError
		if errors.As(err, &perm) {
			log.Error("retrieval unavailable: %v", err)
			s.writeError(c, http.StatusServiceUnavailable, "retrieval service unavailable")
			return
		}
		log.Error("request failed: %v", err)
		s.writeError(c, http.StatusInternalServerError, "internal error")
	}
}
