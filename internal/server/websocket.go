package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"muza/internal/dialogue"
	"muza/internal/engine"
	"muza/internal/explain"
	"muza/internal/logging"
	"muza/internal/profile"
)

const wsReadLimit = maxBodyBytes

type wsClientMessage struct {
	// Type is "start" for the opening utterance, "answer" for a reply to
	// the pending question.
	Type string `json:"type"`
	Text string `json:"text"`
}

type wsServerMessage struct {
	// Type is "question", "result" or "error".
	Type     string             `json:"type"`
	Status   string             `json:"status,omitempty"`
	Question *dialogue.Question `json:"question,omitempty"`
	Result   *explain.Result    `json:"result,omitempty"`
	Degraded []string           `json:"degraded,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// handleWebSocket runs the ask/answer loop over one socket. Dialogue state
// stays local to the connection; after a result the client may open a new
// dialogue with another "start".
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx := c.Request.Context()
	log := logging.FromContext(ctx, s.log)

	var (
		conv    dialogue.Conversation
		prof    profile.Profile
		waiting bool
	)

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed: %v", err)
			}
			return
		}

		text := strings.TrimSpace(msg.Text)
		var turn engine.Turn
		var turnErr error
		switch msg.Type {
		case "start":
			if text == "" {
				s.writeWsError(conn, "text is required")
				continue
			}
			turn, turnErr = s.engine.Start(ctx, text)
		case "answer":
			if !waiting {
				s.writeWsError(conn, "no question pending, send start first")
				continue
			}
			if text == "" {
				s.writeWsError(conn, "text is required")
				continue
			}
			turn, turnErr = s.engine.Answer(ctx, conv, prof, text)
		default:
			s.writeWsError(conn, fmt.Sprintf("unknown message type %q", msg.Type))
			continue
		}

		if turnErr != nil {
			log.Error("websocket turn failed: %v", turnErr)
			s.writeWsError(conn, "service unavailable")
			continue
		}

		conv, prof = turn.Conversation, turn.Profile
		if turn.Terminal() {
			waiting = false
			s.writeWs(conn, wsServerMessage{
				Type:   "result",
				Status: string(turn.Conversation.State),
				Result: turn.Result,
			})
			continue
		}

		waiting = true
		s.writeWs(conn, wsServerMessage{
			Type:     "question",
			Status:   string(turn.Conversation.State),
			Question: turn.Question,
			Degraded: turn.Degraded,
		})
	}
}

func (s *Server) writeWs(conn *websocket.Conn, msg wsServerMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("websocket write failed: %v", err)
	}
}

func (s *Server) writeWsError(conn *websocket.Conn, text string) {
	s.writeWs(conn, wsServerMessage{Type: "error", Error: text})
}
