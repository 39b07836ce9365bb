package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/aria/internal/engine"
	"github.com/antoniostano/aria/internal/protocol"
	"github.com/antoniostano/aria/internal/session"
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "missing_conversation_id", "query parameter conversation_id is required")
		return
	}
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "engine not configured")
		return
	}
	if _, err := s.sessions.Get(conversationID); err != nil {
		respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ConversationEvents.WithLabelValues("ws_connected").Inc()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.ClientUtterance, 16)
	outbound := make(chan any, 256)
	turnsDone := make(chan struct{})

	go func() {
		defer close(turnsDone)
		s.runTurns(ctx, conversationID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					if s.metrics != nil {
						s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					}
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendTerminal(ctx, outbound, protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConversationID: conversationID,
				Code:           "invalid_client_message",
				Source:         "gateway",
				Retryable:      false,
				Detail:         err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch msg := parsed.(type) {
		case protocol.ClientUtterance:
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- msg:
			}
		case protocol.ClientControl:
			if msg.Action == "end" {
				if _, err := s.sessions.End(conversationID); err == nil && s.metrics != nil {
					s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))
					s.metrics.ConversationEvents.WithLabelValues("ended").Inc()
				}
				s.sendTerminal(ctx, outbound, protocol.SystemEvent{
					Type:           protocol.TypeSystemEvent,
					ConversationID: conversationID,
					Code:           "conversation_ended",
				})
				break readLoop
			}
		}
	}

	cancel()
	close(inbound)
	<-turnsDone
	<-writerDone
	if s.metrics != nil {
		s.metrics.ConversationEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

// runTurns serializes assistant turns for one connection: a new utterance
// waits for the previous turn to finish rather than interleaving deltas.
func (s *Server) runTurns(ctx context.Context, conversationID string, inbound <-chan protocol.ClientUtterance, outbound chan<- any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.runTurn(ctx, conversationID, msg.Text, outbound)
		}
	}
}

func (s *Server) runTurn(ctx context.Context, conversationID, text string, outbound chan<- any) {
	turnID := uuid.NewString()
	onDelta := func(delta string) error {
		s.send(outbound, protocol.AssistantTextDelta{
			Type:           protocol.TypeAssistantTextDelta,
			ConversationID: conversationID,
			TurnID:         turnID,
			TextDelta:      delta,
		})
		return nil
	}

	reply, err := s.engine.Respond(ctx, conversationID, text, onDelta)
	if err != nil {
		code := "internal_error"
		retryable := false
		switch {
		case errors.Is(err, engine.ErrTransient):
			code = "assistant_unavailable"
			retryable = true
		case errors.Is(err, session.ErrNotFound):
			code = "conversation_not_found"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		}
		s.sendTerminal(ctx, outbound, protocol.ErrorEvent{
			Type:           protocol.TypeErrorEvent,
			ConversationID: conversationID,
			Code:           code,
			Source:         "engine",
			Retryable:      retryable,
			Detail:         code,
		})
		return
	}

	s.sendTerminal(ctx, outbound, protocol.AssistantTurnEnd{
		Type:           protocol.TypeAssistantTurnEnd,
		ConversationID: conversationID,
		TurnID:         turnID,
		Text:           reply.Text,
		Reason:         "completed",
	})
}

// send enqueues a best-effort message; drops if the outbound queue is
// saturated rather than blocking a turn. A lost delta only costs smoothness,
// the full text still arrives with the turn end.
func (s *Server) send(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		if s.metrics != nil {
			s.metrics.WSWriteErrors.WithLabelValues("queue_full").Inc()
		}
	}
}

// sendTerminal enqueues a message the client must not miss (turn end, error,
// conversation ended). It waits for queue space until the connection context
// is cancelled.
func (s *Server) sendTerminal(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientUtterance:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
