package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/antoniostano/aria/internal/brain"
	"github.com/antoniostano/aria/internal/config"
	"github.com/antoniostano/aria/internal/engine"
	"github.com/antoniostano/aria/internal/observability"
	"github.com/antoniostano/aria/internal/protocol"
	"github.com/antoniostano/aria/internal/session"
)

type streamingResponder struct {
	deltas []string
	reply  engine.Reply
	err    error
}

func (s streamingResponder) Respond(_ context.Context, _, _ string, onDelta brain.DeltaHandler) (engine.Reply, error) {
	if s.err != nil {
		return engine.Reply{}, s.err
	}
	if onDelta != nil {
		for _, d := range s.deltas {
			if err := onDelta(d); err != nil {
				return engine.Reply{}, err
			}
		}
	}
	return s.reply, nil
}

func newRawServer(t *testing.T, namespace string, eng Responder) *Server {
	t.Helper()
	cfg := config.Config{SessionInactivityTimeout: 2 * time.Minute}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics(namespace + time.Now().Format("150405000000000"))
	return New(cfg, sessions, eng, seededBinding(), metrics)
}

// A saturated outbound queue may cost deltas, never the turn end.
func TestRunTurnDeliversTurnEndUnderBackpressure(t *testing.T) {
	deltas := make([]string, 32)
	for i := range deltas {
		deltas[i] = "chunk "
	}
	srv := newRawServer(t, "test_ws_backpressure_", streamingResponder{
		deltas: deltas,
		reply:  engine.Reply{Text: "full reply"},
	})

	outbound := make(chan any, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.runTurn(context.Background(), "conv-1", "hello", outbound)
	}()

	deadline := time.After(2 * time.Second)
	var gotEnd bool
	for !gotEnd {
		select {
		case msg := <-outbound:
			// Slow consumer: keep the queue saturated between reads.
			time.Sleep(time.Millisecond)
			if end, ok := msg.(protocol.AssistantTurnEnd); ok {
				if end.Text != "full reply" {
					t.Fatalf("turn end text = %q, want %q", end.Text, "full reply")
				}
				gotEnd = true
			}
		case <-deadline:
			t.Fatalf("turn end never delivered under backpressure")
		}
	}
	<-done
}

func TestRunTurnDeliversErrorEventWhenQueueFull(t *testing.T) {
	srv := newRawServer(t, "test_ws_errfull_", streamingResponder{err: engine.ErrTransient})

	outbound := make(chan any, 1)
	outbound <- protocol.SystemEvent{Type: protocol.TypeSystemEvent}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.runTurn(context.Background(), "conv-1", "hello", outbound)
	}()

	select {
	case <-done:
		t.Fatalf("runTurn returned while the error event had no queue space")
	case <-time.After(50 * time.Millisecond):
	}

	<-outbound // drain the filler, freeing a slot
	select {
	case msg := <-outbound:
		ev, ok := msg.(protocol.ErrorEvent)
		if !ok {
			t.Fatalf("message = %T, want protocol.ErrorEvent", msg)
		}
		if ev.Code != "assistant_unavailable" || !ev.Retryable {
			t.Fatalf("error event = %+v, want retryable assistant_unavailable", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("error event never delivered after queue drained")
	}
	<-done
}

func TestRunTurnTerminalSendUnblocksOnCancel(t *testing.T) {
	srv := newRawServer(t, "test_ws_cancel_", streamingResponder{
		reply: engine.Reply{Text: "reply"},
	})

	outbound := make(chan any, 1)
	outbound <- protocol.SystemEvent{Type: protocol.TypeSystemEvent}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.runTurn(ctx, "conv-1", "hello", outbound)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runTurn still blocked after connection context cancel")
	}
}
