package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/viola/internal/brain"
	"github.com/antoniostano/viola/internal/session"
)

type fixedResponder struct {
	reply brain.Reply
}

func (r *fixedResponder) Respond(context.Context, []session.Turn, string) (brain.Reply, string) {
	return r.reply, brain.SourceRules
}

func newTestEngine(t *testing.T, responder Responder) (*Engine, *session.Store) {
	t.Helper()
	store := session.NewStore(time.Minute, time.Minute)
	if responder == nil {
		responder = brain.NewStrategy(nil, time.Second)
	}
	return NewEngine(store, responder, "", nil, nil), store
}

func TestOnCallStartReturnsGreetingAndListens(t *testing.T) {
	e, store := newTestEngine(t, nil)

	d := e.OnCallStart(context.Background(), "CA1")
	if d.Continuation != ContinueListen {
		t.Fatalf("continuation = %q, want %q", d.Continuation, ContinueListen)
	}
	if d.Utterance == "" {
		t.Fatalf("opening utterance must not be empty")
	}

	sess, err := store.Get("CA1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Role != session.RoleSystem {
		t.Fatalf("session should be seeded with one system turn: %+v", sess.History)
	}
}

func TestOnCallStartIsIdempotentForDuplicateWebhooks(t *testing.T) {
	e, store := newTestEngine(t, nil)
	e.OnCallStart(context.Background(), "CA1")
	e.OnCallStart(context.Background(), "CA1")

	sess, _ := store.Get("CA1")
	if len(sess.History) != 1 {
		t.Fatalf("duplicate start reseeded history: %+v", sess.History)
	}
}

func TestOnTurnHistoryGrowsByTwoPerTurn(t *testing.T) {
	e, store := newTestEngine(t, &fixedResponder{reply: brain.Reply{Text: "ok"}})
	e.OnCallStart(context.Background(), "CA1")

	const turns = 4
	for i := 0; i < turns; i++ {
		if _, err := e.OnTurn(context.Background(), "CA1", fmt.Sprintf("input %d", i)); err != nil {
			t.Fatalf("OnTurn(%d) error = %v", i, err)
		}
	}

	sess, _ := store.Get("CA1")
	if want := 1 + 2*turns; len(sess.History) != want {
		t.Fatalf("history length = %d, want %d", len(sess.History), want)
	}
	// Turns alternate user/assistant in call order after the seed.
	for i := 0; i < turns; i++ {
		user := sess.History[1+2*i]
		assistant := sess.History[2+2*i]
		if user.Role != session.RoleUser || user.Content != fmt.Sprintf("input %d", i) {
			t.Fatalf("turn %d user entry out of order: %+v", i, user)
		}
		if assistant.Role != session.RoleAssistant {
			t.Fatalf("turn %d assistant entry out of order: %+v", i, assistant)
		}
	}
}

func TestOnTurnEmptyInputStillReplies(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.OnCallStart(context.Background(), "CA1")

	d, err := e.OnTurn(context.Background(), "CA1", "")
	if err != nil {
		t.Fatalf("OnTurn() error = %v", err)
	}
	if d.Utterance == "" || d.Continuation != ContinueListen {
		t.Fatalf("empty input should get an ordinary reply, got %+v", d)
	}
}

func TestOnTurnUnknownSession(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if _, err := e.OnTurn(context.Background(), "nope", "hello"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("OnTurn error = %v, want session.ErrNotFound", err)
	}
}

func TestDeclineEndsCallAndHangupIsTerminal(t *testing.T) {
	e, store := newTestEngine(t, nil)

	start := e.OnCallStart(context.Background(), "A")
	if start.Continuation != ContinueListen {
		t.Fatalf("start continuation = %q", start.Continuation)
	}

	d, err := e.OnTurn(context.Background(), "A", "не интересно")
	if err != nil {
		t.Fatalf("OnTurn() error = %v", err)
	}
	if d.Continuation != ContinueEnd {
		t.Fatalf("decline should end the call, got %+v", d)
	}
	if !strings.Contains(strings.ToLower(d.Utterance), "хорошего дня") {
		t.Fatalf("closing utterance expected, got %q", d.Utterance)
	}

	sess, _ := store.Get("A")
	if sess.Status != session.StatusEnded {
		t.Fatalf("session status = %q, want %q", sess.Status, session.StatusEnded)
	}
	historyLen := len(sess.History)

	if _, err := e.OnTurn(context.Background(), "A", "алло?"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("post-hangup OnTurn error = %v, want ErrSessionEnded", err)
	}
	sess, _ = store.Get("A")
	if len(sess.History) != historyLen {
		t.Fatalf("history advanced after hangup: %d -> %d", historyLen, len(sess.History))
	}
}

func TestConcurrentSessionsKeepSeparateTranscripts(t *testing.T) {
	e, store := newTestEngine(t, &fixedResponder{reply: brain.Reply{Text: "noted"}})

	ids := []string{"CA-x", "CA-y"}
	for _, id := range ids {
		e.OnCallStart(context.Background(), id)
	}

	const turns = 20
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < turns; i++ {
				if _, err := e.OnTurn(context.Background(), id, id); err != nil {
					t.Errorf("OnTurn(%s) error = %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		sess, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if want := 1 + 2*turns; len(sess.History) != want {
			t.Fatalf("session %s history length = %d, want %d", id, len(sess.History), want)
		}
		for _, turn := range sess.History {
			if turn.Role == session.RoleUser && turn.Content != id {
				t.Fatalf("session %s contains foreign turn %+v", id, turn)
			}
		}
	}
}
