package convo

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/viola/internal/brain"
	"github.com/antoniostano/viola/internal/events"
	"github.com/antoniostano/viola/internal/observability"
	"github.com/antoniostano/viola/internal/session"
)

type Continuation string

const (
	// ContinueListen: speak the utterance, then keep capturing speech.
	ContinueListen Continuation = "listen"
	// ContinueEnd: speak the utterance, then terminate the call.
	ContinueEnd Continuation = "end"
)

// Directive is the engine's abstract instruction for the next response.
// Rendering it into provider markup is the HTTP layer's job.
type Directive struct {
	Utterance    string       `json:"utterance"`
	Continuation Continuation `json:"continuation"`
}

// ErrSessionEnded is returned for turns arriving after the hangup decision.
// A hangup is terminal; the transcript does not advance past it.
var ErrSessionEnded = errors.New("session already ended")

const defaultGreeting = "Здравствуйте! Это автоматический помощник компании «Металлоизделия». " +
	"Подскажите, пожалуйста, интересует ли вас изготовление металлоизделий?"

const seedMarker = "call started"

// Responder produces the next reply. Satisfied by brain.Strategy.
type Responder interface {
	Respond(ctx context.Context, history []session.Turn, input string) (brain.Reply, string)
}

// Engine turns webhook events for one call into voice directives. Sessions
// are created on first contact, advanced turn by turn, and ended when the
// reply strategy decides to hang up.
type Engine struct {
	store    *session.Store
	strategy Responder
	greeting string
	hub      *events.Hub
	metrics  *observability.Metrics
}

func NewEngine(store *session.Store, strategy Responder, greeting string, hub *events.Hub, metrics *observability.Metrics) *Engine {
	if strings.TrimSpace(greeting) == "" {
		greeting = defaultGreeting
	}
	return &Engine{
		store:    store,
		strategy: strategy,
		greeting: greeting,
		hub:      hub,
		metrics:  metrics,
	}
}

// OnCallStart synthesizes the session and returns the opening directive.
// A duplicate start webhook for a known call repeats the greeting without
// reseeding the transcript.
func (e *Engine) OnCallStart(_ context.Context, callID string) Directive {
	_, created := e.store.CreateIfAbsent(callID, session.Turn{
		Role:    session.RoleSystem,
		Content: seedMarker,
	})
	if created {
		e.countSession("created")
		e.publish(events.Event{Type: events.TypeCallStarted, CallID: callID})
	}
	return Directive{Utterance: e.greeting, Continuation: ContinueListen}
}

// OnTurn appends the spoken input, asks the strategy for a reply, records it,
// and decides whether the call continues. Empty input is ordinary input: the
// strategy still produces a reply. The whole read-modify-write runs inside
// the session's critical section, so overlapping webhooks for one call
// cannot interleave the transcript.
func (e *Engine) OnTurn(ctx context.Context, callID, spokenInput string) (Directive, error) {
	var (
		reply  brain.Reply
		source string
	)

	_, err := e.store.Update(callID, func(sess *session.Session) error {
		if sess.Status == session.StatusEnded {
			return ErrSessionEnded
		}
		sess.History = append(sess.History, session.Turn{
			Role:    session.RoleUser,
			Content: spokenInput,
		})

		started := time.Now()
		reply, source = e.strategy.Respond(ctx, sess.History, spokenInput)
		e.observeReply(source, time.Since(started))

		sess.History = append(sess.History, session.Turn{
			Role:    session.RoleAssistant,
			Content: reply.Text,
		})
		if reply.Hangup {
			sess.Status = session.StatusEnded
			sess.EndedAt = time.Now().UTC()
		}
		return nil
	})
	if err != nil {
		return Directive{}, err
	}

	e.publish(events.Event{Type: events.TypeCallTurn, CallID: callID, Role: string(session.RoleUser), Text: spokenInput})
	e.publish(events.Event{Type: events.TypeCallTurn, CallID: callID, Role: string(session.RoleAssistant), Text: reply.Text})

	if reply.Hangup {
		e.countSession("ended")
		e.publish(events.Event{Type: events.TypeCallEnded, CallID: callID})
		return Directive{Utterance: reply.Text, Continuation: ContinueEnd}, nil
	}
	return Directive{Utterance: reply.Text, Continuation: ContinueListen}, nil
}

// OnStatus records provider lifecycle callbacks. They carry no state-machine
// effect; the janitor handles cleanup for calls that end without a hangup
// directive.
func (e *Engine) OnStatus(callID, status string) {
	log.Printf("call %s status: %s", callID, status)
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues("status_callback").Inc()
	}
}

func (e *Engine) countSession(event string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SessionEvents.WithLabelValues(event).Inc()
	e.metrics.ActiveSessions.Set(float64(e.store.ActiveCount()))
}

func (e *Engine) observeReply(source string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Replies.WithLabelValues(source).Inc()
	e.metrics.ObserveReplyLatency(d)
}

func (e *Engine) publish(ev events.Event) {
	if e.hub != nil {
		e.hub.Publish(ev)
	}
}
