package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/viola/internal/config"
	"github.com/antoniostano/viola/internal/convo"
	"github.com/antoniostano/viola/internal/events"
	"github.com/antoniostano/viola/internal/observability"
	"github.com/antoniostano/viola/internal/session"
)

const turnPath = "/twilio/turn"

type Server struct {
	cfg      config.Config
	engine   *convo.Engine
	hub      *events.Hub
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, engine *convo.Engine, hub *events.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		hub:     hub,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients may watch the live call
				// feed unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/twilio/voice", s.handleCallStart)
	r.Post(turnPath, s.handleTurn)
	r.Post("/twilio/status", s.handleStatus)

	r.Get("/v1/calls/events/ws", s.handleEventsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleCallStart answers the call-start webhook with the opening directive.
func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.FormValue("CallSid"))
	if callID == "" {
		s.webhookError(w, http.StatusBadRequest, "missing_call_sid", "CallSid form value is required")
		return
	}

	d := s.engine.OnCallStart(r.Context(), callID)
	s.respondTwiML(w, d)
}

// handleTurn receives one gathered speech result and answers with the next
// directive. Absent speech (silence, unrecognized audio) is an ordinary
// empty input.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.FormValue("CallSid"))
	if callID == "" {
		s.webhookError(w, http.StatusBadRequest, "missing_call_sid", "CallSid form value is required")
		return
	}
	spokenInput := r.FormValue("SpeechResult")

	d, err := s.engine.OnTurn(r.Context(), callID, spokenInput)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// Turn webhook without a preceding call-start is a caller logic
		// error, not something to answer with speech.
		s.webhookError(w, http.StatusNotFound, "unknown_session", "no session for CallSid "+callID)
		return
	case errors.Is(err, convo.ErrSessionEnded):
		// The hangup directive already went out; tell the provider to
		// drop the call instead of erroring mid-teardown.
		s.respondTwiML(w, convo.Directive{Continuation: convo.ContinueEnd})
		return
	case err != nil:
		s.webhookError(w, http.StatusInternalServerError, "turn_failed", err.Error())
		return
	}
	s.respondTwiML(w, d)
}

// handleStatus logs provider lifecycle callbacks; they carry no
// state-machine effect.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.FormValue("CallSid"))
	status := strings.TrimSpace(r.FormValue("CallStatus"))
	s.engine.OnStatus(callID, status)
	w.WriteHeader(http.StatusNoContent)
}

// handleEventsWS streams the live call-event feed to an operator dashboard.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	eventCh, cancel := s.hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) respondTwiML(w http.ResponseWriter, d convo.Directive) {
	body, err := renderTwiML(d, turnPath, s.cfg.SpeechLanguage)
	if err != nil {
		s.webhookError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) webhookError(w http.ResponseWriter, status int, code, message string) {
	log.Printf("webhook error %s: %s", code, message)
	if s.metrics != nil {
		s.metrics.WebhookErrors.WithLabelValues(code).Inc()
	}
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
