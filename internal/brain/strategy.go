package brain

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/viola/internal/session"
)

// Reply source labels, by adapter kind. Rules replies carry the same label
// whether they were chosen up front or reached by falling back.
const (
	SourceOpenAI = "openai"
	SourceRules  = "rules"
)

// Strategy runs the primary adapter under a timeout and recovers to the rules
// fallback on any error or empty reply. Callers on the conversation path
// always get a spoken reply; backend failures are logged, never surfaced.
type Strategy struct {
	primary  Adapter
	fallback Adapter
	timeout  time.Duration
}

func NewStrategy(primary Adapter, timeout time.Duration) *Strategy {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Strategy{
		primary:  primary,
		fallback: NewRulesAdapter(),
		timeout:  timeout,
	}
}

// Respond never fails. The returned source tells which path produced the
// reply, for metrics.
func (s *Strategy) Respond(ctx context.Context, history []session.Turn, input string) (Reply, string) {
	if s.primary != nil {
		replyCtx, cancel := context.WithTimeout(ctx, s.timeout)
		reply, err := s.primary.Reply(replyCtx, history, input)
		cancel()
		if err == nil && strings.TrimSpace(reply.Text) != "" {
			return reply, SourceOpenAI
		}
		if err != nil {
			log.Printf("reply backend failed, using fallback: %v", err)
		} else {
			log.Printf("reply backend returned empty text, using fallback")
		}
	}

	reply, err := s.fallback.Reply(ctx, history, input)
	if err != nil {
		// The rules adapter does not error; keep a defined utterance anyway.
		log.Printf("fallback reply failed: %v", err)
		reply = Reply{Text: qualifyReply}
	}
	return reply, SourceRules
}
