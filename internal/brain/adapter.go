package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/viola/internal/session"
)

// Reply is what the strategy produces for one user utterance.
type Reply struct {
	Text   string `json:"text"`
	Hangup bool   `json:"hangup"`
}

// Adapter computes a reply from the accumulated transcript plus the latest
// spoken input. The history already contains the just-appended user turn.
type Adapter interface {
	Reply(ctx context.Context, history []session.Turn, input string) (Reply, error)
}

// Config controls adapter construction.
type Config struct {
	Mode          string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	MaxTokens     int
	Temperature   float32
	HangupMarkers []string
}

// NewAdapter selects the primary reply backend. "auto" prefers OpenAI when a
// key is configured and otherwise degrades to the deterministic rules, never
// fatally. A nil adapter means no primary: the strategy already carries the
// rules, so handing it a rules primary would count those replies as the
// OpenAI path.
func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIAdapter(cfg), nil
		}
		return nil, nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("openai reply mode requires an API key")
		}
		return NewOpenAIAdapter(cfg), nil
	case "rules":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported reply adapter mode %q", cfg.Mode)
	}
}
