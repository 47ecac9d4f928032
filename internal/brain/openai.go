package brain

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/antoniostano/viola/internal/session"
)

// systemPreamble constrains tone, brevity and the call goal. The agent should
// find out what the lead needs, offer a short follow-up call, and disengage
// politely when declined.
const systemPreamble = "You are a polite phone assistant for a metal fabrication company. " +
	"Speak in short conversational sentences suitable for text-to-speech. " +
	"Find out what the caller needs, offer a brief follow-up call with a specialist, " +
	"and if the caller is not interested, thank them and end the call politely. " +
	"Answer in the language the caller speaks."

const (
	defaultModel       = openai.GPT4oMini
	defaultMaxTokens   = 120
	defaultTemperature = 0.4
)

var errEmptyCompletion = errors.New("empty completion")

// OpenAIAdapter asks a chat-completion model for the next utterance. Hangup is
// inferred from the generated text because the completion API carries no
// structured end-of-call field; see HangupDetector for the caveats.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	hangup      *HangupDetector
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.OpenAIAPIKey))
	if base := strings.TrimSpace(cfg.OpenAIBaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	model := strings.TrimSpace(cfg.OpenAIModel)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &OpenAIAdapter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		hangup:      NewHangupDetector(cfg.HangupMarkers),
	}
}

func (a *OpenAIAdapter) Reply(ctx context.Context, history []session.Turn, input string) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPreamble,
	})
	for _, turn := range history {
		role, ok := completionRole(turn.Role)
		if !ok {
			// Seed markers and other system turns are bookkeeping, not prompt.
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Reply{}, errEmptyCompletion
	}
	return Reply{Text: text, Hangup: a.hangup.Detect(text)}, nil
}

func completionRole(role session.Role) (string, bool) {
	switch role {
	case session.RoleUser:
		return openai.ChatMessageRoleUser, true
	case session.RoleAssistant:
		return openai.ChatMessageRoleAssistant, true
	default:
		return "", false
	}
}
