package brain

import (
	"context"
	"strings"

	"github.com/antoniostano/viola/internal/session"
)

// RulesAdapter is the degraded reply path used when no completion backend is
// configured or the backend fails. It matches the latest input against a
// small ordered set of keyword groups and never returns an error.
type RulesAdapter struct{}

func NewRulesAdapter() *RulesAdapter { return &RulesAdapter{} }

var declinePhrases = []string{
	"не интересно",
	"неинтересно",
	"не надо",
	"не звоните",
	"not interested",
	"no thanks",
	"stop calling",
}

var contactPhrases = []string{
	"перезвон",
	"напишите",
	"почта",
	"email",
	"call me back",
	"call later",
	"write to",
}

const (
	declineReply = "Понимаю вас. Спасибо за уделённое время, хорошего дня! " +
		"Understood, thank you for your time. Have a good day!"
	contactReply = "Конечно. Подскажите, пожалуйста, удобный номер или почту для связи. " +
		"Of course. What number or email works best for you?"
	qualifyReply = "Подскажите, пожалуйста, какие металлоизделия вас интересуют? " +
		"Could you tell me what metal products you are looking for?"
)

func (a *RulesAdapter) Reply(_ context.Context, _ []session.Turn, input string) (Reply, error) {
	lowered := strings.ToLower(input)
	if containsAny(lowered, declinePhrases) {
		return Reply{Text: declineReply, Hangup: true}, nil
	}
	if containsAny(lowered, contactPhrases) {
		return Reply{Text: contactReply}, nil
	}
	return Reply{Text: qualifyReply}, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
