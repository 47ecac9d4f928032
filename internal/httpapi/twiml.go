package httpapi

import (
	"encoding/xml"
	"fmt"

	"github.com/antoniostano/viola/internal/convo"
)

// TwiML rendering of engine directives. Speak-then-listen becomes a speech
// Gather posting the transcription back to the turn endpoint; speak-then-end
// becomes Say followed by Hangup.

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
	Say     *twimlSay    `xml:"Say,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type twimlGather struct {
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Language      string   `xml:"language,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Say           twimlSay `xml:"Say"`
}

type twimlSay struct {
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

func renderTwiML(d convo.Directive, turnAction, language string) ([]byte, error) {
	var resp twimlResponse
	switch d.Continuation {
	case convo.ContinueListen:
		resp.Gather = &twimlGather{
			Input:         "speech",
			Action:        turnAction,
			Method:        "POST",
			Language:      language,
			SpeechTimeout: "auto",
			Say:           twimlSay{Language: language, Text: d.Utterance},
		}
	case convo.ContinueEnd:
		if d.Utterance != "" {
			resp.Say = &twimlSay{Language: language, Text: d.Utterance}
		}
		resp.Hangup = &struct{}{}
	default:
		return nil, fmt.Errorf("unknown continuation %q", d.Continuation)
	}

	body, err := xml.MarshalIndent(resp, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
