package brain

import "strings"

// defaultHangupMarkers are the closing phrasings the agent is prompted to use.
// The scan is a heuristic over generated text, not a structured signal: a
// reply that happens to contain a marker ends the call, and a goodbye phrased
// differently does not. The list is phrasing- and locale-dependent, which is
// why it is configurable.
var defaultHangupMarkers = []string{
	"have a good day",
	"goodbye",
	"ending the call",
	"хорошего дня",
	"до свидания",
	"всего доброго",
	"завершаю звонок",
}

// HangupDetector scans reply text for closing-phrase markers.
type HangupDetector struct {
	markers []string
}

func NewHangupDetector(markers []string) *HangupDetector {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, defaultHangupMarkers...)
	}
	return &HangupDetector{markers: cleaned}
}

func (d *HangupDetector) Detect(text string) bool {
	lowered := strings.ToLower(text)
	for _, m := range d.markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
