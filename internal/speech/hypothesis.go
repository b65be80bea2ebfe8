package speech

import (
	"strings"

	"voicequery/internal/domain"
)

// hypothesis tracks the recognizer's best guess for the whole utterance:
// committed segments followed by the latest interim text. It is only used
// from the session's consumer goroutine.
type hypothesis struct {
	committed []string
	interim   string
}

// Add applies a provider event and reports whether the text changed.
func (h *hypothesis) Add(event domain.TranscriptEvent) bool {
	before := h.Text()

	text := strings.TrimSpace(event.Text)
	if event.Kind == domain.TranscriptKindFinal {
		// A bare end-of-speech marker commits whatever was last heard.
		if text == "" {
			text = h.interim
		}
		if text != "" {
			h.committed = append(h.committed, text)
		}
		h.interim = ""
	} else {
		h.interim = text
	}

	return h.Text() != before
}

func (h *hypothesis) Text() string {
	parts := h.committed
	if h.interim != "" {
		parts = append(parts[:len(parts):len(parts)], h.interim)
	}
	return strings.Join(parts, " ")
}
