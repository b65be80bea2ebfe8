package usecase

import (
	"strings"
	"sync"
)

// utterance holds the live transcript of one capture session. Each
// recognition result replaces the previous hypothesis.
type utterance struct {
	mu   sync.Mutex
	text string
}

func newUtterance() *utterance {
	return &utterance{}
}

func (u *utterance) Replace(text string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.text = strings.TrimSpace(text)
	return u.text
}

func (u *utterance) Text() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.text
}
