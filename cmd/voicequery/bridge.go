package main

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"voicequery/internal/domain"
	"voicequery/internal/viewer"
)

var errBridgeClosed = errors.New("terminal shell closed")

type captureMsg struct {
	state  domain.CaptureState
	reason domain.CaptureReason
}

type partialMsg string

type confirmationMsg domain.ConfirmationState

type alertMsg struct {
	code   domain.ErrorCode
	detail string
}

type navigateMsg string

type speakMsg string

type actionMsg struct {
	err error
}

type tableMsg struct {
	route string
	table viewer.Table
}

// bridge turns pipeline callbacks into Bubble Tea messages.
type bridge struct {
	events    chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

func newBridge() *bridge {
	return &bridge{
		events: make(chan tea.Msg, 128),
		done:   make(chan struct{}),
	}
}

func (b *bridge) send(msg tea.Msg) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.events <- msg:
		return true
	case <-b.done:
		return false
	}
}

func (b *bridge) close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// next waits for the following pipeline message.
func (b *bridge) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason) {
	b.send(captureMsg{state: state, reason: reason})
}

func (b *bridge) PartialTranscript(text string) {
	b.send(partialMsg(text))
}

func (b *bridge) ConfirmationChanged(state domain.ConfirmationState) {
	b.send(confirmationMsg(state))
}

func (b *bridge) Alert(code domain.ErrorCode, detail string) {
	b.send(alertMsg{code: code, detail: detail})
}

func (b *bridge) Navigate(_ context.Context, route string) error {
	if !b.send(navigateMsg(route)) {
		return errBridgeClosed
	}
	return nil
}

func (b *bridge) Speak(_ context.Context, text string) error {
	if !b.send(speakMsg(text)) {
		return errBridgeClosed
	}
	return nil
}
