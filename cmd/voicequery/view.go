package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/wordwrap"

	"voicequery/internal/domain"
	"voicequery/internal/viewer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	liveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	partialStyle = lipgloss.NewStyle().Italic(true)
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	confirmStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func (m model) View() string {
	wrap := max(m.width-4, 20)
	var b strings.Builder

	b.WriteString(titleStyle.Render("voicequery"))
	b.WriteString("  ")
	if m.capture == domain.CaptureStateListening {
		b.WriteString(liveStyle.Render("● " + m.status))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n\n")

	if m.partial != "" {
		b.WriteString(partialStyle.Render(wordwrap.String(m.partial, wrap)))
		b.WriteString("\n\n")
	}

	if m.confirmation.Phase != domain.GatePhaseClosed {
		b.WriteString(m.confirmationView(wrap))
		b.WriteString("\n\n")
	}

	if m.alert != "" {
		b.WriteString(alertStyle.Render(wordwrap.String(m.alert, wrap)))
		b.WriteString("\n\n")
	}

	if m.spoken != "" {
		b.WriteString(statusStyle.Render("» " + m.spoken))
		b.WriteString("\n")
	}
	if m.route != "" {
		b.WriteString(statusStyle.Render("→ " + m.route))
		b.WriteString("\n")
	}
	if !m.table.Empty() {
		b.WriteString(renderTable(m.table))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space listen/stop • enter confirm • esc cancel • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) confirmationView(wrap int) string {
	var b strings.Builder
	b.WriteString("Run this query?\n")
	b.WriteString(wordwrap.String(fmt.Sprintf("%q", m.confirmation.Transcript), wrap-4))
	b.WriteString("\n")
	if m.confirmation.Phase == domain.GatePhaseDispatching {
		b.WriteString(statusStyle.Render("Asking..."))
		return confirmStyle.Render(b.String())
	}
	b.WriteString(m.progress.ViewAs(m.confirmation.ProgressFraction))
	b.WriteString(fmt.Sprintf(" %ds", m.confirmation.SecondsRemaining))
	return confirmStyle.Render(b.String())
}

func renderTable(t viewer.Table) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(statusStyle).
		Headers(t.Columns...).
		Rows(t.Rows...).
		String()
}
