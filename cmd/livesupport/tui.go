package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/ema-live/core"
)

const (
	startTimeout = 30 * time.Second
	// header, status, error and help lines around the transcript.
	chromeHeight = 6
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	statusStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	pendingStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// sessionController is the part of the orchestrator the UI drives.
type sessionController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() orchestration.Snapshot
}

type stateChangedMsg struct{}

type actionDoneMsg struct{ err error }

type model struct {
	session  sessionController
	updates  <-chan struct{}
	snapshot orchestration.Snapshot

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int

	actionErr error
	quitting  bool
}

func newModel(session sessionController, updates <-chan struct{}) model {
	return model{
		session:  session,
		updates:  updates,
		snapshot: session.Snapshot(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.quitting {
				return m, nil
			}
			m.quitting = true
			return m, stopSession(m.session)
		case " ", "enter":
			return m, m.toggle()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshTranscript()
		return m, nil

	case stateChangedMsg:
		m.snapshot = m.session.Snapshot()
		m.refreshTranscript()
		return m, waitForUpdate(m.updates)

	case actionDoneMsg:
		if m.quitting {
			return m, tea.Quit
		}
		if msg.err != nil && !errors.Is(msg.err, orchestration.ErrSessionStopped) {
			m.actionErr = msg.err
		}
		m.snapshot = m.session.Snapshot()
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// toggle starts or stops the session. Transitional states disable it.
func (m *model) toggle() tea.Cmd {
	status := m.session.Snapshot().Status
	if status.IsTransitioning() {
		return nil
	}

	m.actionErr = nil
	if status.IsActive() {
		return stopSession(m.session)
	}
	return startSession(m.session)
}

func startSession(session sessionController) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		return actionDoneMsg{err: session.Start(ctx)}
	}
}

func stopSession(session sessionController) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: session.Stop(context.Background())}
	}
}

func (m *model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.snapshot, m.width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if m.quitting {
		return "Stopping session...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Inspection Support"))
	b.WriteString("\n\n")

	status := statusStyle.Render(statusLabel(m.snapshot.Status))
	if m.snapshot.Status.IsTransitioning() {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	b.WriteString("\n")

	if message := m.errorMessage(); message != "" {
		b.WriteString(errorStyle.Render(message))
	}
	b.WriteString("\n")

	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(renderTranscript(m.snapshot, 80))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpText(m.snapshot.Status)))
	return b.String()
}

func (m model) errorMessage() string {
	if m.snapshot.ErrorMessage != "" {
		return m.snapshot.ErrorMessage
	}
	if m.actionErr != nil {
		return m.actionErr.Error()
	}
	return ""
}

func statusLabel(status orchestration.SessionStatus) string {
	switch status {
	case orchestration.StatusIdle:
		return "Ready"
	case orchestration.StatusConnecting:
		return "Connecting..."
	case orchestration.StatusListening:
		return "Listening"
	case orchestration.StatusSpeaking:
		return "Speaking"
	case orchestration.StatusSearching:
		return "Searching the manual..."
	case orchestration.StatusClosing:
		return "Closing..."
	case orchestration.StatusError:
		return "Error"
	default:
		return string(status)
	}
}

func helpText(status orchestration.SessionStatus) string {
	switch {
	case status.IsTransitioning():
		return "please wait  q: quit"
	case status.IsActive():
		return "space: end session  q: quit"
	default:
		return "space: start session  q: quit"
	}
}

func renderTranscript(snapshot orchestration.Snapshot, width int) string {
	limit := max(width-2, 20)

	var lines []string
	for _, entry := range snapshot.Transcripts {
		lines = append(lines, renderEntry(entry.Speaker, entry.Text, limit, false))
	}
	if text := strings.TrimSpace(snapshot.Pending.User); text != "" {
		lines = append(lines, renderEntry(orchestration.SpeakerUser, text, limit, true))
	}
	if text := strings.TrimSpace(snapshot.Pending.Agent); text != "" {
		lines = append(lines, renderEntry(orchestration.SpeakerAgent, text, limit, true))
	}

	if len(lines) == 0 {
		return helpStyle.Render("Ask about water damage, mold or structural checks.")
	}
	return strings.Join(lines, "\n\n")
}

func renderEntry(speaker orchestration.Speaker, text string, limit int, pending bool) string {
	label := userStyle.Render("You")
	if speaker == orchestration.SpeakerAgent {
		label = agentStyle.Render("Assistant")
	}

	body := wordwrap.String(text, limit)
	if pending {
		body = pendingStyle.Render(body)
	}
	return label + "\n" + body
}
