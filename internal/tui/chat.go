package tui

import (
	"context"
	"fmt"
	"strings"

	"repolens/internal/rag"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// pending names the request in flight; empty when the input is usable.
type pending string

const (
	pendingNone    pending = ""
	pendingAnswer  pending = "thinking"
	pendingSummary pending = "summarizing"
)

const chatHelp = `Commands:
  /summary  summarize the repository
  /clear    clear the screen
  /exit     quit
  /help     show this help

Each question is answered on its own; earlier turns are not sent.`

type entryKind int

const (
	entryQuestion entryKind = iota
	entryAnswer
	entryNotice
	entryFailure
)

type entry struct {
	kind    entryKind
	text    string
	sources []rag.Source
}

type chatModel struct {
	backend Backend
	repoURL string
	label   string

	transcript []entry
	busy       pending

	view     viewport.Model
	input    textinput.Model
	spin     spinner.Model
	markdown *glamour.TermRenderer
	width    int
	ready    bool
}

// replyMsg carries the result of a question or summary request.
type replyMsg struct {
	text    string
	sources []rag.Source
	err     error
}

func newChatModel(b Backend, repoURL, label string) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask a question about the repository..."
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	return chatModel{backend: b, repoURL: repoURL, label: label, input: in, spin: sp}
}

// resize lays out the transcript above a status bar and the input line.
func (m *chatModel) resize(width, height int) {
	m.width = width
	m.view = viewport.New(width, max(height-3, 5))
	m.input.Width = max(width-4, 10)
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(width-2, 20))); err == nil {
		m.markdown = r
	}
	m.ready = true
	m.redraw()
}

func (m *chatModel) push(e entry) {
	m.transcript = append(m.transcript, e)
	m.redraw()
}

func (m *chatModel) redraw() {
	if len(m.transcript) == 0 && m.busy == pendingNone {
		m.view.SetContent(dimStyle.Render("Ask a question about " + m.repoURL + ".\n\nCommands: /summary, /help, /clear, /exit"))
		return
	}
	m.view.SetContent(m.render())
	m.view.GotoBottom()
}

func askQuestion(b Backend, repoURL, question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.Query(context.Background(), repoURL, question)
		if err != nil {
			return replyMsg{err: err}
		}
		return replyMsg{text: resp.Answer, sources: resp.Sources}
	}
}

func requestSummary(b Backend, repoURL string) tea.Cmd {
	return func() tea.Msg {
		text, err := b.Summary(context.Background(), repoURL)
		return replyMsg{text: text, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case replyMsg:
		m.busy = pendingNone
		if msg.err != nil {
			m.push(entry{kind: entryFailure, text: msg.err.Error()})
		} else {
			m.push(entry{kind: entryAnswer, text: msg.text, sources: msg.sources})
		}
		return m, nil

	case spinner.TickMsg:
		if m.busy == pendingNone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		m.redraw()
		return m, cmd

	case tea.KeyMsg:
		if m.busy != pendingNone {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			return m.submit(line)
		}
	}

	var inputCmd, viewCmd tea.Cmd
	if m.busy == pendingNone {
		m.input, inputCmd = m.input.Update(msg)
	}
	m.view, viewCmd = m.view.Update(msg)
	return m, tea.Batch(inputCmd, viewCmd)
}

// submit handles one line of input: a slash command or a question.
func (m chatModel) submit(line string) (chatModel, tea.Cmd) {
	switch line {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/clear":
		m.transcript = nil
		m.redraw()
		return m, nil
	case "/help":
		m.push(entry{kind: entryNotice, text: chatHelp})
		return m, nil
	case "/summary":
		m.busy = pendingSummary
		m.push(entry{kind: entryQuestion, text: line})
		return m, tea.Batch(m.spin.Tick, requestSummary(m.backend, m.repoURL))
	}
	m.busy = pendingAnswer
	m.push(entry{kind: entryQuestion, text: line})
	return m, tea.Batch(m.spin.Tick, askQuestion(m.backend, m.repoURL, line))
}

func (m chatModel) renderAnswer(text string) string {
	if m.markdown != nil {
		if out, err := m.markdown.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return assistantMsgStyle.Render(text)
}

func (m chatModel) render() string {
	blocks := make([]string, 0, len(m.transcript)+1)
	for _, e := range m.transcript {
		switch e.kind {
		case entryQuestion:
			blocks = append(blocks, userMsgStyle.Render("You: ")+e.text)
		case entryAnswer:
			b := m.renderAnswer(e.text)
			if len(e.sources) > 0 {
				b += "\n" + sourceStyle.Render(formatSources(e.sources))
			}
			blocks = append(blocks, b)
		case entryFailure:
			blocks = append(blocks, errorStyle.Render("Error: "+e.text))
		case entryNotice:
			blocks = append(blocks, dimStyle.Render(e.text))
		}
	}
	if m.busy != pendingNone {
		blocks = append(blocks, m.spin.View()+" "+dimStyle.Render(string(m.busy)+"..."))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func formatSources(sources []rag.Source) string {
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for _, s := range sources {
		l := fmt.Sprintf("%s:%d-%d", s.FilePath, s.StartLine, s.EndLine)
		if s.SymbolName != "" {
			l += " (" + s.SymbolName + ")"
		}
		lines = append(lines, fmt.Sprintf("%s  %.2f", l, s.Score))
	}
	return strings.Join(lines, "\n")
}

func (m chatModel) View(width, height int) string {
	if !m.ready {
		return ""
	}
	state := "idle"
	if m.busy != pendingNone {
		state = string(m.busy) + "..."
	}
	parts := []string{"repolens", m.repoURL}
	if m.label != "" {
		parts = append(parts, m.label)
	}
	parts = append(parts, state)
	bar := statusBarStyle.Width(m.width).Render(strings.Join(parts, " • "))

	return lipgloss.JoinVertical(lipgloss.Left, m.view.View(), bar, m.input.View())
}
