package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type welcomeModel struct {
	input textinput.Model
	force bool
	known int
	err   error
}

// submission is a repository the user asked to load.
type submission struct {
	repoURL string
	force   bool
}

func newWelcomeModel(initial string) welcomeModel {
	ti := textinput.New()
	ti.Placeholder = "https://github.com/owner/repo or /path/to/checkout"
	ti.CharLimit = 500
	ti.Width = 60
	ti.SetValue(initial)
	ti.Focus()
	return welcomeModel{input: ti}
}

func (m welcomeModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd, *submission) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			url := strings.TrimSpace(m.input.Value())
			if url == "" {
				return m, nil, nil
			}
			m.err = nil
			return m, nil, &submission{repoURL: url, force: m.force}
		case tea.KeyCtrlF:
			m.force = !m.force
			return m, nil, nil
		case tea.KeyEsc:
			return m, tea.Quit, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, nil
}

func (m welcomeModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ repolens") + "\n"
	s += subtitleStyle.Render("  Ask questions about any repository") + "\n\n"

	s += "  Repository:\n"
	s += "  " + m.input.View() + "\n\n"

	force := "off"
	if m.force {
		force = "on"
	}
	s += dimStyle.Render(fmt.Sprintf("  Force reload: %s (ctrl+f)", force)) + "\n"
	if m.err != nil {
		s += "\n" + errorStyle.Render("  ✗ "+m.err.Error()) + "\n"
	}

	s += "\n"
	help := "  Enter to load • Esc to quit"
	if m.known > 0 {
		help += fmt.Sprintf(" • Tab to pick from %d known repositories", m.known)
	}
	s += helpStyle.Render(help) + "\n"
	return s
}
