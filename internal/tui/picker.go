package tui

import (
	"fmt"

	"repolens/internal/api"
	"repolens/internal/registry"

	tea "github.com/charmbracelet/bubbletea"
)

type pickerModel struct {
	repos  []api.StatusResponse
	cursor int
}

func (m pickerModel) withRepos(repos []api.StatusResponse) pickerModel {
	m.repos = repos
	if m.cursor >= len(repos) {
		m.cursor = 0
	}
	return m
}

// Update moves the cursor and returns the chosen repository URL on Enter.
func (m pickerModel) Update(msg tea.Msg) (pickerModel, string) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || len(m.repos) == 0 {
		return m, ""
	}
	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.repos)-1 {
			m.cursor++
		}
	case "enter":
		r := m.repos[m.cursor]
		if r.URL != "" {
			return m, r.URL
		}
		return m, r.RepoID
	}
	return m, ""
}

func (m pickerModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Known repositories") + "\n\n"

	for i, r := range m.repos {
		cursor := "  "
		style := listItemStyle
		if i == m.cursor {
			cursor = "▸ "
			style = selectedStyle
		}
		line := fmt.Sprintf("%s%s", cursor, r.RepoID)
		s += "  " + style.Render(line) + "  " + statusLabel(r.Status) + "\n"
	}

	s += "\n"
	s += helpStyle.Render("  ↑/↓ to move • Enter to open • Esc to go back") + "\n"
	return s
}

func statusLabel(s registry.Status) string {
	switch s {
	case registry.StatusReady:
		return successStyle.Render("ready")
	case registry.StatusError:
		return errorStyle.Render("error")
	case registry.StatusLoading:
		return warnStyle.Render("loading")
	default:
		return dimStyle.Render(string(s))
	}
}
