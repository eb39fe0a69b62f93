package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"repolens/internal/api"
	"repolens/internal/registry"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	pollInterval = 500 * time.Millisecond
	barWidth     = 30
)

type loadingModel struct {
	repoURL string
	spinner spinner.Model
	status  *api.StatusResponse
	done    bool
	err     error
}

func newLoadingModel(repoURL string) loadingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return loadingModel{repoURL: repoURL, spinner: sp}
}

// statusMsg is sent after each status poll.
type statusMsg struct {
	status *api.StatusResponse
	err    error
}

func pollStatus(b Backend, repoURL string, delay time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := b.Status(ctx, repoURL)
		return statusMsg{status: st, err: err}
	}
}

func (m loadingModel) failed() bool {
	return m.err != nil || (m.status != nil && m.status.Status == registry.StatusError)
}

func (m loadingModel) Update(msg tea.Msg, b Backend) (loadingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, nil
		}
		m.status = msg.status
		switch msg.status.Status {
		case registry.StatusReady, registry.StatusError:
			m.done = true
			return m, nil
		}
		return m, pollStatus(b, m.repoURL, pollInterval)
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loadingModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Loading "+m.repoURL) + "\n\n"

	if m.done {
		switch {
		case m.err != nil:
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to go back, or ctrl+c to quit.") + "\n"
		case m.status.Status == registry.StatusError:
			s += errorStyle.Render("  ✗ "+m.status.Error) + "\n\n"
			s += dimStyle.Render("  Press Enter to go back, or ctrl+c to quit.") + "\n"
		default:
			p := m.status.Progress
			s += successStyle.Render("  ✓ Repository ready!") + "\n\n"
			s += fmt.Sprintf("  Files: %d total, %d processed, %d skipped\n", p.TotalFiles, p.ProcessedFiles, p.SkippedFiles)
			s += fmt.Sprintf("  Chunks: %d\n", p.ChunksCreated)
			s += "\n"
			s += dimStyle.Render("  Press Enter to start chatting") + "\n"
		}
		return s
	}

	stage, message := "queued", ""
	if m.status != nil {
		stage, message = string(m.status.Stage), m.status.Message
	}
	s += fmt.Sprintf("  %s %s", m.spinner.View(), stage)
	if message != "" {
		s += dimStyle.Render(" • " + message)
	}
	s += "\n"
	if m.status != nil && m.status.Progress.TotalFiles > 0 {
		p := m.status.Progress
		done := p.ProcessedFiles + p.SkippedFiles
		s += "  " + progressBar(done, p.TotalFiles) + fmt.Sprintf(" %d / %d files\n", done, p.TotalFiles)
	}
	s += "\n"
	s += dimStyle.Render("  This may take a while for large repositories...") + "\n"
	return s
}

func progressBar(done, total int) string {
	if total <= 0 {
		return ""
	}
	filled := min(barWidth, done*barWidth/total)
	return barFilledStyle.Render(strings.Repeat("█", filled)) + barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
}
