// Package tui is a terminal client for a repolens server.
package tui

import (
	"context"
	"time"

	"repolens/internal/api"

	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewPicker
	ViewLoading
	ViewChat
)

// requestTimeout bounds calls other than questions and summaries.
const requestTimeout = 30 * time.Second

// Backend is the subset of api.Client the TUI uses.
type Backend interface {
	List(ctx context.Context) ([]api.StatusResponse, error)
	Load(ctx context.Context, repoURL string, force bool) (api.MessageResponse, bool, error)
	Status(ctx context.Context, repoURL string) (*api.StatusResponse, error)
	Query(ctx context.Context, repoURL, question string) (*api.QueryResponse, error)
	Summary(ctx context.Context, repoURL string) (string, error)
}

var _ Backend = (*api.Client)(nil)

// Config holds configuration passed from the CLI layer.
type Config struct {
	Backend Backend
	// RepoURL preselects a repository.
	RepoURL string
	// ServerLabel is shown in the status bar.
	ServerLabel string
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome welcomeModel
	picker  pickerModel
	loading loadingModel
	chat    chatModel
	err     error
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	return Model{
		state:   ViewWelcome,
		config:  cfg,
		welcome: newWelcomeModel(cfg.RepoURL),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.welcome.Init(), listRepositories(m.config.Backend))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewChat {
			var c tea.Cmd
			m.chat, c = m.chat.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case listMsg:
		m.picker = m.picker.withRepos(msg.repos)
		m.welcome.known = len(msg.repos)
		return m, nil

	case loadStartedMsg:
		if msg.err != nil {
			m.state = ViewWelcome
			m.welcome.err = msg.err
			return m, nil
		}
		if !msg.started {
			return m, m.transitionToChat(msg.repoURL)
		}
		m.state = ViewLoading
		m.loading = newLoadingModel(msg.repoURL)
		return m, tea.Batch(m.loading.spinner.Tick, pollStatus(m.config.Backend, msg.repoURL, 0))
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		var submit *submission
		m.welcome, cmd, submit = m.welcome.Update(msg)
		if submit != nil {
			return m, startLoad(m.config.Backend, submit.repoURL, submit.force)
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyTab && len(m.picker.repos) > 0 {
			m.state = ViewPicker
			return m, nil
		}
		return m, cmd

	case ViewPicker:
		var chosen string
		m.picker, chosen = m.picker.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && (keyMsg.Type == tea.KeyEsc || keyMsg.Type == tea.KeyTab) {
			m.state = ViewWelcome
			return m, nil
		}
		if chosen != "" {
			return m, startLoad(m.config.Backend, chosen, false)
		}

	case ViewLoading:
		m.loading, cmd = m.loading.Update(msg, m.config.Backend)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.loading.done {
			if m.loading.failed() {
				m.state = ViewWelcome
				return m, nil
			}
			return m, m.transitionToChat(m.loading.repoURL)
		}

	case ViewChat:
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) transitionToChat(repoURL string) tea.Cmd {
	m.chat = newChatModel(m.config.Backend, repoURL, m.config.ServerLabel)
	m.chat.resize(m.width, m.height)
	m.state = ViewChat
	return m.chat.input.Focus()
}

func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}

	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.width, m.height)
	case ViewPicker:
		return m.picker.View(m.width, m.height)
	case ViewLoading:
		return m.loading.View(m.width, m.height)
	case ViewChat:
		return m.chat.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program.
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// listMsg carries the repositories known to the server.
type listMsg struct {
	repos []api.StatusResponse
}

func listRepositories(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		repos, err := b.List(ctx)
		if err != nil {
			return listMsg{}
		}
		return listMsg{repos: repos}
	}
}

// loadStartedMsg is sent when the server accepted or rejected a load.
type loadStartedMsg struct {
	repoURL string
	started bool
	err     error
}

func startLoad(b Backend, repoURL string, force bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, started, err := b.Load(ctx, repoURL, force)
		return loadStartedMsg{repoURL: repoURL, started: started, err: err}
	}
}
