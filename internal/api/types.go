package api

import (
	"time"

	"repolens/internal/rag"
	"repolens/internal/registry"
)

type LoadRequest struct {
	RepoURL     string `json:"repo_url"`
	ForceReload bool   `json:"force_reload"`
}

// MessageResponse is returned by mutating endpoints and by every error.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RepoID  string `json:"repo_id,omitempty"`
}

type StatusResponse struct {
	Loaded    bool              `json:"loaded"`
	RepoID    string            `json:"repo_id"`
	URL       string            `json:"url"`
	Status    registry.Status   `json:"status"`
	Stage     registry.Stage    `json:"stage,omitempty"`
	Message   string            `json:"message,omitempty"`
	Progress  registry.Progress `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Languages map[string]int    `json:"languages,omitempty"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

type QueryRequest struct {
	RepoURL string `json:"repo_url"`
	Query   string `json:"query"`
}

type QueryResponse struct {
	Answer  string       `json:"answer"`
	Sources []rag.Source `json:"sources"`
}

type SummaryResponse struct {
	RepoID  string `json:"repo_id"`
	Summary string `json:"summary"`
}

type CanRestartResponse struct {
	CanRestart bool `json:"can_restart"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func statusResponse(rec registry.Record) StatusResponse {
	resp := StatusResponse{
		Loaded:    rec.Status == registry.StatusReady,
		RepoID:    rec.ID,
		URL:       rec.URL,
		Status:    rec.Status,
		Stage:     rec.Stage,
		Message:   rec.Message,
		Progress:  rec.Progress,
		Error:     rec.ErrorMessage,
		Languages: rec.Languages,
	}
	if !rec.UpdatedAt.IsZero() {
		t := rec.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}
