package registry

import "time"

// Status is the coarse repository state shown to callers.
type Status string

const (
	StatusNotLoaded Status = "not_loaded"
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// Stage is the fine-grained position of a load run.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageInitializing Stage = "initializing"
	StageCloning      Stage = "cloning"
	StageScanning     Stage = "scanning"
	StageProcessing   Stage = "processing"
	StageStoring      Stage = "storing"
	StageReady        Stage = "ready"
	StageError        Stage = "error"
)

// Terminal reports whether no run is active in this stage.
func (s Stage) Terminal() bool {
	return s == StageReady || s == StageError || s == ""
}

// Progress counts work done by the current run. TotalFiles equals
// ProcessedFiles plus SkippedFiles once processing completes.
type Progress struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	SkippedFiles   int `json:"skipped_files"`
	ChunksCreated  int `json:"chunks_created"`
}

// Record is the registry entry of one repository.
type Record struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Status       Status    `json:"status"`
	Stage        Stage     `json:"stage"`
	Message      string    `json:"message,omitempty"`
	Progress     Progress  `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// LockOwner is the run id holding the processing lock for this
	// repository, or an unload marker while it is being removed.
	LockOwner string `json:"lock_owner,omitempty"`
	// Generation is the run id whose chunks answer queries.
	Generation        string         `json:"generation,omitempty"`
	Summary           string         `json:"summary,omitempty"`
	SummaryGeneration string         `json:"summary_generation,omitempty"`
	Languages         map[string]int `json:"languages,omitempty"`
}

// NotLoaded returns the record reported for an unknown repository.
func NotLoaded(id, url string) Record {
	return Record{ID: id, URL: url, Status: StatusNotLoaded}
}

func (r Record) clone() Record {
	if r.Languages != nil {
		langs := make(map[string]int, len(r.Languages))
		for k, v := range r.Languages {
			langs[k] = v
		}
		r.Languages = langs
	}
	return r
}

// durableChange reports whether b differs from a in a field worth
// persisting. Progress and message updates are not persisted.
func durableChange(a, b Record) bool {
	return a.Status != b.Status ||
		a.Stage != b.Stage ||
		a.LockOwner != b.LockOwner ||
		a.Generation != b.Generation ||
		a.Summary != b.Summary ||
		a.ErrorMessage != b.ErrorMessage ||
		a.URL != b.URL
}
