// Package registry tracks every known repository, its processing stage and
// progress. Reads return copies; all writes go through Mutate so a change
// is atomic with respect to other callers.
package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for an identity.
var ErrNotFound = errors.New("repository not found")

// InterruptedMessage is the error recorded for runs cut short by a restart.
const InterruptedMessage = "processing interrupted by restart"

// Persister stores records across restarts.
type Persister interface {
	Save(rec Record) error
	Delete(id string) error
	LoadAll() ([]Record, error)
	Close() error
}

// Registry is the in-memory table of repository records.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	persist Persister
	now     func() time.Time
	log     *slog.Logger
}

// New creates a registry. With a Persister, stored records are loaded and
// any run that was in flight when the process stopped is marked as failed.
func New(p Persister, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		records: make(map[string]*Record),
		persist: p,
		now:     time.Now,
		log:     log,
	}
	if p == nil {
		return r, nil
	}

	stored, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range stored {
		rec := rec
		if !rec.Stage.Terminal() {
			log.Warn("marking interrupted run as failed", "repo", rec.ID, "stage", rec.Stage)
			rec.Status = StatusError
			rec.Stage = StageError
			rec.ErrorMessage = InterruptedMessage
			rec.Message = ""
			rec.UpdatedAt = r.now()
		}
		if rec.LockOwner != "" {
			rec.LockOwner = ""
			rec.UpdatedAt = r.now()
		}
		if err := p.Save(rec); err != nil {
			return nil, err
		}
		r.records[rec.ID] = &rec
	}
	return r, nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns copies of all records sorted by ID.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mutate applies fn to the record for id, creating it when absent. When fn
// returns an error nothing is stored. The resulting record is returned.
func (r *Registry) Mutate(id string, fn func(rec *Record, exists bool) error) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.records[id]
	var next Record
	if exists {
		next = prev.clone()
	} else {
		next = Record{ID: id, Status: StatusNotLoaded}
	}
	if err := fn(&next, exists); err != nil {
		if exists {
			return prev.clone(), err
		}
		return next, err
	}

	now := r.now()
	if !exists {
		next.CreatedAt = now
	}
	next.ID = id
	next.UpdatedAt = now
	r.records[id] = &next

	if r.persist != nil && (!exists || durableChange(*prev, next)) {
		if err := r.persist.Save(next); err != nil {
			r.log.Warn("persist repository record", "repo", id, "err", err)
		}
	}
	return next.clone(), nil
}

// Update applies fn to an existing record.
func (r *Registry) Update(id string, fn func(rec *Record)) (Record, error) {
	return r.Mutate(id, func(rec *Record, exists bool) error {
		if !exists {
			return ErrNotFound
		}
		fn(rec)
		return nil
	})
}

// Delete removes the record for id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	if r.persist != nil {
		if err := r.persist.Delete(id); err != nil {
			r.log.Warn("delete persisted repository record", "repo", id, "err", err)
		}
	}
	return nil
}

// Close releases the persister.
func (r *Registry) Close() error {
	if r.persist == nil {
		return nil
	}
	return r.persist.Close()
}
