// Package index runs repository load jobs: fetch, chunk, embed and store,
// one repository at a time, while tracking progress in the registry.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"repolens/internal/chunker"
	"repolens/internal/fetcher"
	"repolens/internal/registry"
	"repolens/internal/vectorindex"

	"github.com/google/uuid"
)

var (
	// ErrLockConflict matches every rejection caused by another run.
	ErrLockConflict = errors.New("another repository is being processed")
	// ErrNotLoaded is returned when unloading an unknown repository.
	ErrNotLoaded = errors.New("repository is not loaded")
	// ErrNoContent is recorded when a repository yields no chunks.
	ErrNoContent = errors.New("no indexable content found in repository")
)

// LockConflictError reports which run blocked the request.
type LockConflictError struct {
	RepoID string
	Holder string
}

func (e *LockConflictError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("%s: %s is busy", ErrLockConflict, e.RepoID)
	}
	return fmt.Sprintf("%s (run %s); try again later", ErrLockConflict, e.Holder)
}

func (e *LockConflictError) Is(target error) bool { return target == ErrLockConflict }

// Deps are the collaborators of an Indexer.
type Deps struct {
	Registry *registry.Registry
	Fetcher  fetcher.Fetcher
	Chunker  *chunker.Chunker
	Index    *vectorindex.Adapter
	// IgnoreRules are added to the default ignore rules and the
	// repository's own ignore file.
	IgnoreRules []string
	Workers     int
	Logger      *slog.Logger
}

// Indexer is the public API for loading and unloading repositories.
type Indexer struct {
	deps Deps
	log  *slog.Logger
	lock ProcessingLock
	wg   sync.WaitGroup
}

// New creates an Indexer.
func New(deps Deps) *Indexer {
	if deps.Workers <= 0 {
		deps.Workers = runtime.NumCPU()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{deps: deps, log: log}
}

// LoadResult describes the outcome of a Load request.
type LoadResult struct {
	Record registry.Record
	// Started is false when the repository was already ready.
	Started bool
}

// Load starts processing a repository in the background and returns once
// the job is queued. A ready repository is left alone unless force is set.
func (ix *Indexer) Load(ctx context.Context, rawURL string, force bool) (LoadResult, error) {
	id, err := registry.NormalizeID(rawURL)
	if err != nil {
		return LoadResult{}, err
	}
	if rec, ok := ix.deps.Registry.Get(id); ok && rec.Status == registry.StatusReady && !force {
		return LoadResult{Record: rec}, nil
	}

	runID := uuid.NewString()
	if !ix.lock.TryAcquire(runID) {
		return LoadResult{}, &LockConflictError{RepoID: id, Holder: ix.lock.Owner()}
	}

	rec, err := ix.claim(id, rawURL, runID, force)
	if err != nil {
		ix.lock.Release(runID)
		if errors.Is(err, errAlreadyReady) {
			rec, _ := ix.deps.Registry.Get(id)
			return LoadResult{Record: rec}, nil
		}
		return LoadResult{}, err
	}

	ix.log.Info("repository load queued", "repo", id, "run", runID, "force", force)
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer ix.lock.Release(runID)
		ix.run(context.WithoutCancel(ctx), id, rec.URL, runID)
	}()
	return LoadResult{Record: rec, Started: true}, nil
}

// errAlreadyReady aborts a claim when the repository became ready after
// the unlocked check in Load.
var errAlreadyReady = errors.New("repository already ready")

// claim marks the record as queued for runID. It fails when another
// operation owns the record, and with errAlreadyReady when a ready
// repository is claimed without force.
func (ix *Indexer) claim(id, rawURL, runID string, force bool) (registry.Record, error) {
	return ix.deps.Registry.Mutate(id, func(rec *registry.Record, exists bool) error {
		if rec.LockOwner != "" {
			return &LockConflictError{RepoID: id}
		}
		if exists && !force && rec.Status == registry.StatusReady {
			return errAlreadyReady
		}
		rec.URL = strings.TrimSpace(rawURL)
		rec.Status = registry.StatusLoading
		rec.Stage = registry.StageQueued
		rec.Message = "queued"
		rec.Progress = registry.Progress{}
		rec.ErrorMessage = ""
		rec.Summary = ""
		rec.SummaryGeneration = ""
		rec.LockOwner = runID
		return nil
	})
}

// Reconcile forgets generations that are missing from the vector store,
// as after a restart with an in-memory store. Ready records without
// vectors are removed so they report not_loaded and load again without
// force. It must run before any load starts.
func (ix *Indexer) Reconcile(ctx context.Context) error {
	for _, rec := range ix.deps.Registry.List() {
		if rec.Generation == "" {
			continue
		}
		n, err := ix.deps.Index.Count(ctx, rec.ID, rec.Generation)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		ix.log.Warn("stored generation missing", "repo", rec.ID, "generation", rec.Generation, "status", rec.Status)
		if rec.Status == registry.StatusReady {
			if err := ix.deps.Registry.Delete(rec.ID); err != nil && !errors.Is(err, registry.ErrNotFound) {
				return err
			}
			continue
		}
		if _, err := ix.deps.Registry.Update(rec.ID, func(r *registry.Record) { r.Generation = "" }); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the record for a repository, or a not_loaded record.
func (ix *Indexer) Status(rawURL string) (registry.Record, error) {
	id, err := registry.NormalizeID(rawURL)
	if err != nil {
		return registry.Record{}, err
	}
	if rec, ok := ix.deps.Registry.Get(id); ok {
		return rec, nil
	}
	return registry.NotLoaded(id, strings.TrimSpace(rawURL)), nil
}

// List returns every known repository record.
func (ix *Indexer) List() []registry.Record {
	return ix.deps.Registry.List()
}

// Unload removes a repository and all of its stored chunks. It fails with
// ErrLockConflict while the repository is being processed.
func (ix *Indexer) Unload(ctx context.Context, rawURL string) error {
	id, err := registry.NormalizeID(rawURL)
	if err != nil {
		return err
	}
	owner := "unload:" + uuid.NewString()
	_, err = ix.deps.Registry.Mutate(id, func(rec *registry.Record, exists bool) error {
		if !exists {
			return ErrNotLoaded
		}
		if rec.LockOwner != "" {
			return &LockConflictError{RepoID: id}
		}
		rec.LockOwner = owner
		return nil
	})
	if err != nil {
		return err
	}

	if err := ix.deps.Index.DeleteNamespace(ctx, id); err != nil {
		if _, uerr := ix.deps.Registry.Update(id, func(rec *registry.Record) { rec.LockOwner = "" }); uerr != nil {
			ix.log.Warn("release unload claim", "repo", id, "err", uerr)
		}
		return err
	}
	if err := ix.deps.Registry.Delete(id); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	ix.log.Info("repository unloaded", "repo", id)
	return nil
}

// CanRestart reports whether no load run is in progress.
func (ix *Indexer) CanRestart() bool {
	return !ix.lock.IsHeld()
}

// Wait blocks until every background run has finished.
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

func (ix *Indexer) run(ctx context.Context, id, rawURL, runID string) {
	log := ix.log.With("repo", id, "run", runID)
	defer func() {
		if r := recover(); r != nil {
			ix.fail(log, id, fmt.Errorf("internal error: %v", r))
		}
	}()

	ix.setStage(id, registry.StageInitializing, "initializing")
	if err := ix.deps.Index.CheckModel(ctx); err != nil {
		if !errors.Is(err, vectorindex.ErrModelChanged) {
			ix.fail(log, id, err)
			return
		}
		log.Warn("embedding model changed; older repositories should be reloaded", "err", err)
		if err := ix.deps.Index.ResetModel(ctx); err != nil {
			ix.fail(log, id, err)
			return
		}
	}

	ix.setStage(id, registry.StageCloning, "fetching repository")
	snap, err := ix.deps.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		ix.fail(log, id, err)
		return
	}
	defer func() {
		if err := snap.Close(); err != nil {
			log.Warn("remove checkout", "err", err)
		}
	}()

	ix.enterScanning(id, len(snap.Files))
	matcher, err := ix.matcher(snap.Root)
	if err != nil {
		log.Warn("read ignore file", "err", err)
	}

	res, err := ix.process(ctx, id, snap, matcher)
	if err != nil {
		ix.fail(log, id, err)
		return
	}
	if len(res.chunks) == 0 {
		ix.fail(log, id, ErrNoContent)
		return
	}

	ix.setStage(id, registry.StageStoring, fmt.Sprintf("storing %d chunks", len(res.chunks)))
	stored, err := ix.deps.Index.Upsert(ctx, id, runID, res.chunks, func(done, total int) {
		ix.update(id, func(rec *registry.Record) {
			rec.Message = fmt.Sprintf("stored %d of %d chunks", done, total)
		})
	})
	if err != nil {
		ix.fail(log, id, err)
		return
	}

	var previous string
	ix.update(id, func(rec *registry.Record) {
		previous = rec.Generation
		rec.Generation = runID
		rec.Status = registry.StatusReady
		rec.Stage = registry.StageReady
		rec.Message = "repository ready"
		rec.ErrorMessage = ""
		rec.Progress.ChunksCreated = stored
		rec.Languages = res.languages
		rec.LockOwner = ""
	})
	if previous != "" && previous != runID {
		if err := ix.deps.Index.DeleteGeneration(ctx, id, previous); err != nil {
			log.Warn("delete previous generation", "generation", previous, "err", err)
		}
	}
	if err := ix.deps.Index.PruneGenerations(ctx, id, runID); err != nil {
		log.Warn("prune generations", "err", err)
	}
	log.Info("repository ready", "files", res.processed, "skipped", res.skipped, "chunks", stored)
}

func (ix *Indexer) fail(log *slog.Logger, id string, err error) {
	log.Error("repository load failed", "err", err)
	ix.update(id, func(rec *registry.Record) {
		rec.Status = registry.StatusError
		rec.Stage = registry.StageError
		rec.Message = ""
		rec.ErrorMessage = err.Error()
		rec.LockOwner = ""
	})
}

// enterScanning records the file count of a fresh checkout.
func (ix *Indexer) enterScanning(id string, files int) {
	ix.update(id, func(rec *registry.Record) {
		rec.Stage = registry.StageScanning
		rec.Message = fmt.Sprintf("scanning %d files", files)
		rec.Progress = registry.Progress{TotalFiles: files}
	})
}

func (ix *Indexer) setStage(id string, stage registry.Stage, msg string) {
	ix.update(id, func(rec *registry.Record) {
		rec.Stage = stage
		rec.Message = msg
	})
}

func (ix *Indexer) update(id string, fn func(rec *registry.Record)) {
	if _, err := ix.deps.Registry.Update(id, fn); err != nil {
		ix.log.Warn("update repository record", "repo", id, "err", err)
	}
}
