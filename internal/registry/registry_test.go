package registry

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"https://github.com/Owner/Repo":       "github.com/owner/repo",
		"https://github.com/owner/repo.git":   "github.com/owner/repo",
		"https://github.com/owner/repo/":      "github.com/owner/repo",
		"http://GitHub.com/owner/repo.git/":   "github.com/owner/repo",
		"git@github.com:owner/repo.git":       "github.com/owner/repo",
		"ssh://git@github.com/owner/repo":     "github.com/owner/repo",
		"github.com/owner/repo":               "github.com/owner/repo",
		"  https://github.com/owner/repo  ":   "github.com/owner/repo",
		"https://github.com/owner/repo#main":  "github.com/owner/repo",
		"https://gitlab.com/group/sub/repo":   "gitlab.com/group/sub/repo",
		"https://git.example.com:8443/a/b":    "git.example.com:8443/a/b",
		"https://user@bitbucket.org/team/app": "bitbucket.org/team/app",
	}
	for in, want := range cases {
		got, err := NormalizeID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeIDInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "github.com", "https://github.com/", "not a url"} {
		_, err := NormalizeID(in)
		assert.ErrorIs(t, err, ErrInvalidIdentity, in)
	}
}

func TestNormalizeIDLocalPath(t *testing.T) {
	dir := t.TempDir()
	a, err := NormalizeID(dir)
	require.NoError(t, err)
	b, err := NormalizeID("file://" + dir + "/")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "file://"+filepath.ToSlash(dir), a)
}

func TestMutateCreatesAndUpdates(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)

	rec, err := r.Mutate("github.com/a/b", func(rec *Record, exists bool) error {
		assert.False(t, exists)
		rec.URL = "https://github.com/a/b"
		rec.Status = StatusLoading
		rec.Stage = StageQueued
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "github.com/a/b", rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	rec, err = r.Update("github.com/a/b", func(rec *Record) {
		rec.Progress.TotalFiles = 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Progress.TotalFiles)
	assert.Equal(t, StatusLoading, rec.Status)

	_, err = r.Update("github.com/missing/repo", func(*Record) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutateErrorLeavesRecordUntouched(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)
	_, err = r.Mutate("x/y/z", func(rec *Record, _ bool) error {
		rec.Status = StatusReady
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = r.Mutate("x/y/z", func(rec *Record, _ bool) error {
		rec.Status = StatusError
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, ok := r.Get("x/y/z")
	require.True(t, ok)
	assert.Equal(t, StatusReady, got.Status)

	_, err = r.Mutate("new/one/repo", func(*Record, bool) error { return boom })
	assert.ErrorIs(t, err, boom)
	_, ok = r.Get("new/one/repo")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)
	_, err = r.Mutate("a/b/c", func(rec *Record, _ bool) error {
		rec.Languages = map[string]int{"go": 2}
		return nil
	})
	require.NoError(t, err)

	got, _ := r.Get("a/b/c")
	got.Languages["go"] = 99
	got.Status = StatusError

	again, _ := r.Get("a/b/c")
	assert.Equal(t, 2, again.Languages["go"])
	assert.Equal(t, StatusNotLoaded, again.Status)
}

func TestConcurrentMutate(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)
	_, err = r.Mutate("a/b/c", func(*Record, bool) error { return nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Update("a/b/c", func(rec *Record) { rec.Progress.ProcessedFiles++ })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, _ := r.Get("a/b/c")
	assert.Equal(t, 50, got.Progress.ProcessedFiles)
}

func TestListAndDelete(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)
	for _, id := range []string{"h/b/b", "h/a/a"} {
		_, err := r.Mutate(id, func(*Record, bool) error { return nil })
		require.NoError(t, err)
	}
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "h/a/a", list[0].ID)

	require.NoError(t, r.Delete("h/a/a"))
	assert.ErrorIs(t, r.Delete("h/a/a"), ErrNotFound)
	assert.Len(t, r.List(), 1)
}

func TestBoltPersistenceAndRestartRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	bolt, err := OpenBolt(path)
	require.NoError(t, err)
	r, err := New(bolt, nil)
	require.NoError(t, err)

	_, err = r.Mutate("h/ready/repo", func(rec *Record, _ bool) error {
		rec.Status = StatusReady
		rec.Stage = StageReady
		rec.Generation = "g1"
		rec.Summary = "a summary"
		rec.SummaryGeneration = "g1"
		return nil
	})
	require.NoError(t, err)
	_, err = r.Mutate("h/busy/repo", func(rec *Record, _ bool) error {
		rec.Status = StatusLoading
		rec.Stage = StageProcessing
		rec.LockOwner = "run-1"
		rec.Generation = "g0"
		return nil
	})
	require.NoError(t, err)
	_, err = r.Mutate("h/gone/repo", func(rec *Record, _ bool) error {
		rec.Status = StatusReady
		rec.Stage = StageReady
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Delete("h/gone/repo"))
	require.NoError(t, r.Close())

	bolt, err = OpenBolt(path)
	require.NoError(t, err)
	r, err = New(bolt, nil)
	require.NoError(t, err)
	defer r.Close()

	ready, ok := r.Get("h/ready/repo")
	require.True(t, ok)
	assert.Equal(t, StatusReady, ready.Status)
	assert.Equal(t, "g1", ready.Generation)
	assert.Equal(t, "a summary", ready.Summary)

	busy, ok := r.Get("h/busy/repo")
	require.True(t, ok)
	assert.Equal(t, StatusError, busy.Status)
	assert.Equal(t, StageError, busy.Stage)
	assert.Equal(t, InterruptedMessage, busy.ErrorMessage)
	assert.Empty(t, busy.LockOwner)
	assert.Equal(t, "g0", busy.Generation)

	_, ok = r.Get("h/gone/repo")
	assert.False(t, ok)
}
