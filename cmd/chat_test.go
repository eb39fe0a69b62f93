package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPLAnswersUntilExit(t *testing.T) {
	flagRaw = true
	t.Cleanup(func() { flagRaw = false })
	a, repo := newTestApp(t)
	_, err := a.Indexer.Load(context.Background(), repo, false)
	require.NoError(t, err)
	a.Indexer.Wait()

	var out, errOut bytes.Buffer
	r := &repl{repoURL: repo, engine: a.Engine, summarizer: a.Summarizer, out: &out, errOut: &errOut}
	in := strings.NewReader("where does it start?\n\n/help\n/exit\nnever asked\n")
	require.NoError(t, r.run(context.Background(), in))

	assert.Contains(t, out.String(), "entry point is main")
	assert.Contains(t, out.String(), "/summary")
	assert.Empty(t, errOut.String())
}

func TestREPLReportsNotReady(t *testing.T) {
	a, repo := newTestApp(t)
	var out, errOut bytes.Buffer
	r := &repl{repoURL: repo, engine: a.Engine, summarizer: a.Summarizer, out: &out, errOut: &errOut}
	require.NoError(t, r.run(context.Background(), strings.NewReader("hello?\n")))
	assert.Contains(t, errOut.String(), "is not loaded")
}
