package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dstg/stateManager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const model = `
windows:
  - {id: Main, kind: activity, class: Main}
  - {id: Detail, kind: activity, class: Detail}
`

const recording = `
snapshots:
  - id: main
    activity: Main
    widgets:
      - {id: open, class: Button, resourceId: open, clickable: true, visible: true}
  - id: detail
    activity: Detail
    widgets:
      - {id: ok, class: Button, resourceId: ok, clickable: true, visible: true}
interactions:
  - {id: 1, prev: main, res: detail, target: open, action: Click}
`

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	m := filepath.Join(dir, "model.yaml")
	r := filepath.Join(dir, "recording.yaml")
	require.NoError(t, os.WriteFile(m, []byte(model), 0o644))
	require.NoError(t, os.WriteFile(r, []byte(recording), 0o644))
	return m, r
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dstg dev\n", out.String())
}

func TestBuild(t *testing.T) {
	m, r := writeInputs(t)
	out := t.TempDir()
	dot := filepath.Join(out, "graph.dot")
	history := filepath.Join(out, "history.yaml")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"build",
		"--model", m,
		"--recording", r,
		"--out", out,
		"--dot", dot,
		"--export-history", history,
		"--log-level", "error",
		"--check",
	})
	require.NoError(t, cmd.Execute())

	list, err := os.ReadFile(filepath.Join(out, stateManager.ReportFile))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(list), "\n"))

	graph, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(graph), "digraph DSTG"))

	f, err := os.Open(history)
	require.NoError(t, err)
	defer f.Close()
	h, err := stateManager.ReadHistory(f)
	require.NoError(t, err)
	assert.Len(t, h.States, 2)
}

func TestBuildRequiresInputs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "--model", "model.yaml"})
	assert.Error(t, cmd.Execute())
}
