package replay

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"dstg"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/logging"
	"dstg/state"
	"dstg/stateManager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordingYAML = `
snapshots:
  - id: home
    activity: Launcher
    homeScreen: true
  - id: main
    activity: Main
    widgets:
      - {id: list, class: ListView, resourceId: list, scrollable: true, visible: true}
      - {id: item, parent: list, class: TextView, resourceId: item, text: First, clickable: true, visible: true}
  - id: detail
    activity: Detail
    window: Detail
    widgets:
      - {id: ok, class: Button, resourceId: ok, clickable: true, visible: true}
  - id: unused
    activity: Detail
    rotation: landscape
    widgets:
      - {id: ok, class: Button, resourceId: ok, clickable: true, visible: true}
interactions:
  - {id: 1, prev: home, res: main, action: LaunchApp}
  - id: 2
    prev: main
    res: detail
    target: item
    action: Click
    statements: [Detail.onCreate]
    handlers: {onItemClick: true}
    traces: [{trace: 1, step: 0}]
`

const modelYAML = `
windows:
  - {id: Main, kind: activity, class: Main}
  - {id: Detail, kind: activity, class: Detail}
`

func load(t *testing.T) *Recording {
	t.Helper()
	rec, err := Load(strings.NewReader(recordingYAML))
	require.NoError(t, err)
	return rec
}

func TestLoad(t *testing.T) {
	rec := load(t)
	require.Len(t, rec.Snapshots, 4)
	require.Len(t, rec.Interactions, 2)

	main := rec.Snapshots[1]
	assert.Equal(t, gui.StateID("main"), main.ID)
	require.NotNil(t, main.Widget("item"))
	assert.Equal(t, gui.WidgetID("list"), main.Widget("item").ParentID)
	assert.Equal(t, "landscape", rec.Snapshots[3].Rotation)
	assert.True(t, rec.Snapshots[0].IsHomeScreen)
	assert.Equal(t, []string{"Detail.onCreate"}, rec.Interactions[1].Statements)
	assert.Nil(t, rec.Interactions[0].coverage())
}

var loadErrorTest = []string{
	"snapshots:\n  - activity: Main\n",
	"snapshots:\n  - id: a\n  - id: a\n",
	"snapshots: [",
}

func TestLoadRejectsInvalidRecordings(t *testing.T) {
	for i, test := range loadErrorTest {
		if _, err := Load(strings.NewReader(test)); err == nil {
			t.Errorf("Test %v: Expected an error for %q", i, test)
		}
	}
}

func TestReplayerOrder(t *testing.T) {
	r := NewReplayer(load(t))
	require.Equal(t, 6, r.Remaining())

	var got []string
	for {
		step, err := r.Next()
		if errors.Is(err, ErrRunEnded) {
			break
		}
		require.NoError(t, err)
		if step.Snapshot != nil {
			got = append(got, string(step.Snapshot.ID))
		} else {
			got = append(got, fmt.Sprintf("#%d", step.Interaction.ID))
		}
	}
	assert.Equal(t, []string{"home", "main", "#1", "detail", "#2", "unused"}, got)

	_, err := r.Next()
	assert.ErrorIs(t, err, ErrRunEnded)
	r.Reset()
	assert.Equal(t, 6, r.Remaining())
}

func newSession(t *testing.T) *dstg.Session {
	t.Helper()
	static, err := ewtg.Load(strings.NewReader(modelYAML))
	require.NoError(t, err)
	s, err := dstg.NewSession(static, dstg.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	return s
}

func TestReplay(t *testing.T) {
	s := newSession(t)
	require.NoError(t, Replay(s, load(t)))

	err := s.View(func(m *stateManager.Manager) error {
		assert.Len(t, m.Snapshots(), 4)
		detail := m.StateOf("detail")
		require.NotNil(t, detail)
		assert.Equal(t, "Detail", detail.Window.ID)
		assert.NotSame(t, detail, m.StateOf("unused"))
		assert.Equal(t, gui.Landscape, m.StateOf("unused").Rotation)

		tr := m.TransitionOf(2)
		require.NotNil(t, tr)
		assert.Equal(t, []string{"Detail.onCreate"}, tr.Statements())
		assert.True(t, tr.Handlers["onItemClick"])
		assert.Equal(t, []state.TraceStep{{TraceID: 1, Step: 0}}, tr.Traces())
		assert.Same(t, m.StateOf("main"), m.LaunchState())
		return nil
	})
	require.NoError(t, err)
	ok, desc := s.Check().Response()
	assert.True(t, ok, desc)
}

func TestReplayErrors(t *testing.T) {
	var replayErrorTest = []struct {
		mutate func(rec *Recording)
		is     error
	}{
		{func(rec *Recording) { rec.Interactions[1].Target = "missing" }, nil},
		{func(rec *Recording) { rec.Interactions[0].Res = "missing" }, stateManager.ErrLookupFailure},
		{func(rec *Recording) { rec.Snapshots[2].Window = "Missing" }, ewtg.ErrUnknownWindow},
		{func(rec *Recording) { rec.Snapshots[3].Rotation = "sideways" }, nil},
	}
	for i, test := range replayErrorTest {
		rec := load(t)
		test.mutate(rec)
		err := Replay(newSession(t), rec)
		if err == nil {
			t.Errorf("Test %v: Expected an error", i)
			continue
		}
		if test.is != nil && !errors.Is(err, test.is) {
			t.Errorf("Test %v: Expected %v. Got %v", i, test.is, err)
		}
	}
}

func TestReplayLoadsHistory(t *testing.T) {
	first := newSession(t)
	require.NoError(t, Replay(first, load(t)))

	rec := load(t)
	rec.History = first.ExportHistory()
	rec.Snapshots, rec.Interactions = nil, nil

	var buf strings.Builder
	require.NoError(t, Write(&buf, rec))
	again, err := Load(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.NotNil(t, again.History)

	second := newSession(t)
	require.NoError(t, Replay(second, again))
	err = second.View(func(m *stateManager.Manager) error {
		assert.Len(t, m.States(false), len(again.History.States))
		for _, s := range m.States(false) {
			assert.True(t, s.LoadedFromHistory)
		}
		return nil
	})
	require.NoError(t, err)
}
