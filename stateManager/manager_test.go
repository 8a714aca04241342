package stateManager

import (
	"errors"
	"testing"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/metrics"
	"dstg/reducer"
	"dstg/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Counts the escalation requests before delegating them to the reducer.
type spyAbstraction struct {
	*reducer.Reducer
	increases int
	restores  int
}

func (s *spyAbstraction) IncreasePrecision(path *avm.AttributePath, activity string, fallbackOK bool, w *gui.Widget, st *gui.State) bool {
	s.increases++
	return s.Reducer.IncreasePrecision(path, activity, fallbackOK, w, st)
}

func (s *spyAbstraction) Restore() {
	s.restores++
	s.Reducer.Restore()
}

type fixture struct {
	static  *ewtg.Graph
	main    *ewtg.Window
	detail  *ewtg.Window
	setting *ewtg.Window
	spy     *spyAbstraction
	metrics *metrics.Metrics
	mgr     *Manager
}

func newFixture(t *testing.T, maxLevel int, opts ...Option) *fixture {
	t.Helper()
	g := ewtg.NewGraph()
	f := &fixture{
		static:  g,
		main:    g.AddWindow("Main", ewtg.Activity, "Main", "Main"),
		detail:  g.AddWindow("Detail", ewtg.Activity, "Detail", "Detail"),
		setting: g.AddWindow("Settings", ewtg.Activity, "Settings", "Settings"),
	}
	r, err := reducer.New(maxLevel, 0)
	require.NoError(t, err)
	f.spy = &spyAbstraction{Reducer: r}
	f.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())

	opts = append(opts, CheckInvariants())
	f.mgr, err = New(g, r, f.spy, nil, f.metrics, opts...)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Init())
	return f
}

// A list screen whose single item shows text.
func listSnapshot(id, text string) *gui.State {
	return &gui.State{
		ID:       gui.StateID(id),
		Activity: "Main",
		Widgets: []*gui.Widget{
			{ID: "root", ClassName: "LinearLayout", ResourceID: "root", Visible: true},
			{ID: "list", ParentID: "root", ClassName: "ListView", ResourceID: "list", Scrollable: true, Visible: true},
			{ID: "item", ParentID: "list", ClassName: "TextView", ResourceID: "item", Text: text, Clickable: true, Visible: true},
		},
	}
}

func screenSnapshot(id, activity string) *gui.State {
	return &gui.State{
		ID:       gui.StateID(id),
		Activity: activity,
		Widgets: []*gui.Widget{
			{ID: "ok", ClassName: "Button", ResourceID: "ok", Clickable: true, Visible: true},
		},
	}
}

func homeSnapshot(id string) *gui.State {
	return &gui.State{ID: gui.StateID(id), Activity: "Launcher", IsHomeScreen: true}
}

func (f *fixture) record(t *testing.T, snaps ...*gui.State) {
	t.Helper()
	for _, s := range snaps {
		_, err := f.mgr.RecordSnapshot(s, gui.Environment{}, nil)
		require.NoError(t, err)
	}
}

func click(id int, prev, res *gui.State, target gui.WidgetID) *gui.Interaction {
	return &gui.Interaction{
		ID:        id,
		PrevState: prev.ID,
		ResState:  res.ID,
		Target:    prev.Widget(target),
		Action:    action.Click.String(),
	}
}

func TestRecordBeforeInit(t *testing.T) {
	r, err := reducer.New(reducer.DefaultMaxLevel, 0)
	require.NoError(t, err)
	mgr, err := New(ewtg.NewGraph(), r, r, nil, nil)
	require.NoError(t, err)

	_, err = mgr.RecordSnapshot(homeSnapshot("h"), gui.Environment{}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = mgr.RecordInteraction(&gui.Interaction{ID: 1}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestNewRequiresCollaborators(t *testing.T) {
	r, err := reducer.New(reducer.DefaultMaxLevel, 0)
	require.NoError(t, err)
	_, err = New(nil, r, r, nil, nil)
	assert.Error(t, err)
	_, err = New(ewtg.NewGraph(), nil, r, nil, nil)
	assert.Error(t, err)
}

func TestInitCreatesVirtualStates(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	for _, w := range []*ewtg.Window{f.main, f.detail, f.setting} {
		v := f.mgr.VirtualState(w)
		if assert.NotNil(t, v, "window %v", w) {
			assert.True(t, v.IsVirtual())
			assert.Empty(t, v.GUIStates())
		}
	}
	assert.Empty(t, f.mgr.States(false))
	// Init is idempotent
	require.NoError(t, f.mgr.Init())
	assert.Len(t, f.mgr.States(true), 3)
}

func TestHomeScreenIsSingleton(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	a, err := f.mgr.RecordSnapshot(homeSnapshot("h1"), gui.Environment{}, nil)
	require.NoError(t, err)
	b, err := f.mgr.RecordSnapshot(homeSnapshot("h2"), gui.Environment{Rotation: gui.Landscape}, nil)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.True(t, a.IsHomeScreen)
	assert.Equal(t, f.static.Launcher(), a.Window)
	assert.ElementsMatch(t, []gui.StateID{"h1", "h2"}, a.GUIStates())
	assert.True(t, a.HasAction(action.New(action.LaunchApp, "", "")))
}

var matchingTest = []struct {
	a, b *gui.State
	envA gui.Environment
	envB gui.Environment
	same bool
}{
	{listSnapshot("a", "A"), listSnapshot("b", "B"), gui.Environment{}, gui.Environment{}, true},
	{listSnapshot("a", "A"), listSnapshot("b", "A"), gui.Environment{}, gui.Environment{Rotation: gui.Landscape}, false},
	{listSnapshot("a", "A"), listSnapshot("b", "A"), gui.Environment{}, gui.Environment{Internet: gui.InternetDisabled}, false},
	{listSnapshot("a", "A"), screenSnapshot("b", "Main"), gui.Environment{}, gui.Environment{}, false},
}

func TestSnapshotMatching(t *testing.T) {
	for i, test := range matchingTest {
		f := newFixture(t, reducer.DefaultMaxLevel)
		a, err := f.mgr.RecordSnapshot(test.a, test.envA, nil)
		require.NoError(t, err)
		b, err := f.mgr.RecordSnapshot(test.b, test.envB, nil)
		require.NoError(t, err)
		if (a == b) != test.same {
			t.Errorf("Test %v: Expected same state to be %v. Got %v and %v", i, test.same, a, b)
		}
		if ok, desc := f.mgr.Check().Response(); !ok {
			t.Errorf("Test %v: %v", i, desc)
		}
	}
}

func TestRecordSnapshotTwice(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	s := listSnapshot("a", "A")
	first, err := f.mgr.RecordSnapshot(s, gui.Environment{}, nil)
	require.NoError(t, err)
	again, err := f.mgr.RecordSnapshot(s, gui.Environment{}, nil)
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, []gui.StateID{"a"}, f.mgr.Snapshots())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Snapshots))
}

func TestWindowCorrelation(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	dialog := f.static.AddWindow("Confirm", ewtg.Dialog, "ConfirmDialog", "Main")
	dialog.AddWidget("", "Button", "ok", false)

	main, err := f.mgr.RecordSnapshot(listSnapshot("a", "A"), gui.Environment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, f.main, main.Window)

	d := screenSnapshot("d", "Main")
	d.IsDialog = true
	ds, err := f.mgr.RecordSnapshot(d, gui.Environment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, dialog, ds.Window)

	unknown := &gui.State{
		ID:       "u",
		Activity: "Main",
		IsDialog: true,
		Widgets:  []*gui.Widget{{ID: "x", ClassName: "CheckBox", ResourceID: "agree", Checkable: true, Visible: true}},
	}
	us, err := f.mgr.RecordSnapshot(unknown, gui.Environment{}, nil)
	require.NoError(t, err)
	assert.True(t, us.Window.RuntimeCreated)
	assert.Equal(t, ewtg.Dialog, us.Window.Kind)

	hinted, err := f.mgr.RecordSnapshot(screenSnapshot("h", "Detail"), gui.Environment{}, f.setting)
	require.NoError(t, err)
	assert.Equal(t, f.setting, hinted.Window)
}

func TestRecordInteraction(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	main, detail := listSnapshot("m", "A"), screenSnapshot("d", "Detail")
	f.record(t, main, detail)

	cov := &state.Coverage{Statements: []string{"s1", "s2"}, Methods: []string{"onClick"}}
	tr, err := f.mgr.RecordInteraction(click(1, main, detail, "item"), cov)
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.True(t, tr.IsExplicit())
	assert.Equal(t, action.Click, tr.Action.Type)
	assert.Same(t, f.mgr.StateOf("m"), tr.Source)
	assert.Same(t, f.mgr.StateOf("d"), tr.Dest)
	assert.ElementsMatch(t, []string{"s1", "s2"}, tr.Statements())
	assert.Equal(t, 1, tr.Source.ActionCount(tr.Action))
	assert.Same(t, tr, f.mgr.TransitionOf(1))

	// Recording the same interaction again is a no-op
	again, err := f.mgr.RecordInteraction(click(1, main, detail, "item"), nil)
	require.NoError(t, err)
	assert.Same(t, tr, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Interactions))

	require.NoError(t, f.mgr.RecordTrace(7, 0, 1))
	require.NoError(t, f.mgr.RecordHandlers(1, map[string]bool{"onItemClick": true}))
	assert.Equal(t, []state.TraceStep{{TraceID: 7, Step: 0}}, tr.Traces())
	assert.True(t, tr.Handlers["onItemClick"])
	assert.ErrorIs(t, f.mgr.RecordTrace(7, 1, 42), ErrUnknownInteraction)
}

func TestRecordNilInteraction(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	_, err := f.mgr.RecordInteraction(nil, nil)
	assert.ErrorIs(t, err, ErrUnknownInteraction)
}

func TestRebuildKeepsActionCountOfUntouchedSource(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	detail, main := screenSnapshot("d", "Detail"), listSnapshot("m", "A")
	f.record(t, detail, main)

	tr, err := f.mgr.RecordInteraction(click(1, detail, main, "ok"), nil)
	require.NoError(t, err)
	src, a := tr.Source, tr.Action
	require.Equal(t, 1, src.ActionCount(a))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.mgr.RebuildWindow(f.main))
		assert.Same(t, src, f.mgr.StateOf("d"))
		assert.Equal(t, 1, src.ActionCount(a), "rebuild %v", i)
		assert.NotNil(t, f.mgr.TransitionOf(1))
	}
}

func TestLookupError(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	main := listSnapshot("m", "A")
	f.record(t, main)

	var lookupErrorTest = []struct {
		in   *gui.Interaction
		role Role
	}{
		{&gui.Interaction{ID: 1, PrevState: "missing", ResState: "m", Action: "PressBack"}, RolePrevState},
		{&gui.Interaction{ID: 2, PrevState: "m", ResState: "missing", Action: "PressBack"}, RoleResState},
	}
	for i, test := range lookupErrorTest {
		_, err := f.mgr.RecordInteraction(test.in, nil)
		if !errors.Is(err, ErrLookupFailure) {
			t.Errorf("Test %v: Expected a lookup failure. Got %v", i, err)
			continue
		}
		var le *LookupError
		if errors.As(err, &le) && (le.Role != test.role || le.StateID != "missing") {
			t.Errorf("Test %v: Expected role %v for missing. Got %v for %v", i, test.role, le.Role, le.StateID)
		}
	}
	assert.Nil(t, f.mgr.Interaction(1))
}

func TestImplicitBackAndItemActions(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	main, detail := listSnapshot("m", "A"), screenSnapshot("d", "Detail")
	f.record(t, main, detail)
	tr, err := f.mgr.RecordInteraction(click(1, main, detail, "item"), nil)
	require.NoError(t, err)

	src, dst := tr.Source, tr.Dest
	back := dst.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.PressBack
	})
	if assert.Len(t, back, 1) {
		assert.Same(t, src, back[0].Dest)
		assert.Equal(t, src.Window, back[0].PrevWindow)
	}

	list := f.mgr.registry[tr.Action.Target].ParentID
	item := src.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action == action.New(action.ItemClick, list, "")
	})
	if assert.Len(t, item, 1) {
		assert.Same(t, dst, item[0].Dest)
	}
}

func TestImplicitSynthesisIsIdempotent(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	main, detail := listSnapshot("m", "A"), screenSnapshot("d", "Detail")
	f.record(t, main, detail)
	in := click(1, main, detail, "item")
	tr, err := f.mgr.RecordInteraction(in, nil)
	require.NoError(t, err)

	count := func() int {
		n := 0
		for _, s := range f.mgr.States(true) {
			n += len(s.Transitions())
		}
		return n
	}
	before := count()
	f.mgr.synthesize(tr, in)
	f.mgr.synthesize(tr, in)
	assert.Equal(t, before, count())
}

func TestRotationInverse(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	portrait, landscape := listSnapshot("p", "A"), listSnapshot("l", "A")
	_, err := f.mgr.RecordSnapshot(portrait, gui.Environment{}, nil)
	require.NoError(t, err)
	_, err = f.mgr.RecordSnapshot(landscape, gui.Environment{Rotation: gui.Landscape}, nil)
	require.NoError(t, err)

	tr, err := f.mgr.RecordInteraction(&gui.Interaction{ID: 1, PrevState: "p", ResState: "l", Action: "RotateUI"}, nil)
	require.NoError(t, err)
	require.NotSame(t, tr.Source, tr.Dest)

	inverse := tr.Dest.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.RotateUI && t.Dest == tr.Source
	})
	assert.Len(t, inverse, 1)
}

func TestSwipeInverse(t *testing.T) {
	f := newFixture(t, reducer.LevelStructure)
	before, after := listSnapshot("b", "first"), listSnapshot("a", "second")
	f.record(t, before, after)
	tr, err := f.mgr.RecordInteraction(&gui.Interaction{
		ID:        1,
		PrevState: "b",
		ResState:  "a",
		Target:    before.Widget("list"),
		Action:    "Swipe",
		Data:      string(action.SwipeUp),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, string(action.SwipeUp), tr.Action.Extra)

	inverse := tr.Dest.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.Swipe && t.Action.Extra == string(action.SwipeDown)
	})
	if assert.Len(t, inverse, 1) {
		assert.Equal(t, tr.Action.Target, inverse[0].Action.Target)
	}
}

func TestEnvironmentTogglesAreNotGeneralized(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	on, off := listSnapshot("on", "A"), listSnapshot("off", "A")
	_, err := f.mgr.RecordSnapshot(on, gui.Environment{Internet: gui.InternetEnabled}, nil)
	require.NoError(t, err)
	_, err = f.mgr.RecordSnapshot(off, gui.Environment{Internet: gui.InternetDisabled}, nil)
	require.NoError(t, err)

	tr, err := f.mgr.RecordInteraction(&gui.Interaction{ID: 1, PrevState: "on", ResState: "off", Action: "DisableData"}, nil)
	require.NoError(t, err)
	for _, s := range f.mgr.States(true) {
		for _, o := range s.Transitions() {
			if o.IsImplicit && o.Action.IsEnvironmentToggle() {
				t.Errorf("Unexpected implicit environment toggle %v", o)
			}
		}
	}
	assert.Empty(t, tr.Dest.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.PressBack
	}))
}

func TestPropagationToVirtualStates(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	a := listSnapshot("a", "A")
	b := listSnapshot("b", "A")
	b.Widgets = append(b.Widgets, &gui.Widget{ID: "fab", ClassName: "Button", ResourceID: "fab", Clickable: true, Visible: true})
	detail := screenSnapshot("d", "Detail")
	f.record(t, a, b, detail)
	require.NotSame(t, f.mgr.StateOf("a"), f.mgr.StateOf("b"))

	_, err := f.mgr.RecordInteraction(click(1, a, detail, "item"), nil)
	require.NoError(t, err)

	other := f.mgr.StateOf("b")
	dv := f.mgr.VirtualState(f.detail)
	propagated := other.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.Click && t.Dest == dv
	})
	assert.Len(t, propagated, 1)
}

func TestStaticEdges(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	settings := f.main.AddWidget("", "Button", "settings", false)
	f.static.AddEdge(f.main, f.setting, f.main.AddInput("", action.Click, settings))

	s := listSnapshot("a", "A")
	s.Widgets = append(s.Widgets, &gui.Widget{ID: "settings", ClassName: "Button", ResourceID: "settings", Clickable: true, Visible: true})
	as, err := f.mgr.RecordSnapshot(s, gui.Environment{}, nil)
	require.NoError(t, err)

	wired := as.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Dest == f.mgr.VirtualState(f.setting)
	})
	if assert.Len(t, wired, 1) {
		assert.Equal(t, action.Click, wired[0].Action.Type)
		assert.True(t, as.HasAVM(wired[0].Action.Target))
	}
}

func TestLaunchAndReset(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	home, main, detail := homeSnapshot("h"), listSnapshot("m", "A"), screenSnapshot("d", "Detail")
	f.record(t, home, main, detail)

	_, err := f.mgr.RecordInteraction(&gui.Interaction{ID: 1, PrevState: "h", ResState: "m", Action: "LaunchApp"}, nil)
	require.NoError(t, err)
	launch := f.mgr.StateOf("m")
	assert.Same(t, launch, f.mgr.LaunchState())
	assert.Same(t, launch, f.mgr.ResetState())

	reached := f.mgr.StateOf("d").TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.LaunchApp
	})
	if assert.Len(t, reached, 1) {
		assert.Same(t, launch, reached[0].Dest)
	}
	for _, s := range f.mgr.States(true) {
		reset := s.TransitionsWhere(func(t *state.AbstractTransition) bool {
			return t.Action.Type == action.ResetApp
		})
		if assert.Len(t, reset, 1, "state %v", s) {
			assert.Same(t, launch, reset[0].Dest)
		}
	}
}

func TestGraphMetrics(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	main, detail := listSnapshot("m", "A"), screenSnapshot("d", "Detail")
	f.record(t, main, detail)
	_, err := f.mgr.RecordInteraction(click(1, main, detail, "item"), nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.StatesTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.VirtualStates))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("explicit")))
	assert.Positive(t, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("implicit")))
}

func TestAVMFrequency(t *testing.T) {
	f := newFixture(t, reducer.DefaultMaxLevel)
	f.record(t, listSnapshot("a", "A"), listSnapshot("b", "A"))
	freq := f.mgr.AVMFrequency("Main")
	require.Len(t, freq, 2)
	for id, n := range freq {
		assert.Equal(t, 2, n, "avm %v", id)
	}
	assert.Empty(t, f.mgr.AVMFrequency("Detail"))
}
