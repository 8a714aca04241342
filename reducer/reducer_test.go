package reducer

import (
	"testing"

	"dstg/avm"
	"dstg/gui"
)

func snapshot(id gui.StateID, title string) *gui.State {
	return &gui.State{
		ID:       id,
		Activity: "Main",
		Widgets: []*gui.Widget{
			{ID: "root", ClassName: "FrameLayout", Visible: true},
			{ID: "title", ParentID: "root", ClassName: "TextView", ResourceID: "title", Text: title, Clickable: true, Visible: true},
			{ID: "list", ParentID: "root", ClassName: "ListView", ResourceID: "items", Scrollable: true, Visible: true},
			{ID: "row1", ParentID: "list", ClassName: "TextView", Text: "first", Clickable: true, Visible: true},
			{ID: "row2", ParentID: "list", ClassName: "TextView", Text: "second", Clickable: true, Visible: true},
		},
	}
}

func TestReduceParentsAndCardinality(t *testing.T) {
	r, err := New(DefaultMaxLevel, 16)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err := r.Reduce(snapshot("s1", "Inbox"), gui.Environment{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("Expected a map per widget. Got %v", len(out))
	}
	if out["row1"].ParentID != out["list"].ID {
		t.Errorf("The parent of a row should be the list")
	}
	if out["row1"].Cardinality != avm.Many || out["title"].Cardinality != avm.One {
		t.Errorf("Rows of a list should be MANY and the title ONE")
	}
	if out["row1"].ID != out["row2"].ID {
		t.Errorf("At the coarsest level list rows should be indistinguishable")
	}
}

func TestIncreasePrecisionSplits(t *testing.T) {
	r, _ := New(DefaultMaxLevel, 16)
	a, b := snapshot("s1", "Inbox"), snapshot("s2", "Outbox")
	env := gui.Environment{}

	ra, _ := r.Reduce(a, env)
	rb, _ := r.Reduce(b, env)
	if ra["title"].ID != rb["title"].ID {
		t.Fatalf("Titles should be equal at the coarsest level")
	}

	path := avm.PathOf(a, a.Widget("title"))
	for i := 0; i < LevelText; i++ {
		if !r.IncreasePrecision(path, "Main", false, a.Widget("title"), a) {
			t.Fatalf("Increase %v should succeed", i)
		}
	}
	ra, _ = r.Reduce(a, env)
	rb, _ = r.Reduce(b, env)
	if ra["title"].ID == rb["title"].ID {
		t.Errorf("Titles should differ once their text is part of the fingerprint")
	}
}

func TestIncreasePrecisionCeiling(t *testing.T) {
	r, _ := New(LevelContentDesc, 16)
	s := snapshot("s1", "Inbox")
	row := s.Widget("row1")
	path := avm.PathOf(s, row)

	if !r.IncreasePrecision(path, "Main", false, row, s) {
		t.Fatalf("First increase should succeed")
	}
	if r.IncreasePrecision(path, "Main", false, row, s) {
		t.Fatalf("Increase beyond the max level should fail without fallback")
	}
	if !r.IncreasePrecision(path, "Main", true, row, s) {
		t.Fatalf("Fallback should raise the parent path")
	}
	if r.Level(path.Parent) != LevelContentDesc {
		t.Errorf("Expected the list path to be raised. Got level %v", r.Level(path.Parent))
	}
}

func TestCheckpointRestore(t *testing.T) {
	r, _ := New(DefaultMaxLevel, 16)
	s := snapshot("s1", "Inbox")
	path := avm.PathOf(s, s.Widget("title"))

	r.Checkpoint()
	r.IncreasePrecision(path, "Main", false, nil, s)
	before, _ := r.Reduce(s, gui.Environment{})
	r.Restore()
	after, _ := r.Reduce(s, gui.Environment{})

	if r.Level(path) != LevelStructure {
		t.Errorf("Restore should reset the level. Got %v", r.Level(path))
	}
	if before["title"].ID == after["title"].ID {
		t.Errorf("Reduce after restore should not reuse the refined result")
	}
}

func TestReduceIsMemoized(t *testing.T) {
	r, _ := New(DefaultMaxLevel, 16)
	s := snapshot("s1", "Inbox")
	a, _ := r.Reduce(s, gui.Environment{})
	b, _ := r.Reduce(s, gui.Environment{})
	if a["title"] != b["title"] {
		t.Errorf("Expected the cached result to be returned")
	}
	if _, err := New(9, 16); err == nil {
		t.Errorf("Expected an error for an out of range max level")
	}
}
