package gui

import (
	"testing"
)

func TestStateHierarchy(t *testing.T) {
	s := &State{
		ID: "s1",
		Widgets: []*Widget{
			{ID: "c1", ParentID: "list", ClassName: "TextView"},
			{ID: "list", ParentID: "root", ClassName: "RecyclerView", Scrollable: true, Visible: true},
			{ID: "root", ClassName: "FrameLayout"},
			{ID: "c2", ParentID: "list", ClassName: "TextView"},
			{ID: "orphan", ParentID: "missing", ClassName: "Button"},
		},
	}
	if s.Hierarchy().Len() != 6 {
		t.Fatalf("Expected 5 widgets and a root. Got %v nodes", s.Hierarchy().Len())
	}
	children := s.Children(s.Widget("list"))
	if len(children) != 2 || children[0].ID != "c1" || children[1].ID != "c2" {
		t.Errorf("Unexpected children of list: %v", children)
	}
	if p := s.Parent(s.Widget("c1")); p == nil || p.ID != "list" {
		t.Errorf("Unexpected parent of c1: %v", p)
	}
	if p := s.Parent(s.Widget("orphan")); p != nil {
		t.Errorf("Orphan should not have a parent. Got %v", p)
	}
	if got := len(s.Interactables()); got != 1 {
		t.Errorf("Expected only the visible scrollable list to be interactable. Got %v", got)
	}
}

var hierarchyOrderTest = [][]*Widget{
	{
		{ID: "root", ClassName: "FrameLayout"},
		{ID: "list", ParentID: "root", ClassName: "ListView"},
		{ID: "a", ParentID: "list", ClassName: "TextView"},
		{ID: "b", ParentID: "list", ClassName: "TextView"},
	},
	{
		{ID: "b", ParentID: "list", ClassName: "TextView"},
		{ID: "list", ParentID: "root", ClassName: "ListView"},
		{ID: "a", ParentID: "list", ClassName: "TextView"},
		{ID: "root", ClassName: "FrameLayout"},
	},
}

func TestHierarchyIgnoresDeclarationOrder(t *testing.T) {
	for i, widgets := range hierarchyOrderTest {
		s := &State{ID: "s", Widgets: widgets}
		if got := len(s.Hierarchy().Children()); got != 1 {
			t.Errorf("Test %v: Expected a single top level widget. Got %v", i, got)
		}
		if got := s.Children(s.Widget("root")); len(got) != 1 || got[0].ID != "list" {
			t.Errorf("Test %v: Unexpected children of root: %v", i, got)
		}
		if got := s.Children(s.Widget("list")); len(got) != 2 {
			t.Errorf("Test %v: Expected both rows under list. Got %v", i, got)
		}
		for _, id := range []WidgetID{"a", "b"} {
			if p := s.Parent(s.Widget(id)); p == nil || p.ID != "list" {
				t.Errorf("Test %v: Unexpected parent of %v: %v", i, id, p)
			}
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	for i, test := range parseTest {
		r, err := ParseRotation(test.rotation)
		if (err != nil) != test.err {
			t.Errorf("Test %v: unexpected error state: %v", i, err)
			continue
		}
		if err == nil && r != test.expected {
			t.Errorf("Test %v: Got %v. Expected %v", i, r, test.expected)
		}
	}
	if Portrait.Rotate() != Landscape || Landscape.Rotate() != Portrait {
		t.Errorf("Rotate should toggle the rotation")
	}
}

var parseTest = []struct {
	rotation string
	expected Rotation
	err      bool
}{
	{"", Portrait, false},
	{"landscape", Landscape, false},
	{"PORTRAIT", Portrait, false},
	{"sideways", Portrait, true},
}
