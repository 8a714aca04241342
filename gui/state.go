// Package gui holds the concrete GUI data produced by the device layer:
// snapshots, widgets and the interactions performed on them.
package gui

import (
	"dstg/tree"
)

type StateID string

type WidgetID string

// A widget of a concrete snapshot.
type Widget struct {
	ID       WidgetID `yaml:"id"`
	ParentID WidgetID `yaml:"parent,omitempty"`

	ClassName   string `yaml:"class"`
	ResourceID  string `yaml:"resourceId,omitempty"`
	ContentDesc string `yaml:"contentDesc,omitempty"`
	Text        string `yaml:"text,omitempty"`

	Clickable     bool `yaml:"clickable,omitempty"`
	LongClickable bool `yaml:"longClickable,omitempty"`
	Scrollable    bool `yaml:"scrollable,omitempty"`
	Checkable     bool `yaml:"checkable,omitempty"`
	Checked       bool `yaml:"checked,omitempty"`
	Enabled       bool `yaml:"enabled,omitempty"`
	Visible       bool `yaml:"visible,omitempty"`
	IsInputField  bool `yaml:"inputField,omitempty"`
	IsKeyboard    bool `yaml:"keyboard,omitempty"`
}

// Interactable reports whether the widget accepts any user action.
func (w *Widget) Interactable() bool {
	if !w.Visible || w.IsKeyboard {
		return false
	}
	return w.Clickable || w.LongClickable || w.Scrollable || w.Checkable || w.IsInputField
}

// A concrete GUI snapshot.
type State struct {
	ID       StateID   `yaml:"id"`
	Activity string    `yaml:"activity"`
	Widgets  []*Widget `yaml:"widgets"`

	IsHomeScreen                        bool `yaml:"homeScreen,omitempty"`
	IsAppHasStoppedDialogBox            bool `yaml:"appHasStopped,omitempty"`
	IsRequestRuntimePermissionDialogBox bool `yaml:"permissionDialog,omitempty"`
	IsOpeningKeyboard                   bool `yaml:"keyboard,omitempty"`
	IsOutOfApplication                  bool `yaml:"outOfApp,omitempty"`
	IsDialog                            bool `yaml:"dialog,omitempty"`
	IsOptionsMenu                       bool `yaml:"optionsMenu,omitempty"`

	index     map[WidgetID]*Widget
	hierarchy *tree.Tree[*Widget]
}

// Returns the widget with the provided id, or nil.
func (s *State) Widget(id WidgetID) *Widget {
	s.buildIndex()
	return s.index[id]
}

// Returns the interactable widgets in declaration order.
func (s *State) Interactables() []*Widget {
	out := []*Widget{}
	for _, w := range s.Widgets {
		if w.Interactable() {
			out = append(out, w)
		}
	}
	return out
}

// Returns the parent of w, or nil if w is a top level widget.
func (s *State) Parent(w *Widget) *Widget {
	if w == nil || w.ParentID == "" {
		return nil
	}
	return s.Widget(w.ParentID)
}

// Returns the direct children of w in declaration order.
func (s *State) Children(w *Widget) []*Widget {
	node := s.Hierarchy().Find(w)
	if node == nil {
		return nil
	}
	out := make([]*Widget, 0, len(node.Children()))
	for _, c := range node.Children() {
		out = append(out, c.Payload())
	}
	return out
}

// Returns the widget hierarchy of the snapshot.
//
// The root node has a nil payload; top level widgets are its children.
// Widgets whose parent is missing from the snapshot are attached to the root.
func (s *State) Hierarchy() *tree.Tree[*Widget] {
	if s.hierarchy != nil {
		return s.hierarchy
	}
	s.buildIndex()
	root := tree.New[*Widget](nil, func(a, b *Widget) bool { return a == b })
	nodes := map[WidgetID]*tree.Tree[*Widget]{}
	visiting := map[WidgetID]bool{}
	var attach func(w *Widget) *tree.Tree[*Widget]
	attach = func(w *Widget) *tree.Tree[*Widget] {
		if n, ok := nodes[w.ID]; ok {
			return n
		}
		visiting[w.ID] = true
		parent := root
		if p, ok := s.index[w.ParentID]; ok && !visiting[p.ID] {
			parent = attach(p)
		}
		n := parent.AddChild(w)
		nodes[w.ID] = n
		delete(visiting, w.ID)
		return n
	}
	for _, w := range s.Widgets {
		attach(w)
	}
	s.hierarchy = root
	return root
}

func (s *State) buildIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[WidgetID]*Widget, len(s.Widgets))
	for _, w := range s.Widgets {
		s.index[w.ID] = w
	}
}
