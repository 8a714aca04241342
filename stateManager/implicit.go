package stateManager

import (
	"strings"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"
	"dstg/tree"

	"go.uber.org/zap"
)

type treeNode = tree.Tree[*gui.Widget]

// Adds an implicit transition unless the label is already present.
//
// Returns the existing transition with the same label and destination if any.
// Returns nil for environment toggles and when an observed transition with the same label leads elsewhere.
func (m *Manager) addImplicit(src, dst *state.AbstractState, a action.AbstractAction, data, guard string, prevWindow *ewtg.Window) *state.AbstractTransition {
	if a.IsEnvironmentToggle() {
		return nil
	}
	for _, t := range src.Transitions() {
		if !t.HasLabel(a, data, guard, prevWindow) {
			continue
		}
		if t.Dest == dst {
			return t
		}
		if t.IsExplicit() {
			return nil
		}
	}
	src.DeclareAction(a)
	return state.NewTransition(src, dst, a, data, guard, prevWindow, true)
}

// Derives the implicit transitions implied by an observed transition.
//
// in is the latest interaction witnessing the transition and may be nil.
func (m *Manager) synthesize(t *state.AbstractTransition, in *gui.Interaction) {
	a := t.Action
	if a.IsEnvironmentToggle() || a.IsLaunchOrReset() {
		return
	}
	src, dst := t.Source, t.Dest
	if a.Type != action.PressBack && src != dst {
		m.inferBack(t)
	}
	switch a.Type {
	case action.Swipe:
		m.inferSwipeInverse(t, in)
	case action.RotateUI:
		if src != dst {
			m.addImplicit(dst, src, a, "", "", src.Window)
		}
	case action.Click, action.LongClick:
		m.inferItemActions(t)
	}
	if t.IsExplicit() && src.Window != dst.Window {
		m.propagate(t)
	}
}

// Pressing back in the destination returns to the source, unless back was already observed to lead to another window.
func (m *Manager) inferBack(t *state.AbstractTransition) {
	src, dst := t.Source, t.Dest
	if dst.IsSingleton() || dst.IsOutOfApplication || dst.IsVirtual() {
		return
	}
	observed := dst.TransitionsWhere(func(bt *state.AbstractTransition) bool {
		return bt.IsExplicit() && bt.Action.Type == action.PressBack && bt.PrevWindow == src.Window
	})
	for _, bt := range observed {
		if bt.Dest.Window != src.Window {
			return
		}
	}
	m.addImplicit(dst, src, action.New(action.PressBack, "", ""), "", "", src.Window)
}

// A swipe that changed the content of its target is undone by the opposite swipe.
func (m *Manager) inferSwipeInverse(t *state.AbstractTransition, in *gui.Interaction) {
	if in == nil || in.Target == nil {
		return
	}
	prev, res := m.snapshots[in.PrevState], m.snapshots[in.ResState]
	if prev == nil || res == nil {
		return
	}
	if contentOf(prev.state, in.Target.ID) == contentOf(res.state, in.Target.ID) {
		return
	}
	inverse, ok := t.Action.Inverse()
	if !ok {
		return
	}
	if inverse, ok = m.likeAction(inverse, t.Source, t.Dest); !ok {
		return
	}
	if !t.Dest.HasAction(inverse) {
		return
	}
	m.addImplicit(t.Dest, t.Source, inverse, "", "", t.Source.Window)
}

// The class names and texts of the widget's subtree.
func contentOf(s *gui.State, id gui.WidgetID) string {
	w := s.Widget(id)
	if w == nil {
		return ""
	}
	node := s.Hierarchy().Find(w)
	if node == nil {
		return ""
	}
	var sb strings.Builder
	node.Walk(func(n *treeNode) bool {
		sb.WriteString(n.Payload().ClassName)
		sb.WriteString(":")
		sb.WriteString(n.Payload().Text)
		sb.WriteString(";")
		return true
	})
	return sb.String()
}

// A click on an element of a list generalizes to the item action of every ancestor list.
func (m *Manager) inferItemActions(t *state.AbstractTransition) {
	itemType, ok := t.Action.ItemType()
	if !ok {
		return
	}
	target := m.registry[t.Action.Target]
	if target == nil {
		return
	}
	visited := map[avm.ID]bool{target.ID: true}
	for parent := target.ParentID; parent != "" && !visited[parent]; {
		visited[parent] = true
		ia := action.New(itemType, parent, "")
		if t.Source.HasAction(ia) {
			m.addImplicit(t.Source, t.Dest, ia, t.Data, t.Guard, t.PrevWindow)
		}
		p := m.registry[parent]
		if p == nil {
			break
		}
		parent = p.ParentID
	}
}

// Mirrors an observed transition between windows from every other state of the source window
// to the virtual state of the destination window.
func (m *Manager) propagate(t *state.AbstractTransition) {
	dv := m.ensureVirtual(t.Dest.Window)
	if dv == nil {
		return
	}
	for _, other := range m.store.ByWindow(t.Source.Window, true) {
		if other == t.Source || other == dv {
			continue
		}
		a, ok := m.likeAction(t.Action, t.Source, other)
		if !ok {
			continue
		}
		m.addImplicit(other, dv, a, t.Data, t.Guard, t.PrevWindow)
	}
}

// Compares an observed back navigation with the inferred one.
//
// The unmatched maps are only logged. They do not reject the observation.
func (m *Manager) verifyBackwardEquivalent(src, dst *state.AbstractState, prevWindow *ewtg.Window) {
	for _, inferred := range src.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.Type == action.PressBack && t.PrevWindow == prevWindow && t.Dest != dst
	}) {
		matched, unmatched := 0, 0
		for _, am := range inferred.Dest.AVMs() {
			if dst.AVMLike(am) != nil {
				matched++
			} else {
				unmatched++
			}
		}
		m.log.Debug("observed back navigation differs from the inferred one",
			zap.String("abstractState", src.ID()),
			zap.String("inferred", inferred.Dest.ID()),
			zap.String("observed", dst.ID()),
			zap.Int("matched", matched),
			zap.Int("unmatched", unmatched),
		)
	}
}
