package stateManager

import (
	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/state"
)

var windowActions = []action.Type{
	action.PressBack,
	action.PressMenu,
	action.RotateUI,
	action.MinimizeMaximize,
	action.EnableData,
	action.DisableData,
}

var swipeDirections = []action.SwipeDirection{
	action.SwipeUp,
	action.SwipeDown,
	action.SwipeLeft,
	action.SwipeRight,
}

// Populates the action set of a new state and wires the transitions implied by
// the static model and by the virtual state of its window.
//
// snap is nil for states restored from history.
func (m *Manager) initState(s *state.AbstractState, snap *snapshot) {
	m.declareActions(s)
	m.declareInputActions(s)
	if !s.IsVirtual() {
		if v := m.store.Virtual(s.Window); v != nil {
			m.inheritFromVirtual(s, v, snap)
		}
	}
	m.wireStaticEdges(s)
	m.refreshLaunchReset(s)
}

// Declares the actions offered by the maps of the state.
func (m *Manager) declareActions(s *state.AbstractState) {
	if s.IsHomeScreen {
		s.DeclareAction(action.New(action.LaunchApp, "", ""))
		return
	}
	for _, t := range windowActions {
		s.DeclareAction(action.New(t, "", ""))
	}
	for _, am := range s.AVMs() {
		if am.IsClickable() {
			s.DeclareAction(action.New(action.Click, am.ID, ""))
		}
		if am.IsLongClickable() {
			s.DeclareAction(action.New(action.LongClick, am.ID, ""))
		}
		if am.IsCheckable() {
			s.DeclareAction(action.New(action.Check, am.ID, ""))
		}
		if am.IsInputField() {
			s.DeclareAction(action.New(action.TextInsert, am.ID, ""))
		}
		if am.IsScrollable() {
			for _, d := range swipeDirections {
				s.DeclareAction(action.New(action.Swipe, am.ID, string(d)))
			}
			s.DeclareAction(action.New(action.ItemClick, am.ID, ""))
			s.DeclareAction(action.New(action.ItemLongClick, am.ID, ""))
		}
	}
}

// Declares the actions of the static inputs of the state's window.
func (m *Manager) declareInputActions(s *state.AbstractState) {
	for _, in := range s.Window.Inputs {
		for _, a := range m.inputActions(s, in) {
			s.DeclareAction(a)
		}
	}
}

// Returns the actions that trigger the static input in the state.
//
// A virtual state without a map for the input's widget gets a placeholder so it still exposes the input.
func (m *Manager) inputActions(s *state.AbstractState, in *ewtg.Input) []action.AbstractAction {
	if in.Widget == nil {
		return []action.AbstractAction{action.New(in.Action, "", "")}
	}
	avms := s.AVMsOf(in.Widget)
	if len(avms) == 0 && s.IsVirtual() {
		ph := avm.Placeholder(s.Activity, in.Widget.ClassName, in.Widget.ResourceID)
		s.AddAVM(ph)
		s.MapStaticWidget(ph.ID, in.Widget)
		m.registry[ph.ID] = ph
		avms = append(avms, ph)
	}
	out := make([]action.AbstractAction, 0, len(avms))
	for _, am := range avms {
		out = append(out, action.New(in.Action, am.ID, ""))
	}
	return out
}

// Creates implicit transitions to the virtual states of the windows the static model says the state leads to.
// Edges looping back to the same window and actions already observed from the state are skipped.
func (m *Manager) wireStaticEdges(s *state.AbstractState) {
	for _, e := range m.static.EdgesFrom(s.Window) {
		if e.Target == s.Window || e.Input == nil {
			continue
		}
		dest := m.store.Virtual(e.Target)
		if dest == nil {
			continue
		}
		for _, a := range m.inputActions(s, e.Input) {
			if realized(s, a) {
				continue
			}
			s.DeclareAction(a)
			m.addImplicit(s, dest, a, "", "", nil)
		}
	}
}

// Reports whether an explicit transition triggered by the action leaves the state.
func realized(s *state.AbstractState, a action.AbstractAction) bool {
	return len(s.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsExplicit() && t.Action == a
	})) > 0
}

// Copies the action counts and the implicit outgoing transitions of the virtual state of the window.
func (m *Manager) inheritFromVirtual(s, v *state.AbstractState, snap *snapshot) {
	for _, a := range v.Actions() {
		na, ok := m.retarget(a, v, s, snap)
		if !ok {
			continue
		}
		s.DeclareAction(na)
		s.SetActionCountAtLeast(na, v.ActionCount(a))
	}
	for _, t := range v.Transitions() {
		if t.Dest == v || t.Dest.Window == v.Window || t.Action.IsLaunchOrReset() {
			continue
		}
		na, ok := m.retarget(t.Action, v, s, snap)
		if !ok {
			continue
		}
		s.DeclareAction(na)
		m.addImplicit(s, t.Dest, na, t.Data, t.Guard, t.PrevWindow)
	}
}

// Rewrites the target of an action of one state to the corresponding map of another.
// Returns false if the target is unknown or the other state has no corresponding map.
func (m *Manager) likeAction(a action.AbstractAction, from, to *state.AbstractState) (action.AbstractAction, bool) {
	if a.Target == "" {
		return a, true
	}
	src := m.lookupAVM(from, a.Target)
	if src == nil {
		return a, false
	}
	if to.HasAVM(src.ID) {
		return a, true
	}
	like := to.AVMLike(src)
	if like == nil {
		return a, false
	}
	return action.New(a.Type, like.ID, a.Extra), true
}

// Like likeAction, but synthesizes the missing map from the concrete snapshot, or a placeholder without one.
func (m *Manager) retarget(a action.AbstractAction, from, to *state.AbstractState, snap *snapshot) (action.AbstractAction, bool) {
	if na, ok := m.likeAction(a, from, to); ok {
		return na, true
	}
	src := m.lookupAVM(from, a.Target)
	if src == nil {
		return a, false
	}
	if snap != nil {
		if all, err := m.reduce(snap); err == nil {
			for _, w := range snap.state.Widgets {
				if w.ClassName != src.ClassName() || w.ResourceID != src.ResourceID() {
					continue
				}
				if am, ok := all[w.ID]; ok {
					return action.New(a.Type, am.ID, a.Extra), true
				}
			}
		}
	}
	ph := avm.Placeholder(to.Activity, src.ClassName(), src.ResourceID())
	m.registry[ph.ID] = ph
	return action.New(a.Type, ph.ID, a.Extra), true
}

func (m *Manager) lookupAVM(s *state.AbstractState, id avm.ID) *avm.AttributeValuationMap {
	if am := s.AVM(id); am != nil {
		return am
	}
	return m.registry[id]
}

// Creates the virtual state of the window and declares its actions.
func (m *Manager) createVirtual(w *ewtg.Window) *state.AbstractState {
	placeholders := make([]*avm.AttributeValuationMap, 0, len(w.Widgets))
	for _, sw := range w.Widgets {
		placeholders = append(placeholders, avm.Placeholder(w.Activity, sw.ClassName, sw.ResourceID))
	}
	v := state.NewVirtual(w, placeholders)
	if err := m.store.Add(v); err != nil {
		return m.store.Virtual(w)
	}
	for i, sw := range w.Widgets {
		v.MapStaticWidget(placeholders[i].ID, sw)
		m.registry[placeholders[i].ID] = placeholders[i]
	}
	m.declareActions(v)
	m.declareInputActions(v)
	m.refreshLaunchReset(v)
	return v
}

// Returns the virtual state of the window, creating and wiring it if missing.
func (m *Manager) ensureVirtual(w *ewtg.Window) *state.AbstractState {
	if v := m.store.Virtual(w); v != nil {
		return v
	}
	v := m.createVirtual(w)
	m.wireStaticEdges(v)
	return v
}

// Replaces the implicit launch and reset transitions of the state with ones to the current destinations.
func (m *Manager) refreshLaunchReset(s *state.AbstractState) {
	for _, t := range s.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Action.IsLaunchOrReset()
	}) {
		if (t.Action.Type == action.LaunchApp && t.Dest != m.launchDest) ||
			(t.Action.Type == action.ResetApp && t.Dest != m.resetDest) {
			t.Detach()
		}
	}
	if m.launchDest != nil {
		m.addImplicit(s, m.launchDest, action.New(action.LaunchApp, "", ""), "", "", nil)
	}
	if m.resetDest != nil {
		m.addImplicit(s, m.resetDest, action.New(action.ResetApp, "", ""), "", "", nil)
	}
}

func (m *Manager) refreshLaunchResetAll() {
	for _, s := range m.store.All(true) {
		m.refreshLaunchReset(s)
	}
}
