package stateManager

import (
	"time"

	"dstg/action"
	"dstg/gui"
	"dstg/metrics"
	"dstg/state"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

func (m *Manager) rebuildActivity(activity string) error {
	return m.rebuild(m.store.ByActivity(activity, false), metrics.ScopeWindow)
}

// Re-partitions the snapshots of the scope against the current abstraction.
//
// The member snapshots of every stale state are detached and resolved again
// without matching stale states. The transitions incident on stale states are
// then moved to the new states together with their evidence. A window scope
// also recreates the virtual states of the affected activities.
//
// The set of recorded snapshots is conserved: every detached snapshot is mapped
// to exactly one new state before the method returns.
func (m *Manager) rebuild(scope []*state.AbstractState, scopeName string) error {
	start := time.Now()
	global := scopeName == metrics.ScopeWindow

	stale := map[*state.AbstractState]bool{}
	old := []*state.AbstractState{}
	for _, s := range scope {
		if s.IsVirtual() || s.IsSingleton() || stale[s] || !m.store.Contains(s) {
			continue
		}
		stale[s] = true
		old = append(old, s)
	}
	if len(old) == 0 {
		return nil
	}
	// Collected before anything is detached
	incident := m.incidentTransitions(stale)

	activities := []string{}
	for _, s := range old {
		if !slices.Contains(activities, s.Activity) {
			activities = append(activities, s.Activity)
		}
	}
	if global {
		for _, activity := range activities {
			m.discardVirtual(activity)
			delete(m.frequency, activity)
		}
	}

	members := map[*state.AbstractState][]gui.StateID{}
	for _, s := range old {
		for _, id := range s.GUIStates() {
			if _, err := m.partition.Unassign(id); err != nil {
				return err
			}
			members[s] = append(members[s], id)
		}
	}

	// States restored from history keep their identity and stay matchable
	exclude := map[*state.AbstractState]bool{}
	for _, s := range old {
		if !s.LoadedFromHistory {
			exclude[s] = true
		}
	}
	expanded := map[*state.AbstractState][]*state.AbstractState{}
	fresh := map[*state.AbstractState]bool{}
	for _, s := range old {
		for _, id := range members[s] {
			snap := m.snapshots[id]
			if snap == nil {
				return &LookupError{StateID: id, Role: RoleMember}
			}
			ns, err := m.resolve(snap, resolveOptions{exclude: exclude, window: s.Window})
			if err != nil {
				return err
			}
			if err := m.partition.Assign(id, ns); err != nil {
				return err
			}
			if !slices.Contains(expanded[s], ns) {
				expanded[s] = append(expanded[s], ns)
			}
			fresh[ns] = true
		}
	}

	if err := m.reclassify(incident, expanded); err != nil {
		return err
	}

	removed := []string{}
	for _, s := range old {
		if len(s.GUIStates()) > 0 || s.LoadedFromHistory {
			continue
		}
		m.store.Remove(s)
		removed = append(removed, s.ID())
		if m.launchDest == s {
			m.launchDest = first(expanded[s])
		}
		if m.resetDest == s {
			m.resetDest = first(expanded[s])
		}
	}

	if global {
		for _, activity := range activities {
			for _, w := range m.static.WindowsOf(activity) {
				m.ensureVirtual(w)
			}
		}
		for _, s := range m.store.All(true) {
			m.wireStaticEdges(s)
		}
	}

	for _, s := range m.store.All(false) {
		for _, t := range s.Transitions() {
			if t.IsExplicit() && (fresh[t.Source] || fresh[t.Dest]) {
				m.synthesize(t, latest(t))
			}
		}
	}
	m.refreshLaunchResetAll()

	purged := m.paths.Purge(removed)
	m.metrics.PurgedPaths.Add(float64(purged))
	m.metrics.ObserveRebuild(scopeName, start, len(removed))
	m.updateGraphMetrics()
	m.log.Info("rebuilt abstract states",
		zap.String("scope", scopeName),
		zap.Strings("activities", activities),
		zap.Int("stale", len(old)),
		zap.Int("fresh", len(fresh)),
		zap.Int("removed", len(removed)),
		zap.Int("purgedPaths", purged),
		zap.Duration("duration", time.Since(start)),
	)
	if m.checkInvariants {
		return m.Check().Err()
	}
	return nil
}

// Returns every transition starting or ending in a stale state.
func (m *Manager) incidentTransitions(stale map[*state.AbstractState]bool) []*state.AbstractTransition {
	out := []*state.AbstractTransition{}
	for _, s := range m.store.All(true) {
		for _, t := range s.Transitions() {
			if stale[t.Source] || stale[t.Dest] {
				out = append(out, t)
			}
		}
	}
	return out
}

// Moves the incident transitions onto the new partition.
//
// Launch, reset and implicit transitions are dropped and derived again later.
// Action queues and observed transitions without interactions are replaced by the
// cross product of the new endpoints, each carrying all evidence. Every other
// transition is resolved again per witnessing interaction.
func (m *Manager) reclassify(incident []*state.AbstractTransition, expanded map[*state.AbstractState][]*state.AbstractState) error {
	for _, t := range incident {
		switch {
		case t.Action.IsLaunchOrReset() || t.IsImplicit:
			t.Detach()
		case t.Action.Type == action.ActionQueue || t.IsEmpty():
			t.Detach()
			for _, src := range endpoints(t.Source, expanded) {
				for _, dst := range endpoints(t.Dest, expanded) {
					nt := m.explicitEdge(src, dst, t.Action, t.Data, t.Guard, t.PrevWindow)
					nt.CopyEvidenceFrom(t)
				}
			}
		default:
			var last *state.AbstractTransition
			for _, in := range t.Interactions() {
				ps := m.partition.Lookup(in.PrevState)
				if ps == nil {
					return &LookupError{StateID: in.PrevState, Role: RolePrevState}
				}
				rs := m.partition.Lookup(in.ResState)
				if rs == nil {
					return &LookupError{StateID: in.ResState, Role: RoleResState}
				}
				a, err := m.actionOf(in)
				if err != nil {
					return err
				}
				nt := m.explicitEdge(ps, rs, a, t.Data, t.Guard, t.PrevWindow)
				if nt == t {
					continue
				}
				t.MoveInteraction(in.ID, nt)
				// An untouched source already counted the trigger
				if ps != t.Source {
					ps.IncreaseActionCount(a)
				}
				last = nt
			}
			if !t.IsEmpty() {
				continue
			}
			// Evidence that belongs to no interaction, e.g. restored from history
			if last != nil {
				last.CopyEvidenceFrom(t)
			}
			t.Detach()
		}
	}
	return nil
}

// Returns the states a state was expanded into, or the state itself when it kept no members.
func endpoints(s *state.AbstractState, expanded map[*state.AbstractState][]*state.AbstractState) []*state.AbstractState {
	if next, ok := expanded[s]; ok && len(next) > 0 {
		return next
	}
	return []*state.AbstractState{s}
}

// Removes the virtual states of the activity together with every transition entering them.
func (m *Manager) discardVirtual(activity string) {
	for _, v := range m.store.ByActivity(activity, true) {
		if v.IsVirtual() {
			m.store.Remove(v)
		}
	}
}

func first(states []*state.AbstractState) *state.AbstractState {
	if len(states) == 0 {
		return nil
	}
	return states[0]
}

// Returns the most recent interaction witnessing the transition, or nil.
func latest(t *state.AbstractTransition) *gui.Interaction {
	ins := t.Interactions()
	if len(ins) == 0 {
		return nil
	}
	return ins[len(ins)-1]
}
