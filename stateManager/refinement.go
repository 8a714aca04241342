package stateManager

import (
	"fmt"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/metrics"
	"dstg/state"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Reports whether the transition witnessed by the interaction agrees with its
// explicit siblings from similar states on the destination.
func (m *Manager) Validate(interactionID int) (bool, error) {
	in, ok := m.interactions[interactionID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownInteraction, interactionID)
	}
	t := m.TransitionOf(interactionID)
	if t == nil {
		return false, &LookupError{StateID: in.PrevState, Role: RolePrevState}
	}
	return len(m.conflicts(t, in)) == 0, nil
}

// Refine the abstraction until the transition witnessed by the interaction is consistent.
//
// When escalation is exhausted the ambiguity is abandoned: the abstraction is
// restored and the affected window is rebuilt.
func (m *Manager) Refine(interactionID int) error {
	in, ok := m.interactions[interactionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInteraction, interactionID)
	}
	return m.refine(in)
}

// Rebuild every abstract state of the window's activity against the current abstraction.
func (m *Manager) RebuildWindow(w *ewtg.Window) error {
	return m.rebuildActivity(w.Activity)
}

// Returns the explicit transitions from similar states that carry the same
// label as t but disagree on its destination.
//
// Siblings only witnessed from the same concrete snapshot as in are not counted.
func (m *Manager) conflicts(t *state.AbstractTransition, in *gui.Interaction) []*state.AbstractTransition {
	if m.abandonedLabels[labelOf(t)] {
		return nil
	}
	out := []*state.AbstractTransition{}
	for _, s := range m.store.All(false) {
		if !s.SimilarTo(t.Source) {
			continue
		}
		for _, o := range s.TransitionsWhere(func(o *state.AbstractTransition) bool {
			return o != t && o.IsExplicit() && o.Action == t.Action && o.Data == t.Data && o.Guard == t.Guard &&
				(t.Action.Type != action.PressBack || o.PrevWindow == t.PrevWindow)
		}) {
			if !witnessedElsewhere(o, in.PrevState) {
				continue
			}
			if o.Dest.Window != t.Dest.Window || (o.Dest != t.Dest && !sameAVMs(o.Dest, t.Dest)) {
				out = append(out, o)
			}
		}
	}
	return out
}

// Reports whether an interaction of the transition started from another snapshot than prev.
func witnessedElsewhere(t *state.AbstractTransition, prev gui.StateID) bool {
	for _, in := range t.Interactions() {
		if in.PrevState != prev {
			return true
		}
	}
	return false
}

func sameAVMs(a, b *state.AbstractState) bool {
	x, y := a.AVMIDs(), b.AVMIDs()
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func (m *Manager) refine(in *gui.Interaction) error {
	t := m.TransitionOf(in.ID)
	if t == nil {
		return &LookupError{StateID: in.PrevState, Role: RolePrevState}
	}
	conflicting := m.conflicts(t, in)
	if len(conflicting) == 0 {
		return nil
	}
	m.metrics.Ambiguities.Inc()
	lbl := labelOf(t)
	activity := t.Source.Activity
	m.log.Info("ambiguous transition detected",
		zap.Int("interaction", in.ID),
		zap.Stringer("action", t.Action),
		zap.Stringer("window", t.Source.Window),
		zap.Int("conflicts", len(conflicting)),
	)

	m.abstraction.Checkpoint()
	for round := 0; ; round++ {
		if round >= m.refinementCeiling || !m.escalate(in) {
			return m.abandon(in, lbl, activity, round)
		}
		m.metrics.Refinements.Inc()

		scope := []*state.AbstractState{t.Source}
		for _, o := range conflicting {
			scope = append(scope, o.Source)
		}
		if err := m.rebuild(scope, metrics.ScopeLocal); err != nil {
			return err
		}
		if t = m.TransitionOf(in.ID); t == nil {
			return &LookupError{StateID: in.PrevState, Role: RolePrevState}
		}
		if conflicting = m.conflicts(t, in); len(conflicting) == 0 {
			m.log.Info("ambiguity refined",
				zap.Int("interaction", in.ID),
				zap.Int("rounds", round+1),
			)
			break
		}
	}
	return m.rebuildActivity(activity)
}

// Asks the abstraction function for a finer fingerprint of the interaction's target.
func (m *Manager) escalate(in *gui.Interaction) bool {
	if in.Target == nil {
		return false
	}
	snap := m.snapshots[in.PrevState]
	if snap == nil {
		return false
	}
	w := snap.state.Widget(in.Target.ID)
	if w == nil {
		return false
	}
	return m.abstraction.IncreasePrecision(avm.PathOf(snap.state, w), snap.state.Activity, true, w, snap.state)
}

// Restores the abstraction and accepts the ambiguity as unavoidable.
func (m *Manager) abandon(in *gui.Interaction, lbl label, activity string, rounds int) error {
	m.abstraction.Restore()
	m.abandoned = append(m.abandoned, Ambiguity{
		InteractionID: in.ID,
		Window:        lbl.window,
		Action:        lbl.action,
		Data:          lbl.data,
		Guard:         lbl.guard,
	})
	m.abandonedLabels[lbl] = true
	m.metrics.Abandoned.Inc()
	m.log.Warn("ambiguity abandoned",
		zap.Int("interaction", in.ID),
		zap.Stringer("action", lbl.action),
		zap.Stringer("window", lbl.window),
		zap.Int("rounds", rounds),
		zap.Error(ErrAmbiguityExhausted),
	)
	return m.rebuildActivity(activity)
}
