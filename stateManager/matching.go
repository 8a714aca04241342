package stateManager

import (
	"fmt"
	"sort"

	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"

	"go.uber.org/zap"
)

type resolveOptions struct {
	// Stale states of a rebuild. They are never matched.
	exclude map[*state.AbstractState]bool
	// Overrides the window correlation when set.
	window *ewtg.Window
}

// Returns the abstract state the snapshot belongs to, creating it if no existing state matches.
//
// The caller records the mapping.
func (m *Manager) resolve(snap *snapshot, opts resolveOptions) (*state.AbstractState, error) {
	s := snap.state
	if s.IsHomeScreen {
		return m.singleton(&m.homeScreen, snap, m.static.Launcher())
	}
	if s.IsAppHasStoppedDialogBox {
		return m.singleton(&m.appStopped, snap, m.static.OutOfApp())
	}

	avms, err := m.interactableAVMs(snap)
	if err != nil {
		return nil, err
	}
	ids := make([]avm.ID, 0, len(avms))
	for _, am := range avms {
		ids = append(ids, am.ID)
	}
	hash := state.ComputeHash(ids, s.Activity, snap.env.Rotation, s.IsOpeningKeyboard, snap.env.Internet)

	candidates := []*state.AbstractState{}
	for _, c := range m.store.Matching(s.Activity, snap.env.Rotation, s.IsOpeningKeyboard, snap.env.Internet) {
		if opts.exclude[c] || c.IsSingleton() {
			continue
		}
		if c.Hash() == hash {
			m.countFrequency(s.Activity, avms)
			m.log.Debug("matched snapshot by structural hash",
				zap.String("snapshot", string(s.ID)),
				zap.String("abstractState", c.ID()),
			)
			return c, nil
		}
		candidates = append(candidates, c)
	}
	m.logOverlap(s, avms, candidates)

	window := opts.window
	if window == nil {
		window = m.correlateWindow(snap, avms)
	}
	as := state.New(state.Attributes{
		Window:                              window,
		Activity:                            s.Activity,
		Rotation:                            snap.env.Rotation,
		Internet:                            snap.env.Internet,
		IsOpeningKeyboard:                   s.IsOpeningKeyboard,
		IsRequestRuntimePermissionDialogBox: s.IsRequestRuntimePermissionDialogBox,
		IsOutOfApplication:                  s.IsOutOfApplication,
		HasOptionsMenu:                      s.IsOptionsMenu,
		Maps:                                avms,
	})
	if err := m.store.Add(as); err != nil {
		return nil, err
	}
	m.mapStaticWidgets(as)
	m.initState(as, snap)
	m.countFrequency(s.Activity, avms)
	m.log.Debug("created abstract state",
		zap.String("snapshot", string(s.ID)),
		zap.String("abstractState", as.ID()),
		zap.Stringer("window", window),
		zap.Int("avms", len(avms)),
	)
	return as, nil
}

// Returns the globally shared state of a special screen, creating it on first use.
func (m *Manager) singleton(slot **state.AbstractState, snap *snapshot, window *ewtg.Window) (*state.AbstractState, error) {
	if *slot != nil {
		return *slot, nil
	}
	s := snap.state
	as := state.New(state.Attributes{
		Window:                   window,
		Activity:                 s.Activity,
		Rotation:                 snap.env.Rotation,
		Internet:                 snap.env.Internet,
		IsHomeScreen:             s.IsHomeScreen,
		IsAppHasStoppedDialogBox: s.IsAppHasStoppedDialogBox,
		IsOutOfApplication:       true,
	})
	if err := m.store.Add(as); err != nil {
		return nil, err
	}
	m.initState(as, snap)
	*slot = as
	m.log.Debug("created special screen state", zap.String("abstractState", as.ID()), zap.Stringer("window", window))
	return as, nil
}

// Reduces the snapshot and registers every produced map.
func (m *Manager) reduce(snap *snapshot) (map[gui.WidgetID]*avm.AttributeValuationMap, error) {
	all, err := m.reducer.Reduce(snap.state, snap.env)
	if err != nil {
		return nil, fmt.Errorf("stateManager: reducing snapshot %s: %w", snap.state.ID, err)
	}
	for _, am := range all {
		m.registry[am.ID] = am
	}
	return all, nil
}

// Returns the maps of the interactable widgets, sorted by id.
func (m *Manager) interactableAVMs(snap *snapshot) ([]*avm.AttributeValuationMap, error) {
	all, err := m.reduce(snap)
	if err != nil {
		return nil, err
	}
	seen := map[avm.ID]bool{}
	out := []*avm.AttributeValuationMap{}
	for _, w := range snap.state.Interactables() {
		am, ok := all[w.ID]
		if !ok || seen[am.ID] {
			continue
		}
		seen[am.ID] = true
		out = append(out, am)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Manager) countFrequency(activity string, avms []*avm.AttributeValuationMap) {
	freq, ok := m.frequency[activity]
	if !ok {
		freq = make(map[avm.ID]int)
		m.frequency[activity] = freq
	}
	for _, am := range avms {
		freq[am.ID]++
	}
}

// Computes the best partial overlap with the candidates. The score is logged but a partial overlap never matches.
func (m *Manager) logOverlap(s *gui.State, avms []*avm.AttributeValuationMap, candidates []*state.AbstractState) {
	var best *state.AbstractState
	bestScore := 0.0
	for _, c := range candidates {
		if score := avm.Overlap(avms, c.AVMs()); score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return
	}
	m.log.Debug("partial overlap match not accepted",
		zap.String("snapshot", string(s.ID)),
		zap.String("abstractState", best.ID()),
		zap.Float64("overlap", bestScore),
	)
}

// Picks the window of a new abstract state.
//
// Dialogs and options menus without a static counterpart get a runtime window.
func (m *Manager) correlateWindow(snap *snapshot, avms []*avm.AttributeValuationMap) *ewtg.Window {
	s := snap.state
	if s.IsOutOfApplication {
		return m.static.OutOfApp()
	}
	if snap.hint != nil {
		return snap.hint
	}
	kind := ewtg.Activity
	switch {
	case s.IsDialog:
		kind = ewtg.Dialog
	case s.IsOptionsMenu:
		kind = ewtg.OptionsMenu
	}

	var candidates []*ewtg.Window
	if kind == ewtg.Activity {
		if w := m.static.ActivityWindow(s.Activity); w != nil {
			candidates = append(candidates, w)
		}
	} else {
		candidates = m.static.WindowsOfKind(s.Activity, kind)
	}
	var best *ewtg.Window
	bestScore := -1
	for _, c := range candidates {
		if score := correlation(c, avms); score > bestScore {
			best, bestScore = c, score
		}
	}
	if best != nil && (kind == ewtg.Activity || bestScore > 0) {
		return best
	}
	for _, w := range candidates {
		if w.RuntimeCreated {
			return w
		}
	}
	w := m.static.NewRuntimeWindow(kind, s.Activity)
	m.log.Warn("no static window correlates with snapshot, using a runtime window",
		zap.String("snapshot", string(s.ID)),
		zap.Stringer("window", w),
	)
	return w
}

// Number of maps with a static widget counterpart in the window.
func correlation(w *ewtg.Window, avms []*avm.AttributeValuationMap) int {
	n := 0
	for _, am := range avms {
		if len(w.FindWidgets(am.ClassName(), am.ResourceID())) > 0 {
			n++
		}
	}
	return n
}

// Correlates the maps of the state with the static widgets of its window.
// Maps without a static counterpart get a runtime widget.
func (m *Manager) mapStaticWidgets(as *state.AbstractState) {
	for _, am := range as.AVMs() {
		widgets := as.Window.FindWidgets(am.ClassName(), am.ResourceID())
		if len(widgets) == 0 {
			widgets = append(widgets, as.Window.AddWidget("", am.ClassName(), am.ResourceID(), true))
			m.log.Debug("no static widget correlates with map, using a runtime widget",
				zap.String("avm", string(am.ID)),
				zap.Stringer("window", as.Window),
			)
		}
		for _, w := range widgets {
			as.MapStaticWidget(am.ID, w)
		}
	}
}
