package stateManager

import (
	"fmt"
	"io"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// The persisted model of a previous exploration, possibly of an older app version.
type History struct {
	// Old window id -> window id in the current static model.
	Replacements map[string]string   `yaml:"replacements,omitempty"`
	States       []HistoryState      `yaml:"states"`
	Transitions  []HistoryTransition `yaml:"transitions"`
}

type HistoryState struct {
	ID                                  string       `yaml:"id"`
	Window                              string       `yaml:"window"`
	Activity                            string       `yaml:"activity"`
	Rotation                            string       `yaml:"rotation"`
	Internet                            string       `yaml:"internet"`
	IsOpeningKeyboard                   bool         `yaml:"isOpeningKeyboard,omitempty"`
	IsRequestRuntimePermissionDialogBox bool         `yaml:"isRequestRuntimePermissionDialogBox,omitempty"`
	IsOutOfApplication                  bool         `yaml:"isOutOfApplication,omitempty"`
	HasOptionsMenu                      bool         `yaml:"hasOptionsMenu,omitempty"`
	AVMs                                []HistoryAVM `yaml:"avms"`
}

type HistoryAVM struct {
	ID          string            `yaml:"id"`
	Parent      string            `yaml:"parent,omitempty"`
	Cardinality string            `yaml:"cardinality"`
	Attributes  map[string]string `yaml:"attributes"`
}

type HistoryTransition struct {
	Source     string   `yaml:"source"`
	Dest       string   `yaml:"dest"`
	Action     string   `yaml:"action"`
	Target     string   `yaml:"target,omitempty"`
	Extra      string   `yaml:"extra,omitempty"`
	Data       string   `yaml:"data,omitempty"`
	Guard      string   `yaml:"guard,omitempty"`
	PrevWindow string   `yaml:"prevWindow,omitempty"`
	Implicit   bool     `yaml:"implicit,omitempty"`
	Statements []string `yaml:"statements,omitempty"`
	Methods    []string `yaml:"methods,omitempty"`
}

// Decode a persisted model.
func ReadHistory(r io.Reader) (*History, error) {
	h := &History{}
	if err := yaml.NewDecoder(r).Decode(h); err != nil {
		return nil, fmt.Errorf("stateManager: decoding history: %w", err)
	}
	return h, nil
}

// Encode a persisted model.
func WriteHistory(w io.Writer, h *History) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(h)
}

// Restore the states and transitions of a previous exploration.
//
// Restored states are flagged as loaded from history and survive rebuilds that empty them.
// Entries referencing unknown windows, states or action types are logged and skipped.
// Returns the number of restored states.
func (m *Manager) LoadHistory(h *History) (int, error) {
	if !m.initialized {
		return 0, ErrNotInitialized
	}
	restored := map[string]*state.AbstractState{}
	// Old map id -> id under the current fingerprint
	avmIDs := map[string]avm.ID{}
	count := 0
	for _, hs := range h.States {
		as, err := m.restoreState(h, hs, avmIDs)
		if err != nil {
			m.log.Warn("skipping history state", zap.String("historyState", hs.ID), zap.Error(err))
			continue
		}
		if dup := m.findByHash(as); dup != nil {
			restored[hs.ID] = dup
			continue
		}
		as.LoadedFromHistory = true
		if err := m.store.Add(as); err != nil {
			return count, err
		}
		m.mapStaticWidgets(as)
		m.initState(as, nil)
		restored[hs.ID] = as
		count++
	}

	for _, ht := range h.Transitions {
		if err := m.restoreTransition(h, ht, restored, avmIDs); err != nil {
			m.log.Warn("skipping history transition",
				zap.String("source", ht.Source),
				zap.String("dest", ht.Dest),
				zap.Error(err),
			)
		}
	}
	m.updateGraphMetrics()
	m.log.Info("loaded history", zap.Int("states", count), zap.Int("transitions", len(h.Transitions)))
	return count, nil
}

func (m *Manager) historyWindow(h *History, id string) (*ewtg.Window, error) {
	if replacement, ok := h.Replacements[id]; ok {
		id = replacement
	}
	return m.static.Window(id)
}

func (m *Manager) restoreState(h *History, hs HistoryState, avmIDs map[string]avm.ID) (*state.AbstractState, error) {
	w, err := m.historyWindow(h, hs.Window)
	if err != nil {
		return nil, err
	}
	rotation, err := gui.ParseRotation(hs.Rotation)
	if err != nil {
		return nil, err
	}
	internet, err := gui.ParseInternetStatus(hs.Internet)
	if err != nil {
		return nil, err
	}
	activity := hs.Activity
	if activity == "" {
		activity = w.Activity
	}
	avms := make([]*avm.AttributeValuationMap, 0, len(hs.AVMs))
	for _, ha := range hs.AVMs {
		attrs := make(map[avm.AttributeType]string, len(ha.Attributes))
		for name, v := range ha.Attributes {
			t, err := avm.ParseAttributeType(name)
			if err != nil {
				return nil, err
			}
			attrs[t] = v
		}
		parent := avm.ID(ha.Parent)
		if mapped, ok := avmIDs[ha.Parent]; ok {
			parent = mapped
		}
		am := avm.New(activity, attrs, parent, avm.ParseCardinality(ha.Cardinality))
		if string(am.ID) != ha.ID {
			avmIDs[ha.ID] = am.ID
		}
		m.registry[am.ID] = am
		avms = append(avms, am)
	}
	return state.New(state.Attributes{
		Window:                              w,
		Activity:                            activity,
		Rotation:                            rotation,
		Internet:                            internet,
		IsOpeningKeyboard:                   hs.IsOpeningKeyboard,
		IsRequestRuntimePermissionDialogBox: hs.IsRequestRuntimePermissionDialogBox,
		IsOutOfApplication:                  hs.IsOutOfApplication,
		HasOptionsMenu:                      hs.HasOptionsMenu,
		Maps:                                avms,
	}), nil
}

// Returns the non virtual state with the same structural hash and context, or nil.
func (m *Manager) findByHash(as *state.AbstractState) *state.AbstractState {
	for _, c := range m.store.Matching(as.Activity, as.Rotation, as.IsOpeningKeyboard, as.Internet) {
		if !c.IsSingleton() && c.Hash() == as.Hash() {
			return c
		}
	}
	return nil
}

func (m *Manager) restoreTransition(h *History, ht HistoryTransition, restored map[string]*state.AbstractState, avmIDs map[string]avm.ID) error {
	src, ok := restored[ht.Source]
	if !ok {
		return fmt.Errorf("unknown source state %q", ht.Source)
	}
	dst, ok := restored[ht.Dest]
	if !ok {
		return fmt.Errorf("unknown destination state %q", ht.Dest)
	}
	t := action.ParseType(ht.Action)
	if t == action.Unknown && ht.Action != action.Unknown.String() {
		return fmt.Errorf("unknown action type %q", ht.Action)
	}
	target := avm.ID(ht.Target)
	if mapped, ok := avmIDs[ht.Target]; ok {
		target = mapped
	}
	var prevWindow *ewtg.Window
	if ht.PrevWindow != "" {
		w, err := m.historyWindow(h, ht.PrevWindow)
		if err != nil {
			m.log.Warn("dropping unknown previous window of history transition", zap.String("window", ht.PrevWindow))
		} else {
			prevWindow = w
		}
	}
	a := action.New(t, target, ht.Extra)
	if ht.Implicit {
		m.addImplicit(src, dst, a, ht.Data, ht.Guard, prevWindow)
		return nil
	}
	nt := m.explicitEdge(src, dst, a, ht.Data, ht.Guard, prevWindow)
	if len(ht.Statements) > 0 || len(ht.Methods) > 0 {
		nt.AddCoverage(historyEvidence, ht.Statements, ht.Methods)
	}
	return nil
}

// Coverage key of evidence restored from history. Recorded interactions never use negative ids.
const historyEvidence = -1

// Export the non virtual states and the transitions between them.
// The special screens are shared by every exploration and are not exported.
func (m *Manager) ExportHistory() *History {
	h := &History{}
	for _, s := range m.States(false) {
		if s.IsSingleton() {
			continue
		}
		hs := HistoryState{
			ID:                                  s.ID(),
			Window:                              s.Window.ID,
			Activity:                            s.Activity,
			Rotation:                            s.Rotation.String(),
			Internet:                            s.Internet.String(),
			IsOpeningKeyboard:                   s.IsOpeningKeyboard,
			IsRequestRuntimePermissionDialogBox: s.IsRequestRuntimePermissionDialogBox,
			IsOutOfApplication:                  s.IsOutOfApplication,
			HasOptionsMenu:                      s.HasOptionsMenu,
		}
		for _, am := range s.AVMs() {
			ha := HistoryAVM{
				ID:          string(am.ID),
				Parent:      string(am.ParentID),
				Cardinality: am.Cardinality.String(),
				Attributes:  make(map[string]string, len(am.Attributes)),
			}
			for k, v := range am.Attributes {
				ha.Attributes[k.String()] = v
			}
			hs.AVMs = append(hs.AVMs, ha)
		}
		h.States = append(h.States, hs)
	}
	for _, s := range m.States(false) {
		if s.IsSingleton() {
			continue
		}
		for _, t := range s.Transitions() {
			if t.Dest.IsVirtual() || t.Dest.IsSingleton() {
				continue
			}
			ht := HistoryTransition{
				Source:     t.Source.ID(),
				Dest:       t.Dest.ID(),
				Action:     t.Action.Type.String(),
				Target:     string(t.Action.Target),
				Extra:      t.Action.Extra,
				Data:       t.Data,
				Guard:      t.Guard,
				Implicit:   t.IsImplicit,
				Statements: t.Statements(),
				Methods:    t.Methods(),
			}
			if t.PrevWindow != nil {
				ht.PrevWindow = t.PrevWindow.ID
			}
			h.Transitions = append(h.Transitions, ht)
		}
	}
	return h
}
