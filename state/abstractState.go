// Package state holds the data model of the dynamic state-transition graph:
// abstract states, the transitions between them, and the repositories that
// enforce the partition of concrete snapshots over abstract states.
package state

import (
	"fmt"
	"sort"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// The attributes an abstract state is created with.
type Attributes struct {
	Window   *ewtg.Window
	Activity string
	Rotation gui.Rotation
	Internet gui.InternetStatus

	IsHomeScreen                        bool
	IsOpeningKeyboard                   bool
	IsRequestRuntimePermissionDialogBox bool
	IsAppHasStoppedDialogBox            bool
	IsOutOfApplication                  bool
	HasOptionsMenu                      bool

	// The fingerprints present in the state.
	Maps []*avm.AttributeValuationMap
}

// An equivalence class of concrete snapshots.
//
// Membership is only changed through a Partition so that every snapshot belongs to exactly one abstract state.
type AbstractState struct {
	Attributes

	// Set for states restored from a persisted model. Such states survive a rebuild that empties them.
	LoadedFromHistory bool

	id      string
	virtual bool

	avms          []*avm.AttributeValuationMap
	avmIndex      map[avm.ID]*avm.AttributeValuationMap
	staticWidgets map[avm.ID][]*ewtg.Widget

	transitions []*AbstractTransition
	actionCount map[action.AbstractAction]int
	guiStates   map[gui.StateID]struct{}

	hash uint64
}

// Create an abstract state for concrete snapshots.
func New(attrs Attributes) *AbstractState {
	s := &AbstractState{
		Attributes:    attrs,
		id:            uuid.NewString(),
		avmIndex:      make(map[avm.ID]*avm.AttributeValuationMap),
		staticWidgets: make(map[avm.ID][]*ewtg.Widget),
		transitions:   make([]*AbstractTransition, 0),
		actionCount:   make(map[action.AbstractAction]int),
		guiStates:     make(map[gui.StateID]struct{}),
	}
	for _, m := range attrs.Maps {
		if _, ok := s.avmIndex[m.ID]; ok {
			continue
		}
		s.avmIndex[m.ID] = m
		s.avms = append(s.avms, m)
	}
	s.Attributes.Maps = nil
	s.hash = s.RecomputeHash()
	return s
}

// Create the template state of a window that has not been observed yet.
func NewVirtual(window *ewtg.Window, avms []*avm.AttributeValuationMap) *AbstractState {
	s := New(Attributes{
		Window:   window,
		Activity: window.Activity,
		Maps:     avms,
	})
	s.virtual = true
	return s
}

func (s *AbstractState) ID() string {
	return s.id
}

func (s *AbstractState) IsVirtual() bool {
	return s.virtual
}

// Reports whether the state is one of the globally deduplicated special screens.
func (s *AbstractState) IsSingleton() bool {
	return s.IsHomeScreen || s.IsAppHasStoppedDialogBox
}

func (s *AbstractState) AVMs() []*avm.AttributeValuationMap {
	return slices.Clone(s.avms)
}

func (s *AbstractState) AVMIDs() []avm.ID {
	ids := make([]avm.ID, 0, len(s.avms))
	for _, m := range s.avms {
		ids = append(ids, m.ID)
	}
	return ids
}

func (s *AbstractState) AVM(id avm.ID) *avm.AttributeValuationMap {
	return s.avmIndex[id]
}

func (s *AbstractState) HasAVM(id avm.ID) bool {
	_, ok := s.avmIndex[id]
	return ok
}

// Adds a map to the state and updates the structural hash.
func (s *AbstractState) AddAVM(m *avm.AttributeValuationMap) {
	if s.HasAVM(m.ID) {
		return
	}
	s.avmIndex[m.ID] = m
	s.avms = append(s.avms, m)
	s.hash = s.RecomputeHash()
}

// Returns the first map with the same widget identity as m, or nil.
func (s *AbstractState) AVMLike(m *avm.AttributeValuationMap) *avm.AttributeValuationMap {
	for _, candidate := range s.avms {
		if candidate.SameWidgetIdentity(m) {
			return candidate
		}
	}
	return nil
}

// Records that the map was correlated with the static widget.
func (s *AbstractState) MapStaticWidget(id avm.ID, w *ewtg.Widget) {
	if slices.Contains(s.staticWidgets[id], w) {
		return
	}
	s.staticWidgets[id] = append(s.staticWidgets[id], w)
}

func (s *AbstractState) StaticWidgets(id avm.ID) []*ewtg.Widget {
	return s.staticWidgets[id]
}

// Returns the maps correlated with the static widget.
func (s *AbstractState) AVMsOf(w *ewtg.Widget) []*avm.AttributeValuationMap {
	out := []*avm.AttributeValuationMap{}
	for _, m := range s.avms {
		if slices.Contains(s.staticWidgets[m.ID], w) {
			out = append(out, m)
		}
	}
	return out
}

// Adds the action to the action surface of the state without counting a trigger.
func (s *AbstractState) DeclareAction(a action.AbstractAction) {
	if _, ok := s.actionCount[a]; !ok {
		s.actionCount[a] = 0
	}
}

func (s *AbstractState) HasAction(a action.AbstractAction) bool {
	_, ok := s.actionCount[a]
	return ok
}

func (s *AbstractState) IncreaseActionCount(a action.AbstractAction) {
	s.actionCount[a]++
}

func (s *AbstractState) ActionCount(a action.AbstractAction) int {
	return s.actionCount[a]
}

// Raises the trigger count of the action to at least n.
func (s *AbstractState) SetActionCountAtLeast(a action.AbstractAction, n int) {
	if s.actionCount[a] < n {
		s.actionCount[a] = n
	}
}

// Returns the declared actions in a deterministic order.
func (s *AbstractState) Actions() []action.AbstractAction {
	out := maps.Keys(s.actionCount)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Returns the outgoing transitions.
func (s *AbstractState) Transitions() []*AbstractTransition {
	return slices.Clone(s.transitions)
}

// Returns the outgoing transitions for which match returns true.
func (s *AbstractState) TransitionsWhere(match func(*AbstractTransition) bool) []*AbstractTransition {
	out := []*AbstractTransition{}
	for _, t := range s.transitions {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *AbstractState) RemoveTransition(t *AbstractTransition) {
	if i := slices.Index(s.transitions, t); i >= 0 {
		s.transitions = slices.Delete(s.transitions, i, i+1)
	}
}

func (s *AbstractState) addTransition(t *AbstractTransition) {
	s.transitions = append(s.transitions, t)
}

// Returns the member snapshots, sorted.
func (s *AbstractState) GUIStates() []gui.StateID {
	out := maps.Keys(s.guiStates)
	slices.Sort(out)
	return out
}

func (s *AbstractState) HasGUIState(id gui.StateID) bool {
	_, ok := s.guiStates[id]
	return ok
}

func (s *AbstractState) Hash() uint64 {
	return s.hash
}

// Computes the structural hash from the current attributes.
func (s *AbstractState) RecomputeHash() uint64 {
	return ComputeHash(s.AVMIDs(), s.Activity, s.Rotation, s.IsOpeningKeyboard, s.Internet)
}

// Reports whether the state was captured in the provided context.
func (s *AbstractState) Matches(activity string, rotation gui.Rotation, keyboard bool, internet gui.InternetStatus) bool {
	return s.Activity == activity && s.Rotation == rotation && s.IsOpeningKeyboard == keyboard && s.Internet == internet
}

// Reports whether both states share window, rotation, keyboard and internet context.
func (s *AbstractState) SimilarTo(other *AbstractState) bool {
	return s.Window == other.Window && s.Rotation == other.Rotation &&
		s.IsOpeningKeyboard == other.IsOpeningKeyboard && s.Internet == other.Internet
}

func (s *AbstractState) String() string {
	kind := "AbstractState"
	if s.virtual {
		kind = "VirtualAbstractState"
	}
	return fmt.Sprintf("%s[%s %s %v]", kind, s.id, s.Window, s.Rotation)
}

// Structural hash over the map set and the capture context.
//
// The map ids are sorted so the hash does not depend on discovery order.
func ComputeHash(ids []avm.ID, activity string, rotation gui.Rotation, keyboard bool, internet gui.InternetStatus) uint64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	d := xxhash.New()
	for _, id := range sorted {
		d.WriteString(string(id))
		d.WriteString(";")
	}
	fmt.Fprintf(d, "|%s|%d|%t|%d", activity, rotation, keyboard, internet)
	return d.Sum64()
}
