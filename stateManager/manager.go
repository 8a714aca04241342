// Package stateManager builds the dynamic state-transition graph from a stream
// of concrete snapshots and interactions.
//
// The Manager partitions snapshots into abstract states, records observed
// transitions, synthesizes implicit ones, and refines the abstraction when the
// same action is observed to lead to materially different destinations.
//
// A Manager is owned by a single exploration session. It is not safe for
// concurrent use and must not be called re-entrantly.
package stateManager

import (
	"fmt"

	"dstg/action"
	"dstg/avm"
	"dstg/checking"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/metrics"
	"dstg/pathCache"
	"dstg/state"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Max escalation rounds spent on a single interaction unless RefinementCeiling is given.
const DefaultRefinementCeiling = 5

// A concrete snapshot together with the context it was captured in.
type snapshot struct {
	state *gui.State
	env   gui.Environment
	hint  *ewtg.Window
}

// An ambiguity that could not be refined away and was accepted as unavoidable.
type Ambiguity struct {
	InteractionID int
	Window        *ewtg.Window
	Action        action.AbstractAction
	Data          string
	Guard         string
}

type label struct {
	window *ewtg.Window
	action action.AbstractAction
	data   string
	guard  string
}

func labelOf(t *state.AbstractTransition) label {
	return label{window: t.Source.Window, action: t.Action, data: t.Data, guard: t.Guard}
}

type Manager struct {
	static      *ewtg.Graph
	reducer     avm.Reducer
	abstraction avm.AbstractionFunction
	log         *zap.Logger
	metrics     *metrics.Metrics
	paths       *pathCache.Cache
	checker     *checking.Checker

	refinementCeiling int
	checkInvariants   bool
	initialized       bool

	store     *state.Store
	partition *state.Partition

	snapshots        map[gui.StateID]*snapshot
	snapshotOrder    []gui.StateID
	interactions     map[int]*gui.Interaction
	interactionOrder []int

	// Every map produced by the reducer, including the ancestors of interactable widgets.
	registry map[avm.ID]*avm.AttributeValuationMap
	// activity -> map -> number of resolutions the map took part in
	frequency map[string]map[avm.ID]int

	homeScreen *state.AbstractState
	appStopped *state.AbstractState
	launchDest *state.AbstractState
	resetDest  *state.AbstractState

	abandoned       []Ambiguity
	abandonedLabels map[label]bool
}

type Option interface{}

type refinementCeilingOption struct{ n int }

// Configure the max number of escalation rounds spent on a single interaction.
//
// Default value is 5.
func RefinementCeiling(n int) Option {
	return refinementCeilingOption{n: n}
}

type pathCacheOption struct{ c *pathCache.Cache }

// Use the provided cache of search paths. The manager purges it after every rebuild.
func WithPathCache(c *pathCache.Cache) Option {
	return pathCacheOption{c: c}
}

type checkInvariantsOption struct{}

// Verify the graph invariants after every recorded interaction and every rebuild.
func CheckInvariants() Option {
	return checkInvariantsOption{}
}

// Create a new manager over the static model.
//
// The reducer fingerprints snapshots and the abstraction function refines it when an ambiguity is found.
// A nil logger or nil metrics is replaced by a no-op logger or fresh metrics.
func New(static *ewtg.Graph, reducer avm.Reducer, abstraction avm.AbstractionFunction, logger *zap.Logger, m *metrics.Metrics, opts ...Option) (*Manager, error) {
	if static == nil || reducer == nil || abstraction == nil {
		return nil, fmt.Errorf("stateManager: static model, reducer and abstraction function are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	mgr := &Manager{
		static:            static,
		reducer:           reducer,
		abstraction:       abstraction,
		log:               logger,
		metrics:           m,
		checker:           checking.NewInvariantChecker(),
		refinementCeiling: DefaultRefinementCeiling,

		store:     state.NewStore(),
		partition: state.NewPartition(),

		snapshots:    make(map[gui.StateID]*snapshot),
		interactions: make(map[int]*gui.Interaction),

		registry:        make(map[avm.ID]*avm.AttributeValuationMap),
		frequency:       make(map[string]map[avm.ID]int),
		abandonedLabels: make(map[label]bool),
	}
	for _, opt := range opts {
		switch t := opt.(type) {
		case refinementCeilingOption:
			mgr.refinementCeiling = t.n
		case pathCacheOption:
			mgr.paths = t.c
		case checkInvariantsOption:
			mgr.checkInvariants = true
		}
	}
	if mgr.paths == nil {
		c, err := pathCache.New(pathCache.DefaultSize)
		if err != nil {
			return nil, err
		}
		mgr.paths = c
	}
	return mgr, nil
}

// Create the virtual state of every static window and wire the static edges between them.
func (m *Manager) Init() error {
	if m.initialized {
		return nil
	}
	created := []*state.AbstractState{}
	for _, w := range m.static.Windows() {
		if m.store.Virtual(w) == nil {
			created = append(created, m.createVirtual(w))
		}
	}
	for _, v := range created {
		m.wireStaticEdges(v)
	}
	m.initialized = true
	m.updateGraphMetrics()
	m.log.Info("initialized virtual abstract states", zap.Int("windows", len(created)))
	return nil
}

// Resolve the snapshot to its abstract state, creating one if necessary, and record the mapping.
//
// hint is the window the host believes the snapshot belongs to and may be nil.
// Recording a snapshot twice returns the state it is already mapped to.
func (m *Manager) RecordSnapshot(s *gui.State, env gui.Environment, hint *ewtg.Window) (*state.AbstractState, error) {
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrUnknownSnapshot)
	}
	if existing := m.partition.Lookup(s.ID); existing != nil {
		return existing, nil
	}
	if _, ok := m.snapshots[s.ID]; !ok {
		m.snapshotOrder = append(m.snapshotOrder, s.ID)
	}
	snap := &snapshot{state: s, env: env, hint: hint}
	m.snapshots[s.ID] = snap

	as, err := m.resolve(snap, resolveOptions{})
	if err != nil {
		return nil, err
	}
	if err := m.partition.Assign(s.ID, as); err != nil {
		return nil, err
	}
	m.metrics.Snapshots.Inc()
	m.updateGraphMetrics()
	return as, nil
}

// Record an interaction between two recorded snapshots.
//
// The observed transition is created or updated, implicit transitions are synthesized from it,
// and the model is refined if the observation makes it inconsistent.
// Returns the transition witnessing the interaction after any rebuild.
func (m *Manager) RecordInteraction(in *gui.Interaction, coverage *state.Coverage) (*state.AbstractTransition, error) {
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if in == nil {
		return nil, fmt.Errorf("%w: nil interaction", ErrUnknownInteraction)
	}
	if _, ok := m.interactions[in.ID]; ok {
		return m.TransitionOf(in.ID), nil
	}
	prev := m.partition.Lookup(in.PrevState)
	if prev == nil {
		return nil, &LookupError{StateID: in.PrevState, Role: RolePrevState}
	}
	res := m.partition.Lookup(in.ResState)
	if res == nil {
		return nil, &LookupError{StateID: in.ResState, Role: RoleResState}
	}
	a, err := m.actionOf(in)
	if err != nil {
		return nil, err
	}
	prevWindow := m.enteredFrom(in)
	m.interactions[in.ID] = in
	m.interactionOrder = append(m.interactionOrder, in.ID)

	if a.Type == action.PressBack {
		m.verifyBackwardEquivalent(prev, res, prevWindow)
	}
	t := m.observe(prev, res, a, dataOf(in), state.CanonicalGuard(in.UserInputs), prevWindow, in)
	if coverage != nil {
		t.AddCoverage(in.ID, coverage.Statements, coverage.Methods)
	}
	m.updateLaunchReset(a, res)
	m.synthesize(t, in)
	m.metrics.Interactions.Inc()

	if err := m.refine(in); err != nil {
		return nil, err
	}
	m.updateGraphMetrics()
	if m.checkInvariants {
		if err := m.Check().Err(); err != nil {
			return nil, err
		}
	}
	return m.TransitionOf(in.ID), nil
}

// Associate a step of a test trace with a recorded interaction.
func (m *Manager) RecordTrace(traceID, step, interactionID int) error {
	t := m.TransitionOf(interactionID)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrUnknownInteraction, interactionID)
	}
	t.AddTrace(state.TraceStep{TraceID: traceID, Step: step}, interactionID)
	return nil
}

// Record which event handlers were triggered by a recorded interaction.
func (m *Manager) RecordHandlers(interactionID int, handlers map[string]bool) error {
	t := m.TransitionOf(interactionID)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrUnknownInteraction, interactionID)
	}
	for h, triggered := range handlers {
		t.Handlers[h] = t.Handlers[h] || triggered
	}
	return nil
}

// Returns the abstract state the snapshot belongs to, or nil.
func (m *Manager) StateOf(id gui.StateID) *state.AbstractState {
	return m.partition.Lookup(id)
}

// Returns the abstract states in creation order.
func (m *Manager) States(includeVirtual bool) []*state.AbstractState {
	return m.store.All(includeVirtual)
}

// Returns the state with the provided id, or nil.
func (m *Manager) State(id string) *state.AbstractState {
	return m.store.ByID(id)
}

// Returns the virtual state of the window, or nil.
func (m *Manager) VirtualState(w *ewtg.Window) *state.AbstractState {
	return m.store.Virtual(w)
}

// Returns all recorded snapshots in recording order.
func (m *Manager) Snapshots() []gui.StateID {
	return slices.Clone(m.snapshotOrder)
}

// Returns the explicit transition witnessed by the interaction, or nil.
func (m *Manager) TransitionOf(interactionID int) *state.AbstractTransition {
	in, ok := m.interactions[interactionID]
	if !ok {
		return nil
	}
	if s := m.partition.Lookup(in.PrevState); s != nil {
		for _, t := range s.Transitions() {
			if t.HasInteraction(interactionID) {
				return t
			}
		}
	}
	for _, s := range m.store.All(false) {
		for _, t := range s.Transitions() {
			if t.HasInteraction(interactionID) {
				return t
			}
		}
	}
	return nil
}

func (m *Manager) Interaction(id int) *gui.Interaction {
	return m.interactions[id]
}

// Returns the ambiguities accepted as unavoidable.
func (m *Manager) Abandoned() []Ambiguity {
	return slices.Clone(m.abandoned)
}

// Returns how often each map took part in a resolution of a snapshot of the activity.
func (m *Manager) AVMFrequency(activity string) map[avm.ID]int {
	return maps.Clone(m.frequency[activity])
}

// Returns the state reached by launching the app, or nil.
func (m *Manager) LaunchState() *state.AbstractState {
	return m.launchDest
}

// Returns the state reached by resetting the app, or nil.
func (m *Manager) ResetState() *state.AbstractState {
	return m.resetDest
}

func (m *Manager) Static() *ewtg.Graph {
	return m.static
}

func (m *Manager) PathCache() *pathCache.Cache {
	return m.paths
}

// Evaluates the graph invariants.
func (m *Manager) Check() checking.Response {
	return m.checker.Check(m)
}

// Finds or creates the explicit transition for an observation.
func (m *Manager) observe(prev, res *state.AbstractState, a action.AbstractAction, data, guard string, prevWindow *ewtg.Window, in *gui.Interaction) *state.AbstractTransition {
	// An observation contradicts the implicit guesses for the same action
	for _, t := range prev.TransitionsWhere(func(t *state.AbstractTransition) bool {
		return t.IsImplicit && t.Dest != res && t.Action == a && t.Data == data && t.Guard == guard
	}) {
		t.Detach()
	}
	t := m.explicitEdge(prev, res, a, data, guard, prevWindow)
	t.AddInteraction(in)
	prev.IncreaseActionCount(a)
	return t
}

// Returns the explicit transition with the label, creating it or promoting a matching implicit one.
func (m *Manager) explicitEdge(src, dst *state.AbstractState, a action.AbstractAction, data, guard string, prevWindow *ewtg.Window) *state.AbstractTransition {
	for _, t := range src.Transitions() {
		if t.Dest == dst && t.HasLabel(a, data, guard, prevWindow) {
			t.IsImplicit = false
			return t
		}
	}
	src.DeclareAction(a)
	return state.NewTransition(src, dst, a, data, guard, prevWindow, false)
}

// Derives the abstract action of an interaction from the maps of its previous snapshot.
func (m *Manager) actionOf(in *gui.Interaction) (action.AbstractAction, error) {
	t := action.ParseType(in.Action)
	var target avm.ID
	if in.Target != nil {
		snap, ok := m.snapshots[in.PrevState]
		if !ok {
			return action.AbstractAction{}, &LookupError{StateID: in.PrevState, Role: RolePrevState}
		}
		all, err := m.reduce(snap)
		if err != nil {
			return action.AbstractAction{}, err
		}
		if am, ok := all[in.Target.ID]; ok {
			target = am.ID
		}
	}
	extra := ""
	if t == action.Swipe {
		extra = in.Data
	}
	return action.New(t, target, extra), nil
}

// The payload of the interaction that is not already part of its action.
func dataOf(in *gui.Interaction) string {
	if action.ParseType(in.Action) == action.Swipe {
		return ""
	}
	return in.Data
}

// Returns the window the previous snapshot of the interaction was entered from, or nil.
func (m *Manager) enteredFrom(in *gui.Interaction) *ewtg.Window {
	for i := len(m.interactionOrder) - 1; i >= 0; i-- {
		last := m.interactions[m.interactionOrder[i]]
		if last.ResState != in.PrevState {
			continue
		}
		if s := m.partition.Lookup(last.PrevState); s != nil {
			return s.Window
		}
		return nil
	}
	return nil
}

func (m *Manager) updateLaunchReset(a action.AbstractAction, res *state.AbstractState) {
	switch a.Type {
	case action.LaunchApp:
		m.launchDest = res
		if m.resetDest == nil {
			m.resetDest = res
		}
	case action.ResetApp:
		m.resetDest = res
		if m.launchDest == nil {
			m.launchDest = res
		}
	default:
		return
	}
	m.refreshLaunchResetAll()
}

func (m *Manager) updateGraphMetrics() {
	states, virtual, explicit, implicit := 0, 0, 0, 0
	for _, s := range m.store.All(true) {
		if s.IsVirtual() {
			virtual++
		} else {
			states++
		}
		for _, t := range s.Transitions() {
			if t.IsImplicit {
				implicit++
			} else {
				explicit++
			}
		}
	}
	m.metrics.SetGraphSize(states, virtual, explicit, implicit)
}
