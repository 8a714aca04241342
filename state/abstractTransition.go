package state

import (
	"fmt"
	"sort"
	"strings"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Code executed while an interaction was processed.
type Coverage struct {
	Statements []string
	Methods    []string
}

// Identifies a step of a recorded test trace.
type TraceStep struct {
	TraceID int
	Step    int
}

// A labeled edge of the graph together with the evidence of taking it.
type AbstractTransition struct {
	Source *AbstractState
	Dest   *AbstractState
	Action action.AbstractAction
	// Raw payload of the action, e.g. the inserted text.
	Data string
	// Canonical form of the input field values the transition depends on.
	Guard string
	// The window the source was entered from.
	PrevWindow *ewtg.Window
	// Set for synthesized edges, unset for directly observed ones.
	IsImplicit bool

	// Snapshot of the destination maps taken when the transition was created.
	GuaranteedAVMs []avm.ID

	// Event handler method -> whether it was triggered.
	Handlers map[string]bool

	interactions map[int]*gui.Interaction
	coverage     map[int]*Coverage
	userInputs   map[string]map[string]string
	traces       map[TraceStep]int
}

// Create a transition and register it on its source.
func NewTransition(source, dest *AbstractState, a action.AbstractAction, data, guard string, prevWindow *ewtg.Window, implicit bool) *AbstractTransition {
	t := &AbstractTransition{
		Source:         source,
		Dest:           dest,
		Action:         a,
		Data:           data,
		Guard:          guard,
		PrevWindow:     prevWindow,
		IsImplicit:     implicit,
		GuaranteedAVMs: dest.AVMIDs(),
		Handlers:       make(map[string]bool),
		interactions:   make(map[int]*gui.Interaction),
		coverage:       make(map[int]*Coverage),
		userInputs:     make(map[string]map[string]string),
		traces:         make(map[TraceStep]int),
	}
	source.addTransition(t)
	return t
}

func (t *AbstractTransition) IsExplicit() bool {
	return !t.IsImplicit
}

// Reports whether the transition carries the provided label.
func (t *AbstractTransition) HasLabel(a action.AbstractAction, data, guard string, prevWindow *ewtg.Window) bool {
	return t.Action == a && t.Data == data && t.Guard == guard && t.PrevWindow == prevWindow
}

// Removes the transition from its source.
func (t *AbstractTransition) Detach() {
	t.Source.RemoveTransition(t)
}

// Records an interaction witnessing the transition.
func (t *AbstractTransition) AddInteraction(in *gui.Interaction) {
	t.interactions[in.ID] = in
	if len(in.UserInputs) > 0 {
		t.userInputs[CanonicalGuard(in.UserInputs)] = maps.Clone(in.UserInputs)
	}
}

func (t *AbstractTransition) HasInteraction(id int) bool {
	_, ok := t.interactions[id]
	return ok
}

// Returns the witnessing interactions ordered by id.
func (t *AbstractTransition) Interactions() []*gui.Interaction {
	out := maps.Values(t.interactions)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Adds executed code to the coverage of the interaction.
func (t *AbstractTransition) AddCoverage(interactionID int, statements, methods []string) {
	c, ok := t.coverage[interactionID]
	if !ok {
		c = &Coverage{}
		t.coverage[interactionID] = c
	}
	c.Statements = union(c.Statements, statements)
	c.Methods = union(c.Methods, methods)
}

// Associates a step of a test trace with the interaction.
func (t *AbstractTransition) AddTrace(step TraceStep, interactionID int) {
	t.traces[step] = interactionID
}

// Moves an interaction together with its coverage and trace steps to another transition.
func (t *AbstractTransition) MoveInteraction(id int, to *AbstractTransition) {
	in, ok := t.interactions[id]
	if !ok {
		return
	}
	to.AddInteraction(in)
	delete(t.interactions, id)
	if c, ok := t.coverage[id]; ok {
		to.AddCoverage(id, c.Statements, c.Methods)
		delete(t.coverage, id)
	}
	for step, owner := range t.traces {
		if owner == id {
			to.traces[step] = id
			delete(t.traces, step)
		}
	}
	for m, triggered := range t.Handlers {
		to.Handlers[m] = to.Handlers[m] || triggered
	}
}

// Copies all evidence of other into the transition.
func (t *AbstractTransition) CopyEvidenceFrom(other *AbstractTransition) {
	for id, in := range other.interactions {
		t.interactions[id] = in
	}
	for id, c := range other.coverage {
		t.AddCoverage(id, c.Statements, c.Methods)
	}
	for g, inputs := range other.userInputs {
		t.userInputs[g] = maps.Clone(inputs)
	}
	for step, id := range other.traces {
		t.traces[step] = id
	}
	for m, triggered := range other.Handlers {
		t.Handlers[m] = t.Handlers[m] || triggered
	}
}

// Returns the executed statements of all witnessing interactions.
func (t *AbstractTransition) Statements() []string {
	out := []string{}
	for _, c := range t.coverage {
		out = union(out, c.Statements)
	}
	return out
}

// Returns the executed methods of all witnessing interactions.
func (t *AbstractTransition) Methods() []string {
	out := []string{}
	for _, c := range t.coverage {
		out = union(out, c.Methods)
	}
	return out
}

// Returns the recorded input field valuations.
func (t *AbstractTransition) UserInputs() []map[string]string {
	keys := maps.Keys(t.userInputs)
	slices.Sort(keys)
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.userInputs[k])
	}
	return out
}

// Returns the trace steps, ordered.
func (t *AbstractTransition) Traces() []TraceStep {
	out := maps.Keys(t.traces)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TraceID != out[j].TraceID {
			return out[i].TraceID < out[j].TraceID
		}
		return out[i].Step < out[j].Step
	})
	return out
}

// Reports whether the transition carries no witnessing interaction.
func (t *AbstractTransition) IsEmpty() bool {
	return len(t.interactions) == 0
}

func (t *AbstractTransition) String() string {
	kind := "explicit"
	if t.IsImplicit {
		kind = "implicit"
	}
	return fmt.Sprintf("%s -%v-> %s (%s)", t.Source.ID(), t.Action, t.Dest.ID(), kind)
}

// Canonical form of input field values: sorted key=value pairs.
func CanonicalGuard(inputs map[string]string) string {
	if len(inputs) == 0 {
		return ""
	}
	keys := maps.Keys(inputs)
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+inputs[k])
	}
	return strings.Join(parts, "&")
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := slices.Clone(a)
	for _, x := range b {
		if !slices.Contains(out, x) {
			out = append(out, x)
		}
	}
	slices.Sort(out)
	return out
}
