package replay

import (
	"errors"
	"fmt"
	"sync"

	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"
	"dstg/stateManager"
)

var ErrRunEnded = errors.New("replay: the recording has no more steps")

// A single step of a recording: either a snapshot or an interaction.
type Step struct {
	Snapshot    *Snapshot
	Interaction *Interaction
}

// Replayer orders the steps of a recording so every snapshot is recorded before the first interaction using it.
type Replayer struct {
	sync.Mutex
	steps []Step
	// The index of the next step
	index int
}

func NewReplayer(rec *Recording) *Replayer {
	byID := make(map[gui.StateID]*Snapshot, len(rec.Snapshots))
	for i := range rec.Snapshots {
		byID[rec.Snapshots[i].ID] = &rec.Snapshots[i]
	}
	emitted := map[gui.StateID]bool{}
	steps := make([]Step, 0, len(rec.Snapshots)+len(rec.Interactions))
	emit := func(id gui.StateID) {
		if s, ok := byID[id]; ok && !emitted[id] {
			emitted[id] = true
			steps = append(steps, Step{Snapshot: s})
		}
	}
	for i := range rec.Interactions {
		in := &rec.Interactions[i]
		emit(in.Prev)
		emit(in.Res)
		steps = append(steps, Step{Interaction: in})
	}
	// Snapshots no interaction refers to
	for i := range rec.Snapshots {
		emit(rec.Snapshots[i].ID)
	}
	return &Replayer{steps: steps}
}

// Get the next step. Will return ErrRunEnded if there are no more steps.
func (r *Replayer) Next() (Step, error) {
	r.Lock()
	defer r.Unlock()
	if r.index >= len(r.steps) {
		return Step{}, ErrRunEnded
	}
	s := r.steps[r.index]
	r.index++
	return s, nil
}

// Number of steps not returned yet.
func (r *Replayer) Remaining() int {
	r.Lock()
	defer r.Unlock()
	return len(r.steps) - r.index
}

// Rewind to the first step.
func (r *Replayer) Reset() {
	r.Lock()
	defer r.Unlock()
	r.index = 0
}

// The part of a session a recording is fed into.
type Recorder interface {
	Static() *ewtg.Graph
	LoadHistory(h *stateManager.History) (int, error)
	RecordSnapshot(s *gui.State, env gui.Environment, hint *ewtg.Window) (*state.AbstractState, error)
	RecordInteraction(in *gui.Interaction, coverage *state.Coverage) (*state.AbstractTransition, error)
	RecordTrace(traceID, step, interactionID int) error
	RecordHandlers(interactionID int, handlers map[string]bool) error
}

// Feed the recording into the session in order.
//
// The history of the recording, if any, is loaded first.
func Replay(rc Recorder, rec *Recording) error {
	if rec.History != nil {
		if _, err := rc.LoadHistory(rec.History); err != nil {
			return fmt.Errorf("replay: loading history: %w", err)
		}
	}
	r := NewReplayer(rec)
	byID := make(map[gui.StateID]*Snapshot, len(rec.Snapshots))
	for i := range rec.Snapshots {
		byID[rec.Snapshots[i].ID] = &rec.Snapshots[i]
	}
	for {
		step, err := r.Next()
		if errors.Is(err, ErrRunEnded) {
			return nil
		}
		switch {
		case step.Snapshot != nil:
			if err := recordSnapshot(rc, step.Snapshot); err != nil {
				return err
			}
		case step.Interaction != nil:
			if err := recordInteraction(rc, step.Interaction, byID); err != nil {
				return err
			}
		}
	}
}

func recordSnapshot(rc Recorder, s *Snapshot) error {
	rotation, err := gui.ParseRotation(s.Rotation)
	if err != nil {
		return fmt.Errorf("replay: snapshot %s: %w", s.ID, err)
	}
	internet, err := gui.ParseInternetStatus(s.Internet)
	if err != nil {
		return fmt.Errorf("replay: snapshot %s: %w", s.ID, err)
	}
	var hint *ewtg.Window
	if s.Window != "" {
		if hint, err = rc.Static().Window(s.Window); err != nil {
			return fmt.Errorf("replay: snapshot %s: %w", s.ID, err)
		}
	}
	if _, err := rc.RecordSnapshot(&s.State, gui.Environment{Rotation: rotation, Internet: internet}, hint); err != nil {
		return fmt.Errorf("replay: snapshot %s: %w", s.ID, err)
	}
	return nil
}

func recordInteraction(rc Recorder, in *Interaction, snapshots map[gui.StateID]*Snapshot) error {
	var target *gui.Widget
	if in.Target != "" {
		prev, ok := snapshots[in.Prev]
		if !ok {
			return fmt.Errorf("replay: interaction %d: %w", in.ID, &stateManager.LookupError{StateID: in.Prev, Role: stateManager.RolePrevState})
		}
		if target = prev.Widget(in.Target); target == nil {
			return fmt.Errorf("replay: interaction %d: unknown target widget %s", in.ID, in.Target)
		}
	}
	gi := &gui.Interaction{
		ID:         in.ID,
		PrevState:  in.Prev,
		ResState:   in.Res,
		Target:     target,
		Action:     in.Action,
		Data:       in.Data,
		UserInputs: in.UserInputs,
	}
	if _, err := rc.RecordInteraction(gi, in.coverage()); err != nil {
		return fmt.Errorf("replay: interaction %d: %w", in.ID, err)
	}
	if len(in.Handlers) > 0 {
		if err := rc.RecordHandlers(in.ID, in.Handlers); err != nil {
			return err
		}
	}
	for _, t := range in.Traces {
		if err := rc.RecordTrace(t.Trace, t.Step, in.ID); err != nil {
			return err
		}
	}
	return nil
}
