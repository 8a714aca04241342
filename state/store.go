package state

import (
	"errors"
	"fmt"

	"dstg/ewtg"
	"dstg/gui"

	"golang.org/x/exp/slices"
)

var ErrDuplicateVirtual = errors.New("state: window already has a virtual abstract state")

// The repository of abstract states.
//
// Keeps states in creation order and indexes the single virtual state of each window.
type Store struct {
	states  []*AbstractState
	byID    map[string]*AbstractState
	virtual map[*ewtg.Window]*AbstractState
}

func NewStore() *Store {
	return &Store{
		states:  make([]*AbstractState, 0),
		byID:    make(map[string]*AbstractState),
		virtual: make(map[*ewtg.Window]*AbstractState),
	}
}

func (st *Store) Add(s *AbstractState) error {
	if s.IsVirtual() {
		if _, ok := st.virtual[s.Window]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateVirtual, s.Window)
		}
		st.virtual[s.Window] = s
	}
	st.states = append(st.states, s)
	st.byID[s.ID()] = s
	return nil
}

// Removes the state together with every transition entering it.
//
// Returns the removed incoming transitions.
func (st *Store) Remove(s *AbstractState) []*AbstractTransition {
	i := slices.Index(st.states, s)
	if i < 0 {
		return nil
	}
	st.states = slices.Delete(st.states, i, i+1)
	delete(st.byID, s.ID())
	if s.IsVirtual() && st.virtual[s.Window] == s {
		delete(st.virtual, s.Window)
	}
	incoming := st.Incoming(s)
	for _, t := range incoming {
		t.Detach()
	}
	return incoming
}

func (st *Store) Contains(s *AbstractState) bool {
	_, ok := st.byID[s.ID()]
	return ok && st.byID[s.ID()] == s
}

func (st *Store) ByID(id string) *AbstractState {
	return st.byID[id]
}

// Returns the states in creation order.
func (st *Store) All(includeVirtual bool) []*AbstractState {
	out := make([]*AbstractState, 0, len(st.states))
	for _, s := range st.states {
		if s.IsVirtual() && !includeVirtual {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (st *Store) Len(includeVirtual bool) int {
	return len(st.All(includeVirtual))
}

// Returns the states of the window.
func (st *Store) ByWindow(w *ewtg.Window, includeVirtual bool) []*AbstractState {
	out := []*AbstractState{}
	for _, s := range st.All(includeVirtual) {
		if s.Window == w {
			out = append(out, s)
		}
	}
	return out
}

// Returns the states of the activity.
func (st *Store) ByActivity(activity string, includeVirtual bool) []*AbstractState {
	out := []*AbstractState{}
	for _, s := range st.All(includeVirtual) {
		if s.Activity == activity {
			out = append(out, s)
		}
	}
	return out
}

// Returns the non virtual states captured in the provided context.
func (st *Store) Matching(activity string, rotation gui.Rotation, keyboard bool, internet gui.InternetStatus) []*AbstractState {
	out := []*AbstractState{}
	for _, s := range st.All(false) {
		if s.Matches(activity, rotation, keyboard, internet) {
			out = append(out, s)
		}
	}
	return out
}

// Returns the virtual state of the window, or nil.
func (st *Store) Virtual(w *ewtg.Window) *AbstractState {
	return st.virtual[w]
}

// Returns every transition entering the state.
func (st *Store) Incoming(s *AbstractState) []*AbstractTransition {
	out := []*AbstractTransition{}
	for _, src := range st.states {
		for _, t := range src.transitions {
			if t.Dest == s {
				out = append(out, t)
			}
		}
	}
	return out
}
