package checking

import (
	"fmt"

	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"
)

// Every recorded snapshot belongs to exactly one abstract state and no virtual state owns a snapshot.
func PartitionIsExact(m Model) error {
	owners := map[gui.StateID][]*state.AbstractState{}
	for _, s := range m.States(true) {
		members := s.GUIStates()
		if s.IsVirtual() && len(members) > 0 {
			return fmt.Errorf("virtual state %s owns %v snapshots", s.ID(), len(members))
		}
		for _, id := range members {
			owners[id] = append(owners[id], s)
		}
	}
	for _, id := range m.Snapshots() {
		switch len(owners[id]) {
		case 0:
			return fmt.Errorf("snapshot %s has no abstract state", id)
		case 1:
			if m.StateOf(id) != owners[id][0] {
				return fmt.Errorf("snapshot %s is listed by %s but maps to another state", id, owners[id][0].ID())
			}
		default:
			return fmt.Errorf("snapshot %s belongs to %v abstract states", id, len(owners[id]))
		}
	}
	return nil
}

// Recomputing the structural hash of a state reproduces its stored hash.
func HashesAreStable(m Model) error {
	for _, s := range m.States(true) {
		if s.Hash() != s.RecomputeHash() {
			return fmt.Errorf("state %s has a stale hash", s.ID())
		}
	}
	return nil
}

// Every transition references only states that are present.
func TransitionsReferencePresentStates(m Model) error {
	present := map[*state.AbstractState]bool{}
	for _, s := range m.States(true) {
		present[s] = true
	}
	for _, s := range m.States(true) {
		for _, t := range s.Transitions() {
			if t.Source != s {
				return fmt.Errorf("transition %v is registered on %s but has another source", t, s.ID())
			}
			if !present[t.Dest] {
				return fmt.Errorf("transition %v references a removed destination", t)
			}
		}
	}
	return nil
}

// There is at most one virtual state per window.
func OneVirtualPerWindow(m Model) error {
	seen := map[*ewtg.Window]bool{}
	for _, s := range m.States(true) {
		if !s.IsVirtual() {
			continue
		}
		if seen[s.Window] {
			return fmt.Errorf("window %s has more than one virtual state", s.Window)
		}
		seen[s.Window] = true
	}
	return nil
}

// No two non virtual states share a structural hash. The special singleton screens are exempt.
func NoDuplicateHashes(m Model) error {
	seen := map[uint64]*state.AbstractState{}
	for _, s := range m.States(false) {
		if s.IsSingleton() {
			continue
		}
		if other, ok := seen[s.Hash()]; ok {
			return fmt.Errorf("states %s and %s share a structural hash", other.ID(), s.ID())
		}
		seen[s.Hash()] = s
	}
	return nil
}
