package state

import (
	"errors"
	"fmt"

	"dstg/gui"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrAlreadyAssigned = errors.New("state: snapshot already belongs to another abstract state")
	ErrNotAssigned     = errors.New("state: snapshot does not belong to any abstract state")
	ErrVirtualMember   = errors.New("state: a virtual abstract state cannot own snapshots")
)

// The mapping from concrete snapshots to abstract states.
//
// Every snapshot maps to at most one abstract state, and a state's members are
// exactly the snapshots mapped to it.
type Partition struct {
	owner map[gui.StateID]*AbstractState
}

func NewPartition() *Partition {
	return &Partition{owner: make(map[gui.StateID]*AbstractState)}
}

// Maps the snapshot to the state.
//
// Assigning a snapshot to the state that already owns it is a no-op.
func (p *Partition) Assign(id gui.StateID, s *AbstractState) error {
	if s.IsVirtual() {
		return fmt.Errorf("%w: %s", ErrVirtualMember, s.ID())
	}
	if current, ok := p.owner[id]; ok {
		if current == s {
			return nil
		}
		return fmt.Errorf("%w: %s is owned by %s", ErrAlreadyAssigned, id, current.ID())
	}
	p.owner[id] = s
	s.guiStates[id] = struct{}{}
	return nil
}

// Removes the snapshot from its state and returns that state.
func (p *Partition) Unassign(id gui.StateID) (*AbstractState, error) {
	s, ok := p.owner[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAssigned, id)
	}
	delete(p.owner, id)
	delete(s.guiStates, id)
	return s, nil
}

// Returns the state owning the snapshot, or nil.
func (p *Partition) Lookup(id gui.StateID) *AbstractState {
	return p.owner[id]
}

func (p *Partition) Len() int {
	return len(p.owner)
}

// Returns all mapped snapshots, sorted.
func (p *Partition) Snapshots() []gui.StateID {
	out := maps.Keys(p.owner)
	slices.Sort(out)
	return out
}
