package checking

import (
	"errors"
	"testing"

	"dstg/action"
	"dstg/avm"
	"dstg/ewtg"
	"dstg/gui"
	"dstg/state"
)

type mockModel struct {
	states    []*state.AbstractState
	partition *state.Partition
	snapshots []gui.StateID
}

func (m *mockModel) States(includeVirtual bool) []*state.AbstractState {
	out := []*state.AbstractState{}
	for _, s := range m.states {
		if s.IsVirtual() && !includeVirtual {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *mockModel) StateOf(id gui.StateID) *state.AbstractState {
	return m.partition.Lookup(id)
}

func (m *mockModel) Snapshots() []gui.StateID {
	return m.snapshots
}

var main = &ewtg.Window{ID: "Main", Activity: "Main"}

func newState(maps ...*avm.AttributeValuationMap) *state.AbstractState {
	return state.New(state.Attributes{Window: main, Activity: "Main", Maps: maps})
}

func TestInvariantsHold(t *testing.T) {
	a := newState(avm.Placeholder("Main", "Button", "ok"))
	b := newState(avm.Placeholder("Main", "Button", "cancel"))
	v := state.NewVirtual(main, nil)
	p := state.NewPartition()
	p.Assign("s1", a)
	p.Assign("s2", b)
	state.NewTransition(a, b, action.New(action.Click, "x", ""), "", "", nil, false)

	m := &mockModel{states: []*state.AbstractState{a, b, v}, partition: p, snapshots: []gui.StateID{"s1", "s2"}}
	resp := NewInvariantChecker().Check(m)
	if ok, desc := resp.Response(); !ok {
		t.Errorf("Expected all invariants to hold. Got: %v", desc)
	}
	if resp.Err() != nil {
		t.Errorf("Expected no error")
	}
}

func TestInvariantsViolated(t *testing.T) {
	for i, test := range violationTest {
		m := test.model()
		resp := NewInvariantChecker().Check(m)
		if resp.Result {
			t.Errorf("Test %v: Expected a violation", i)
			continue
		}
		var v Violation
		if !errors.As(resp.Err(), &v) || v.Property != test.property {
			t.Errorf("Test %v: Unexpected violation %v", i, resp.Err())
		}
	}
}

var violationTest = []struct {
	property string
	model    func() *mockModel
}{
	{
		property: "partition is exact",
		model: func() *mockModel {
			return &mockModel{partition: state.NewPartition(), snapshots: []gui.StateID{"s1"}}
		},
	},
	{
		property: "transitions reference present states",
		model: func() *mockModel {
			a := newState(avm.Placeholder("Main", "Button", "ok"))
			gone := newState()
			state.NewTransition(a, gone, action.New(action.PressBack, "", ""), "", "", nil, false)
			return &mockModel{states: []*state.AbstractState{a}, partition: state.NewPartition()}
		},
	},
	{
		property: "one virtual state per window",
		model: func() *mockModel {
			return &mockModel{
				states:    []*state.AbstractState{state.NewVirtual(main, nil), state.NewVirtual(main, nil)},
				partition: state.NewPartition(),
			}
		},
	},
	{
		property: "no duplicate hashes",
		model: func() *mockModel {
			return &mockModel{
				states:    []*state.AbstractState{newState(), newState()},
				partition: state.NewPartition(),
			}
		},
	},
}
