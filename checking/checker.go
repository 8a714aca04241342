// Package checking verifies the invariants of the state-transition graph.
package checking

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"dstg/gui"
	"dstg/state"
)

// The read only view of the graph the predicates are evaluated on.
type Model interface {
	States(includeVirtual bool) []*state.AbstractState
	StateOf(id gui.StateID) *state.AbstractState
	// All concrete snapshots recorded so far.
	Snapshots() []gui.StateID
}

// A function evaluated on the model.
// It returns nil if the property holds and an error describing a counterexample otherwise.
type Predicate func(m Model) error

// A named predicate.
type Property struct {
	Name string
	Pred Predicate
}

// Returned when a property does not hold.
type Violation struct {
	Property string
	Err      error
}

func (v Violation) Error() string {
	return fmt.Sprintf("checking: property %q violated: %v", v.Property, v.Err)
}

func (v Violation) Unwrap() error {
	return v.Err
}

type Response struct {
	// True if all properties hold.
	Result     bool
	Violations []Violation
}

// Generate a response.
// Returns two parameters, result, and description.
// Result is true if all properties hold, false otherwise.
// The description lists every violated property.
func (r Response) Response() (bool, string) {
	if r.Result {
		return true, "All properties hold"
	}
	var buffer bytes.Buffer
	wrt := tabwriter.NewWriter(&buffer, 4, 4, 1, ' ', 0)
	fmt.Fprintf(wrt, "%v properties violated:\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(wrt, "-> %v\t%v\n", v.Property, v.Err)
	}
	wrt.Flush()
	return false, buffer.String()
}

// Returns the first violation, or nil.
func (r Response) Err() error {
	if r.Result {
		return nil
	}
	return r.Violations[0]
}

type Checker struct {
	properties []Property
}

func NewChecker(properties ...Property) *Checker {
	return &Checker{properties: properties}
}

// Create a checker for every invariant of the graph.
func NewInvariantChecker() *Checker {
	return NewChecker(
		Property{"partition is exact", PartitionIsExact},
		Property{"hashes are stable", HashesAreStable},
		Property{"transitions reference present states", TransitionsReferencePresentStates},
		Property{"one virtual state per window", OneVirtualPerWindow},
		Property{"no duplicate hashes", NoDuplicateHashes},
	)
}

// Evaluates every property on the model.
func (c *Checker) Check(m Model) Response {
	resp := Response{Result: true}
	for _, p := range c.properties {
		if err := p.Pred(m); err != nil {
			resp.Result = false
			resp.Violations = append(resp.Violations, Violation{Property: p.Name, Err: err})
		}
	}
	return resp
}
