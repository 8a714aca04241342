package avm

import (
	"fmt"

	"dstg/gui"
)

// Identifies the attribute path of a widget: the widget and its ancestors,
// as far as the fingerprint cares about them.
type AttributePath struct {
	Activity   string
	ClassName  string
	ResourceID string
	Parent     *AttributePath
}

// Builds the attribute path of w within s.
func PathOf(s *gui.State, w *gui.Widget) *AttributePath {
	if w == nil {
		return nil
	}
	p := &AttributePath{
		Activity:   s.Activity,
		ClassName:  w.ClassName,
		ResourceID: w.ResourceID,
	}
	if parent := s.Parent(w); parent != nil {
		p.Parent = PathOf(s, parent)
	}
	return p
}

// Key identifies the path for precision bookkeeping.
func (p *AttributePath) Key() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s#%s", p.Parent.Key(), p.ClassName, p.ResourceID)
}

// Reduces a concrete snapshot to attribute valuation maps.
//
// Implementations may cache results internally but must otherwise be free of side effects.
type Reducer interface {
	Reduce(s *gui.State, env gui.Environment) (map[gui.WidgetID]*AttributeValuationMap, error)
}

// Decides how fine the reduction is, and refines it on request.
type AbstractionFunction interface {
	// Increases the precision used for the attribute path.
	// Returns false when no further split is possible.
	IncreasePrecision(path *AttributePath, activity string, fallbackOK bool, w *gui.Widget, s *gui.State) bool
	// Saves the current precision table.
	Checkpoint()
	// Restores the table saved by the last Checkpoint.
	Restore()
}
