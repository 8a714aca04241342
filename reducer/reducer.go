// Package reducer is the default fingerprint collaborator. It reduces widgets to
// attribute valuation maps at a precision level tracked per attribute path, and
// raises that level when the state manager reports an ambiguity.
package reducer

import (
	"fmt"
	"strings"

	"dstg/avm"
	"dstg/gui"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/maps"
)

const (
	// Class name, resource id and interaction flags.
	LevelStructure = iota
	// Adds the content description.
	LevelContentDesc
	// Adds the text and the checked flag.
	LevelText
	// Adds the class names of the children.
	LevelChildrenStructure
	// Adds the text of every descendant.
	LevelChildrenText

	DefaultMaxLevel  = LevelChildrenText
	DefaultCacheSize = 512
)

type cacheKey struct {
	state      gui.StateID
	rotation   gui.Rotation
	generation uint64
}

// Reducer implements both avm.Reducer and avm.AbstractionFunction.
//
// Should only be accessed from a single goroutine at a time.
type Reducer struct {
	maxLevel int
	levels   map[string]int
	saved    map[string]int

	// Incremented on every change of the level table so memoized results are never stale.
	generation uint64
	cache      *lru.Cache[cacheKey, map[gui.WidgetID]*avm.AttributeValuationMap]
}

// Create a new Reducer.
//
// maxLevel bounds the precision of any path and cacheSize the number of memoized snapshots.
func New(maxLevel, cacheSize int) (*Reducer, error) {
	if maxLevel < LevelStructure || maxLevel > LevelChildrenText {
		return nil, fmt.Errorf("reducer: max level %d out of range", maxLevel)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, map[gui.WidgetID]*avm.AttributeValuationMap](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("reducer: creating cache: %w", err)
	}
	return &Reducer{
		maxLevel: maxLevel,
		levels:   make(map[string]int),
		cache:    cache,
	}, nil
}

// Returns the precision level currently used for the path.
func (r *Reducer) Level(path *avm.AttributePath) int {
	return r.levels[path.Key()]
}

func (r *Reducer) Reduce(s *gui.State, env gui.Environment) (map[gui.WidgetID]*avm.AttributeValuationMap, error) {
	if s == nil {
		return nil, fmt.Errorf("reducer: nil snapshot")
	}
	key := cacheKey{state: s.ID, rotation: env.Rotation, generation: r.generation}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	out := make(map[gui.WidgetID]*avm.AttributeValuationMap, len(s.Widgets))
	// Parents are visited before their children so the parent id is always known
	s.Hierarchy().Walk(func(n *treeNode) bool {
		w := n.Payload()
		if w == nil {
			return true
		}
		var parent avm.ID
		if p := s.Parent(w); p != nil {
			if pm, ok := out[p.ID]; ok {
				parent = pm.ID
			}
		}
		level := r.levels[avm.PathOf(s, w).Key()]
		out[w.ID] = avm.New(s.Activity, r.attributes(s, w, level), parent, cardinality(s, w))
		return true
	})
	r.cache.Add(key, out)
	return out, nil
}

func (r *Reducer) attributes(s *gui.State, w *gui.Widget, level int) map[avm.AttributeType]string {
	attrs := map[avm.AttributeType]string{
		avm.ClassName:     w.ClassName,
		avm.ResourceID:    w.ResourceID,
		avm.Clickable:     fmt.Sprint(w.Clickable),
		avm.LongClickable: fmt.Sprint(w.LongClickable),
		avm.Scrollable:    fmt.Sprint(w.Scrollable),
		avm.Checkable:     fmt.Sprint(w.Checkable),
		avm.InputField:    fmt.Sprint(w.IsInputField),
	}
	if level >= LevelContentDesc {
		attrs[avm.ContentDesc] = w.ContentDesc
	}
	if level >= LevelText {
		// The text of an input field is what the user typed, never part of its identity
		if !w.IsInputField {
			attrs[avm.Text] = w.Text
		}
		attrs[avm.Checked] = fmt.Sprint(w.Checked)
	}
	if level >= LevelChildrenStructure {
		classes := []string{}
		for _, c := range s.Children(w) {
			classes = append(classes, c.ClassName)
		}
		attrs[avm.ChildrenStructure] = strings.Join(classes, ",")
	}
	if level >= LevelChildrenText {
		texts := []string{}
		node := s.Hierarchy().Find(w)
		if node != nil {
			node.Walk(func(n *treeNode) bool {
				if n != node && n.Payload().Text != "" {
					texts = append(texts, n.Payload().Text)
				}
				return true
			})
		}
		attrs[avm.ChildrenText] = strings.Join(texts, "|")
	}
	return attrs
}

// A widget is one of many when its scrollable parent holds other children of the same class.
func cardinality(s *gui.State, w *gui.Widget) avm.Cardinality {
	parent := s.Parent(w)
	if parent == nil || !parent.Scrollable {
		return avm.One
	}
	same := 0
	for _, sibling := range s.Children(parent) {
		if sibling.ClassName == w.ClassName {
			same++
		}
	}
	if same > 1 {
		return avm.Many
	}
	return avm.One
}

// Raises the level of the path.
//
// When the path is already at the maximum level and fallbackOK is set, the
// nearest ancestor path below the maximum is raised instead.
func (r *Reducer) IncreasePrecision(path *avm.AttributePath, activity string, fallbackOK bool, w *gui.Widget, s *gui.State) bool {
	for p := path; p != nil; p = p.Parent {
		key := p.Key()
		if r.levels[key] < r.maxLevel {
			r.levels[key]++
			r.generation++
			return true
		}
		if !fallbackOK {
			return false
		}
	}
	return false
}

func (r *Reducer) Checkpoint() {
	r.saved = maps.Clone(r.levels)
}

func (r *Reducer) Restore() {
	if r.saved == nil {
		r.levels = make(map[string]int)
	} else {
		r.levels = maps.Clone(r.saved)
	}
	r.generation++
}
