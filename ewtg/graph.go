package ewtg

import (
	"errors"
	"fmt"
)

var ErrUnknownWindow = errors.New("ewtg: unknown window")

// A window-to-window edge triggered by an input of the source window.
type Edge struct {
	Source *Window
	Target *Window
	Input  *Input
}

// The static window graph.
type Graph struct {
	windows []*Window
	byID    map[string]*Window
	edges   []*Edge

	runtimeSeq int
}

func NewGraph() *Graph {
	return &Graph{
		windows: make([]*Window, 0),
		byID:    make(map[string]*Window),
		edges:   make([]*Edge, 0),
	}
}

// Adds a window to the graph. Returns the existing window if the id is already used.
func (g *Graph) AddWindow(id string, kind Kind, classType, activity string) *Window {
	if w, ok := g.byID[id]; ok {
		return w
	}
	if activity == "" && kind == Activity {
		activity = classType
	}
	w := &Window{
		ID:        id,
		Kind:      kind,
		ClassType: classType,
		Activity:  activity,
	}
	g.windows = append(g.windows, w)
	g.byID[id] = w
	return w
}

// Creates a window that was discovered at runtime and has no static counterpart.
func (g *Graph) NewRuntimeWindow(kind Kind, activity string) *Window {
	g.runtimeSeq++
	id := fmt.Sprintf("%s-%s-runtime%d", kind, activity, g.runtimeSeq)
	w := g.AddWindow(id, kind, activity, activity)
	w.RuntimeCreated = true
	return w
}

func (g *Graph) Window(id string) (*Window, error) {
	w, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWindow, id)
	}
	return w, nil
}

func (g *Graph) Windows() []*Window {
	return g.windows
}

// Returns the activity window implemented by the provided class, or nil.
func (g *Graph) ActivityWindow(activity string) *Window {
	for _, w := range g.windows {
		if w.Kind == Activity && w.ClassType == activity {
			return w
		}
	}
	return nil
}

// Returns all windows hosted by the activity.
func (g *Graph) WindowsOf(activity string) []*Window {
	out := []*Window{}
	for _, w := range g.windows {
		if w.Activity == activity {
			out = append(out, w)
		}
	}
	return out
}

// Returns the windows of the provided kind hosted by the activity.
func (g *Graph) WindowsOfKind(activity string, kind Kind) []*Window {
	out := []*Window{}
	for _, w := range g.windows {
		if w.Activity == activity && w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

// Returns the single window standing for any screen outside the app.
func (g *Graph) OutOfApp() *Window {
	for _, w := range g.windows {
		if w.Kind == OutOfApp {
			return w
		}
	}
	return g.AddWindow("OutOfApp", OutOfApp, "", "")
}

// Returns the single window standing for the device home screen.
func (g *Graph) Launcher() *Window {
	for _, w := range g.windows {
		if w.Kind == Launcher {
			return w
		}
	}
	return g.AddWindow("Launcher", Launcher, "", "")
}

func (g *Graph) AddEdge(source, target *Window, input *Input) *Edge {
	e := &Edge{Source: source, Target: target, Input: input}
	g.edges = append(g.edges, e)
	return e
}

// Returns the edges leaving the window.
func (g *Graph) EdgesFrom(w *Window) []*Edge {
	out := []*Edge{}
	for _, e := range g.edges {
		if e.Source == w {
			out = append(out, e)
		}
	}
	return out
}

// Returns the edges entering the window.
func (g *Graph) EdgesTo(w *Window) []*Edge {
	out := []*Edge{}
	for _, e := range g.edges {
		if e.Target == w {
			out = append(out, e)
		}
	}
	return out
}
