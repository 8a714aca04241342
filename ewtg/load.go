package ewtg

import (
	"fmt"
	"io"

	"dstg/action"

	"gopkg.in/yaml.v3"
)

type fileWidget struct {
	ID         string `yaml:"id"`
	ClassName  string `yaml:"class"`
	ResourceID string `yaml:"resourceId"`
}

type fileInput struct {
	ID     string `yaml:"id"`
	Action string `yaml:"action"`
	Widget string `yaml:"widget"`
}

type fileWindow struct {
	ID        string       `yaml:"id"`
	Kind      string       `yaml:"kind"`
	ClassType string       `yaml:"class"`
	Activity  string       `yaml:"activity"`
	Widgets   []fileWidget `yaml:"widgets"`
	Inputs    []fileInput  `yaml:"inputs"`
}

type fileEdge struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Input  string `yaml:"input"`
}

type file struct {
	Windows []fileWindow `yaml:"windows"`
	Edges   []fileEdge   `yaml:"edges"`
}

// Reads a static window graph from its YAML representation.
func Load(r io.Reader) (*Graph, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ewtg: decoding model: %w", err)
	}
	g := NewGraph()
	for _, fw := range f.Windows {
		kind, err := ParseKind(fw.Kind)
		if err != nil {
			return nil, err
		}
		w := g.AddWindow(fw.ID, kind, fw.ClassType, fw.Activity)
		for _, widget := range fw.Widgets {
			w.AddWidget(widget.ID, widget.ClassName, widget.ResourceID, false)
		}
		for _, in := range fw.Inputs {
			var widget *Widget
			if in.Widget != "" {
				if widget = w.widget(in.Widget); widget == nil {
					return nil, fmt.Errorf("ewtg: input %s of window %s references unknown widget %s", in.ID, w.ID, in.Widget)
				}
			}
			t := action.ParseType(in.Action)
			if t == action.Unknown {
				return nil, fmt.Errorf("ewtg: input %s of window %s has unknown action %q", in.ID, w.ID, in.Action)
			}
			w.AddInput(in.ID, t, widget)
		}
	}
	for _, fe := range f.Edges {
		source, err := g.Window(fe.Source)
		if err != nil {
			return nil, err
		}
		target, err := g.Window(fe.Target)
		if err != nil {
			return nil, err
		}
		input := source.Input(fe.Input)
		if input == nil {
			return nil, fmt.Errorf("ewtg: edge %s->%s references unknown input %s", fe.Source, fe.Target, fe.Input)
		}
		g.AddEdge(source, target, input)
	}
	return g, nil
}
