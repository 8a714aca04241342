// Package replay reads recorded explorations and feeds them into a session.
package replay

import (
	"fmt"
	"io"

	"dstg/gui"
	"dstg/state"
	"dstg/stateManager"

	"gopkg.in/yaml.v3"
)

// A recorded exploration: the snapshots captured on the device and the interactions between them.
type Recording struct {
	Snapshots    []Snapshot    `yaml:"snapshots"`
	Interactions []Interaction `yaml:"interactions"`
	// Model of a previous exploration loaded before the first snapshot.
	History *stateManager.History `yaml:"history,omitempty"`
}

type Snapshot struct {
	gui.State `yaml:",inline"`

	Rotation string `yaml:"rotation,omitempty"`
	Internet string `yaml:"internet,omitempty"`
	// Id of the static window the device layer attributed the snapshot to.
	Window string `yaml:"window,omitempty"`
}

type TraceStep struct {
	Trace int `yaml:"trace"`
	Step  int `yaml:"step"`
}

type Interaction struct {
	ID   int         `yaml:"id"`
	Prev gui.StateID `yaml:"prev"`
	Res  gui.StateID `yaml:"res"`
	// Id of the targeted widget within the previous snapshot.
	Target     gui.WidgetID      `yaml:"target,omitempty"`
	Action     string            `yaml:"action"`
	Data       string            `yaml:"data,omitempty"`
	UserInputs map[string]string `yaml:"userInputs,omitempty"`

	Statements []string        `yaml:"statements,omitempty"`
	Methods    []string        `yaml:"methods,omitempty"`
	Handlers   map[string]bool `yaml:"handlers,omitempty"`
	Traces     []TraceStep     `yaml:"traces,omitempty"`
}

func (in *Interaction) coverage() *state.Coverage {
	if len(in.Statements) == 0 && len(in.Methods) == 0 {
		return nil
	}
	return &state.Coverage{Statements: in.Statements, Methods: in.Methods}
}

// Decode a recording.
func Load(r io.Reader) (*Recording, error) {
	rec := &Recording{}
	if err := yaml.NewDecoder(r).Decode(rec); err != nil && err != io.EOF {
		return nil, fmt.Errorf("replay: decoding recording: %w", err)
	}
	seen := map[gui.StateID]bool{}
	for _, s := range rec.Snapshots {
		if s.ID == "" {
			return nil, fmt.Errorf("replay: snapshot without id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("replay: duplicate snapshot %s", s.ID)
		}
		seen[s.ID] = true
	}
	return rec, nil
}

// Encode a recording.
func Write(w io.Writer, rec *Recording) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(rec)
}
