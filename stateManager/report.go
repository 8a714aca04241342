package stateManager

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dstg/state"

	"gopkg.in/yaml.v3"
)

const (
	ReportFile      = "AbstractStateList.csv"
	ReportDetailDir = "AbstractStates"
)

var reportHeader = []string{
	"abstractStateID",
	"activity",
	"window",
	"rotation",
	"internetStatus",
	"isHomeScreen",
	"isRequestRuntimePermissionDialogBox",
	"isAppHasStoppedDialogBox",
	"isOutOfApplication",
	"isOpeningKeyboard",
	"hasOptionsMenu",
	"guiStates",
}

// Write the state list and one detail file per non virtual state into dir.
func (m *Manager) WriteReport(dir string) error {
	details := filepath.Join(dir, ReportDetailDir)
	if err := os.MkdirAll(details, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, ReportFile))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := m.WriteStateList(f); err != nil {
		return err
	}
	for _, s := range m.States(false) {
		if err := writeDetail(filepath.Join(details, "AbstractState_"+s.ID()+".yaml"), s); err != nil {
			return err
		}
	}
	return nil
}

// Write the semicolon separated state list: a header and one row per non virtual state.
func (m *Manager) WriteStateList(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, strings.Join(reportHeader, ";"))
	for _, s := range m.States(false) {
		members := make([]string, 0)
		for _, id := range s.GUIStates() {
			members = append(members, string(id))
		}
		fmt.Fprintf(bw, "%s;%s;%s;%s;%s;%t;%t;%t;%t;%t;%t;\"%s\"\n",
			s.ID(),
			s.Activity,
			s.Window.ID,
			s.Rotation,
			s.Internet,
			s.IsHomeScreen,
			s.IsRequestRuntimePermissionDialogBox,
			s.IsAppHasStoppedDialogBox,
			s.IsOutOfApplication,
			s.IsOpeningKeyboard,
			s.HasOptionsMenu,
			strings.Join(members, ";"),
		)
	}
	return bw.Flush()
}

type avmDetail struct {
	ID            string            `yaml:"id"`
	Parent        string            `yaml:"parent,omitempty"`
	Cardinality   string            `yaml:"cardinality"`
	Attributes    map[string]string `yaml:"attributes"`
	StaticWidgets []string          `yaml:"staticWidgets,omitempty"`
}

type actionDetail struct {
	Action string `yaml:"action"`
	Count  int    `yaml:"count"`
}

type transitionDetail struct {
	Action       string          `yaml:"action"`
	Data         string          `yaml:"data,omitempty"`
	Guard        string          `yaml:"guard,omitempty"`
	PrevWindow   string          `yaml:"prevWindow,omitempty"`
	Dest         string          `yaml:"dest"`
	DestWindow   string          `yaml:"destWindow"`
	Implicit     bool            `yaml:"implicit"`
	Interactions []int           `yaml:"interactions,omitempty"`
	Statements   int             `yaml:"statements"`
	Methods      int             `yaml:"methods"`
	Handlers     map[string]bool `yaml:"handlers,omitempty"`
}

type stateDetail struct {
	ID          string             `yaml:"id"`
	Window      string             `yaml:"window"`
	Activity    string             `yaml:"activity"`
	Rotation    string             `yaml:"rotation"`
	Internet    string             `yaml:"internet"`
	GUIStates   []string           `yaml:"guiStates"`
	AVMs        []avmDetail        `yaml:"avms"`
	Actions     []actionDetail     `yaml:"actions"`
	Transitions []transitionDetail `yaml:"transitions"`
}

func writeDetail(path string, s *state.AbstractState) error {
	d := stateDetail{
		ID:       s.ID(),
		Window:   s.Window.ID,
		Activity: s.Activity,
		Rotation: s.Rotation.String(),
		Internet: s.Internet.String(),
	}
	for _, id := range s.GUIStates() {
		d.GUIStates = append(d.GUIStates, string(id))
	}
	for _, am := range s.AVMs() {
		ad := avmDetail{
			ID:          string(am.ID),
			Parent:      string(am.ParentID),
			Cardinality: am.Cardinality.String(),
			Attributes:  map[string]string{},
		}
		for k, v := range am.Attributes {
			ad.Attributes[k.String()] = v
		}
		for _, w := range s.StaticWidgets(am.ID) {
			ad.StaticWidgets = append(ad.StaticWidgets, w.ID)
		}
		d.AVMs = append(d.AVMs, ad)
	}
	for _, a := range s.Actions() {
		d.Actions = append(d.Actions, actionDetail{Action: a.String(), Count: s.ActionCount(a)})
	}
	for _, t := range s.Transitions() {
		td := transitionDetail{
			Action:     t.Action.String(),
			Data:       t.Data,
			Guard:      t.Guard,
			Dest:       t.Dest.ID(),
			DestWindow: t.Dest.Window.ID,
			Implicit:   t.IsImplicit,
			Statements: len(t.Statements()),
			Methods:    len(t.Methods()),
			Handlers:   t.Handlers,
		}
		if t.PrevWindow != nil {
			td.PrevWindow = t.PrevWindow.ID
		}
		for _, in := range t.Interactions() {
			td.Interactions = append(td.Interactions, in.ID)
		}
		d.Transitions = append(d.Transitions, td)
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// Write the graph in Graphviz DOT format. Virtual states and implicit transitions are dashed.
func (m *Manager) WriteDOT(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("digraph DSTG {\n")
	sb.WriteString("    rankdir=LR;\n")
	sb.WriteString("    node [fontname=\"Helvetica\", fontsize=11, shape=box];\n")
	sb.WriteString("    edge [fontname=\"Helvetica\", fontsize=10];\n")
	sb.WriteString("\n")

	for _, s := range m.States(true) {
		attrs := []string{fmt.Sprintf("label=\"%s\\n%s\"", escapeDOT(s.Window.ID), shortID(s.ID()))}
		if s.IsVirtual() {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(&sb, "    \"%s\" [%s];\n", s.ID(), strings.Join(attrs, ", "))
	}
	sb.WriteString("\n")

	for _, s := range m.States(true) {
		for _, t := range s.Transitions() {
			attrs := []string{fmt.Sprintf("label=\"%s\"", escapeDOT(t.Action.Type.String()))}
			if t.IsImplicit {
				attrs = append(attrs, "style=dashed")
			}
			fmt.Fprintf(&sb, "    \"%s\" -> \"%s\" [%s];\n", t.Source.ID(), t.Dest.ID(), strings.Join(attrs, ", "))
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
