// Package ewtg models the statically extracted window transition graph of the
// app under test: windows, the widgets and inputs they declare, and the
// window-to-window edges triggered by those inputs.
package ewtg

import (
	"fmt"

	"dstg/action"
)

type Kind int

const (
	Activity Kind = iota
	Dialog
	OptionsMenu
	ContextMenu
	OutOfApp
	Launcher
)

func (k Kind) String() string {
	switch k {
	case Activity:
		return "Activity"
	case Dialog:
		return "Dialog"
	case OptionsMenu:
		return "OptionsMenu"
	case ContextMenu:
		return "ContextMenu"
	case OutOfApp:
		return "OutOfApp"
	case Launcher:
		return "Launcher"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "activity", "Activity":
		return Activity, nil
	case "dialog", "Dialog":
		return Dialog, nil
	case "optionsMenu", "OptionsMenu":
		return OptionsMenu, nil
	case "contextMenu", "ContextMenu":
		return ContextMenu, nil
	case "outOfApp", "OutOfApp":
		return OutOfApp, nil
	case "launcher", "Launcher":
		return Launcher, nil
	}
	return Activity, fmt.Errorf("ewtg: unknown window kind %q", s)
}

// A window of the static model.
type Window struct {
	ID   string
	Kind Kind
	// The class implementing the window.
	ClassType string
	// The activity hosting the window. For activities this is the class type.
	Activity string
	Widgets  []*Widget
	Inputs   []*Input
	// True when the window was discovered at runtime and has no static counterpart.
	RuntimeCreated bool
}

// A widget declared by a window.
type Widget struct {
	ID             string
	ClassName      string
	ResourceID     string
	Window         *Window
	RuntimeCreated bool
}

// An event declared on a window, optionally bound to a widget.
type Input struct {
	ID     string
	Action action.Type
	Widget *Widget
	Window *Window
}

func (w *Window) String() string {
	return fmt.Sprintf("%s[%s]", w.Kind, w.ID)
}

// Adds a widget to the window.
func (w *Window) AddWidget(id, className, resourceID string, runtime bool) *Widget {
	if id == "" {
		id = fmt.Sprintf("%s/%s#%s", w.ID, className, resourceID)
	}
	widget := &Widget{
		ID:             id,
		ClassName:      className,
		ResourceID:     resourceID,
		Window:         w,
		RuntimeCreated: runtime,
	}
	w.Widgets = append(w.Widgets, widget)
	return widget
}

// Returns the widgets with the provided class name and resource id.
func (w *Window) FindWidgets(className, resourceID string) []*Widget {
	out := []*Widget{}
	for _, widget := range w.Widgets {
		if widget.ClassName == className && widget.ResourceID == resourceID {
			out = append(out, widget)
		}
	}
	return out
}

// Adds an input to the window. The widget may be nil.
func (w *Window) AddInput(id string, t action.Type, widget *Widget) *Input {
	if id == "" {
		id = fmt.Sprintf("%s/input%d", w.ID, len(w.Inputs))
	}
	in := &Input{ID: id, Action: t, Widget: widget, Window: w}
	w.Inputs = append(w.Inputs, in)
	return in
}

// Returns the input with the provided id, or nil.
func (w *Window) Input(id string) *Input {
	for _, in := range w.Inputs {
		if in.ID == id {
			return in
		}
	}
	return nil
}

func (w *Window) widget(id string) *Widget {
	for _, widget := range w.Widgets {
		if widget.ID == id {
			return widget
		}
	}
	return nil
}
