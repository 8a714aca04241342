// Package action defines the canonical action descriptor used as an edge label
// of the state-transition graph.
package action

import (
	"fmt"
	"strings"

	"dstg/avm"
)

type Type int

const (
	Unknown Type = iota
	Click
	LongClick
	Swipe
	TextInsert
	Check
	ItemClick
	ItemLongClick
	PressBack
	PressMenu
	PressEnter
	RotateUI
	MinimizeMaximize
	EnableData
	DisableData
	LaunchApp
	ResetApp
	ActionQueue
)

var typeNames = map[Type]string{
	Unknown:          "Unknown",
	Click:            "Click",
	LongClick:        "LongClick",
	Swipe:            "Swipe",
	TextInsert:       "TextInsert",
	Check:            "Check",
	ItemClick:        "ItemClick",
	ItemLongClick:    "ItemLongClick",
	PressBack:        "PressBack",
	PressMenu:        "PressMenu",
	PressEnter:       "PressEnter",
	RotateUI:         "RotateUI",
	MinimizeMaximize: "MinimizeMaximize",
	EnableData:       "EnableData",
	DisableData:      "DisableData",
	LaunchApp:        "LaunchApp",
	ResetApp:         "ResetApp",
	ActionQueue:      "ActionQueue",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Parses an action type name, case insensitively. Unrecognized names map to Unknown.
func ParseType(name string) Type {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t
		}
	}
	return Unknown
}

type SwipeDirection string

const (
	SwipeUp    SwipeDirection = "SwipeUp"
	SwipeDown  SwipeDirection = "SwipeDown"
	SwipeLeft  SwipeDirection = "SwipeLeft"
	SwipeRight SwipeDirection = "SwipeRight"
)

// Returns the direction that undoes d, or the empty direction if d is not a swipe direction.
func (d SwipeDirection) Opposite() SwipeDirection {
	switch d {
	case SwipeUp:
		return SwipeDown
	case SwipeDown:
		return SwipeUp
	case SwipeLeft:
		return SwipeRight
	case SwipeRight:
		return SwipeLeft
	}
	return ""
}

// A canonical action descriptor.
//
// AbstractAction is a comparable value: two actions with equal fields are equal
// and can be used interchangeably as map keys.
type AbstractAction struct {
	Type Type
	// The targeted attribute valuation map. Empty for window level actions.
	Target avm.ID
	// Extra payload that distinguishes actions, e.g. the swipe direction.
	Extra string
}

func New(t Type, target avm.ID, extra string) AbstractAction {
	return AbstractAction{Type: t, Target: target, Extra: extra}
}

func (a AbstractAction) IsWidgetAction() bool {
	return a.Target != ""
}

func (a AbstractAction) IsItemAction() bool {
	return a.Type == ItemClick || a.Type == ItemLongClick
}

func (a AbstractAction) IsCheckableOrTextInput() bool {
	return a.Type == Check || a.Type == TextInsert
}

func (a AbstractAction) IsLaunchOrReset() bool {
	return a.Type == LaunchApp || a.Type == ResetApp
}

// Environment toggles change the device, not the app, and are never generalized.
func (a AbstractAction) IsEnvironmentToggle() bool {
	return a.Type == EnableData || a.Type == DisableData
}

// Returns the item level action that generalizes a click on an element of a list.
func (a AbstractAction) ItemType() (Type, bool) {
	switch a.Type {
	case Click:
		return ItemClick, true
	case LongClick:
		return ItemLongClick, true
	}
	return Unknown, false
}

// Returns the swipe that undoes this one.
func (a AbstractAction) Inverse() (AbstractAction, bool) {
	if a.Type != Swipe {
		return AbstractAction{}, false
	}
	opposite := SwipeDirection(a.Extra).Opposite()
	if opposite == "" {
		return AbstractAction{}, false
	}
	return New(Swipe, a.Target, string(opposite)), true
}

var typeWeights = map[Type]float64{
	Click:            4,
	ItemClick:        4,
	TextInsert:       3,
	LongClick:        2,
	ItemLongClick:    2,
	Check:            2,
	Swipe:            1,
	PressMenu:        1,
	PressEnter:       1,
	PressBack:        0.5,
	RotateUI:         0.5,
	MinimizeMaximize: 0.5,
}

// Heuristic priority of the action.
//
// Combines the weight of the action type with the cardinality of the target:
// an action on a widget that appears many times (a list element) is worth more.
func (a AbstractAction) Score(cardinality avm.Cardinality) float64 {
	score := typeWeights[a.Type]
	if a.IsWidgetAction() && cardinality == avm.Many {
		score *= 2
	}
	return score
}

func (a AbstractAction) String() string {
	var sb strings.Builder
	sb.WriteString(a.Type.String())
	if a.Target != "" {
		fmt.Fprintf(&sb, "(%s)", a.Target)
	}
	if a.Extra != "" {
		fmt.Fprintf(&sb, "[%s]", a.Extra)
	}
	return sb.String()
}
