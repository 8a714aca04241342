// Package avm defines the attribute valuation map, the fingerprint that decides
// whether two concrete widgets are the same logical element, and the
// collaborator interfaces that produce and refine it.
package avm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type ID string

type Cardinality int

const (
	One Cardinality = iota
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "MANY"
	}
	return "ONE"
}

func ParseCardinality(s string) Cardinality {
	if strings.EqualFold(s, "many") {
		return Many
	}
	return One
}

type AttributeType int

const (
	ClassName AttributeType = iota
	ResourceID
	ContentDesc
	Text
	Clickable
	LongClickable
	Scrollable
	Checkable
	Checked
	InputField
	ChildrenStructure
	ChildrenText
)

var attributeNames = [...]string{
	ClassName:         "className",
	ResourceID:        "resourceId",
	ContentDesc:       "contentDesc",
	Text:              "text",
	Clickable:         "clickable",
	LongClickable:     "longClickable",
	Scrollable:        "scrollable",
	Checkable:         "checkable",
	Checked:           "checked",
	InputField:        "inputField",
	ChildrenStructure: "childrenStructure",
	ChildrenText:      "childrenText",
}

func (a AttributeType) String() string {
	if int(a) < len(attributeNames) {
		return attributeNames[a]
	}
	return fmt.Sprintf("AttributeType(%d)", int(a))
}

func ParseAttributeType(name string) (AttributeType, error) {
	for t, n := range attributeNames {
		if n == name {
			return AttributeType(t), nil
		}
	}
	return ClassName, fmt.Errorf("avm: unknown attribute %q", name)
}

// A canonical fingerprint of a widget.
//
// The id is derived from the attributes, the parent id and the cardinality,
// so two maps built from the same valuation always carry the same id.
type AttributeValuationMap struct {
	ID          ID
	Activity    string
	Attributes  map[AttributeType]string
	ParentID    ID
	Cardinality Cardinality
}

// Creates an attribute valuation map and derives its id.
func New(activity string, attributes map[AttributeType]string, parent ID, cardinality Cardinality) *AttributeValuationMap {
	m := &AttributeValuationMap{
		Activity:    activity,
		Attributes:  attributes,
		ParentID:    parent,
		Cardinality: cardinality,
	}
	m.ID = ID(fmt.Sprintf("%016x", xxhash.Sum64String(m.canonical())))
	return m
}

// Synthesizes a map for a statically declared widget that has not been observed.
func Placeholder(activity, className, resourceID string) *AttributeValuationMap {
	return New(activity, map[AttributeType]string{
		ClassName:  className,
		ResourceID: resourceID,
		Clickable:  "true",
	}, "", One)
}

func (m *AttributeValuationMap) canonical() string {
	keys := make([]int, 0, len(m.Attributes))
	for k := range m.Attributes {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	var sb strings.Builder
	sb.WriteString(m.Activity)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%d=%s", k, m.Attributes[AttributeType(k)])
	}
	fmt.Fprintf(&sb, "|p=%s|c=%d", m.ParentID, m.Cardinality)
	return sb.String()
}

func (m *AttributeValuationMap) ClassName() string {
	return m.Attributes[ClassName]
}

func (m *AttributeValuationMap) ResourceID() string {
	return m.Attributes[ResourceID]
}

func (m *AttributeValuationMap) flag(a AttributeType) bool {
	return m.Attributes[a] == "true"
}

func (m *AttributeValuationMap) IsClickable() bool     { return m.flag(Clickable) }
func (m *AttributeValuationMap) IsLongClickable() bool { return m.flag(LongClickable) }
func (m *AttributeValuationMap) IsScrollable() bool    { return m.flag(Scrollable) }
func (m *AttributeValuationMap) IsCheckable() bool     { return m.flag(Checkable) }
func (m *AttributeValuationMap) IsInputField() bool    { return m.flag(InputField) }

// Reports whether both maps fingerprint the same declared widget, ignoring
// attributes whose precision may differ.
func (m *AttributeValuationMap) SameWidgetIdentity(other *AttributeValuationMap) bool {
	if other == nil {
		return false
	}
	return m.ClassName() == other.ClassName() && m.ResourceID() == other.ResourceID()
}

func (m *AttributeValuationMap) String() string {
	return fmt.Sprintf("AVM[%s %s#%s %v]", m.ID, m.ClassName(), m.ResourceID(), m.Cardinality)
}

// Returns the fraction of maps in a whose widget identity also appears in b.
// Returns 0 when a is empty.
func Overlap(a, b []*AttributeValuationMap) float64 {
	if len(a) == 0 {
		return 0
	}
	matched := 0
	for _, x := range a {
		for _, y := range b {
			if x.SameWidgetIdentity(y) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(a))
}
