package tree

import (
	"fmt"
	"strings"
)

// A rooted tree of payloads.
//
// Used for the widget hierarchy of a concrete snapshot. The eq function decides
// whether two payloads denote the same node.
type Tree[T any] struct {
	payload  T
	parent   *Tree[T]
	children []*Tree[T]
	depth    int
	eq       func(a, b T) bool
}

func New[T any](payload T, eq func(a, b T) bool) *Tree[T] {
	return &Tree[T]{
		payload:  payload,
		parent:   nil,
		children: []*Tree[T]{},
		depth:    0,
		eq:       eq,
	}
}

// Returns the total number of elements in the tree
func (t *Tree[T]) Len() int {
	len := 1
	for _, child := range t.children {
		len += child.Len()
	}
	return len
}

// Adds a new child with the provided payload as a child of the current Tree
// Returns the child when done
func (t *Tree[T]) AddChild(payload T) *Tree[T] {
	treeNode := &Tree[T]{
		payload:  payload,
		parent:   t,
		children: []*Tree[T]{},
		depth:    t.depth + 1,
		eq:       t.eq,
	}
	t.children = append(t.children, treeNode)
	return treeNode
}

// Returns the first child node with the provided payload.
// If no such child node exists returns nil
func (t *Tree[T]) GetChild(payload T) *Tree[T] {
	for _, node := range t.children {
		if t.eq(payload, node.payload) {
			return node
		}
	}
	return nil
}

// Returns the first node in the subtree, searched depth first, whose payload is equal to the provided payload.
// Returns nil if there is no such node.
func (t *Tree[T]) Find(payload T) *Tree[T] {
	if t.eq(payload, t.payload) {
		return t
	}
	for _, child := range t.children {
		if found := child.Find(payload); found != nil {
			return found
		}
	}
	return nil
}

// Calls visit on every node of the subtree in depth first order.
// The walk stops descending below a node when visit returns false for it.
func (t *Tree[T]) Walk(visit func(*Tree[T]) bool) {
	if !visit(t) {
		return
	}
	for _, child := range t.children {
		child.Walk(visit)
	}
}

// Returns the payloads of the ancestors of the node, nearest first. The root is included.
func (t *Tree[T]) Ancestors() []T {
	out := []T{}
	for p := t.parent; p != nil; p = p.parent {
		out = append(out, p.payload)
	}
	return out
}

// Returns true if the search function is true for some node
// Performs a DFS to find the node
func (t *Tree[T]) DepthFirstSearch(search func(T) bool) bool {
	if search(t.payload) {
		return true
	}
	for _, child := range t.children {
		if child.DepthFirstSearch(search) {
			return true
		}
	}
	return false
}

func (t *Tree[T]) IsRoot() bool {
	return t.parent == nil
}

func (t *Tree[T]) IsLeafNode() bool {
	return len(t.children) == 0
}

func (t *Tree[T]) Payload() T {
	return t.payload
}

func (t *Tree[T]) Parent() *Tree[T] {
	return t.parent
}

func (t *Tree[T]) Depth() int {
	return t.depth
}

func (t *Tree[T]) Children() []*Tree[T] {
	return t.children
}

// String representation of the subtree, one node per line indented by depth
func (t *Tree[T]) String() string {
	out := strings.Builder{}
	for i := 0; i < t.depth; i++ {
		out.WriteString("-")
	}
	out.WriteString(fmt.Sprintf("%v\n", t.payload))
	for _, child := range t.children {
		out.WriteString(child.String())
	}
	return out.String()
}
