package tree

import (
	"testing"

	"golang.org/x/exp/slices"
)

func TestTreeAddChild(t *testing.T) {
	tree := New("Tree 1", func(a, b string) bool { return a == b })
	tree.AddChild("Tree 1-1")
	child := tree.AddChild("Tree 1-2")
	child.AddChild("Tree 1-2-1")

	if !tree.IsRoot() {
		t.Fatalf("Tree should be root node")
	}
	if tree.Len() != 4 {
		t.Fatalf("Added four elements to the tree. Has length: %v", tree.Len())
	}
	if len(tree.Children()) != 2 {
		t.Fatalf("Added two children to the tree. Got: %v", len(tree.Children()))
	}
	if child.IsRoot() {
		t.Fatalf("This should be a child node. IsRoot(): %v", child.IsRoot())
	}
	if !tree.DepthFirstSearch(func(s string) bool { return s == "Tree 1-2-1" }) {
		t.Fatalf("The value \"Tree 1-2-1\" should be a descendant of this node")
	}
	if tree.GetChild("Tree 1-2-1") != nil {
		t.Fatalf("\"Tree 1-2-1\" is a grandchild and should not be returned by GetChild")
	}
}

func TestTreeAncestors(t *testing.T) {
	for i, test := range ancestorTest {
		root := New("root", func(a, b string) bool { return a == b })
		node := root
		for _, p := range test.path {
			node = node.AddChild(p)
		}
		found := root.Find(test.find)
		if found == nil {
			t.Errorf("Test %v: Unable to find %v", i, test.find)
			continue
		}
		if got := found.Ancestors(); !slices.Equal(got, test.expected) {
			t.Errorf("Test %v: Unexpected ancestors. Got %v. Expected %v", i, got, test.expected)
		}
		if found.Depth() != len(test.expected) {
			t.Errorf("Test %v: Unexpected depth %v", i, found.Depth())
		}
	}
}

func TestTreeWalkPrunes(t *testing.T) {
	root := New(0, func(a, b int) bool { return a == b })
	a := root.AddChild(1)
	a.AddChild(2)
	root.AddChild(3)

	visited := []int{}
	root.Walk(func(n *Tree[int]) bool {
		visited = append(visited, n.Payload())
		return n.Payload() != 1
	})
	if !slices.Equal(visited, []int{0, 1, 3}) {
		t.Errorf("Walk should not descend below a pruned node. Visited %v", visited)
	}
}

var ancestorTest = []struct {
	path     []string
	find     string
	expected []string
}{
	{[]string{"a"}, "a", []string{"root"}},
	{[]string{"a", "b", "c"}, "c", []string{"b", "a", "root"}},
	{[]string{"a", "b", "c"}, "b", []string{"a", "root"}},
}
