// Package pathCache memoizes search paths over the state-transition graph.
package pathCache

import (
	"errors"

	"dstg/state"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSize = 256

var ErrEmptyPath = errors.New("pathCache: cannot cache an empty path")

// A sequence of transitions, each starting where the previous one ends.
type Path []*state.AbstractTransition

func (p Path) Source() *state.AbstractState {
	return p[0].Source
}

func (p Path) Dest() *state.AbstractState {
	return p[len(p)-1].Dest
}

// Reports whether any transition of the path starts or ends in one of the states.
func (p Path) Touches(ids map[string]bool) bool {
	for _, t := range p {
		if ids[t.Source.ID()] || ids[t.Dest.ID()] {
			return true
		}
	}
	return false
}

type key struct {
	src, dst string
}

// Cache is an LRU cache of paths keyed by their endpoints.
type Cache struct {
	paths *lru.Cache[key, Path]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[key, Path](size)
	if err != nil {
		return nil, err
	}
	return &Cache{paths: c}, nil
}

// Stores the path under its endpoints, replacing any previous path between them.
func (c *Cache) Put(p Path) error {
	if len(p) == 0 {
		return ErrEmptyPath
	}
	c.paths.Add(key{p.Source().ID(), p.Dest().ID()}, p)
	return nil
}

func (c *Cache) Get(src, dst *state.AbstractState) (Path, bool) {
	return c.paths.Get(key{src.ID(), dst.ID()})
}

// Removes every path touching one of the removed states and returns how many were removed.
func (c *Cache) Purge(removed []string) int {
	if len(removed) == 0 {
		return 0
	}
	ids := make(map[string]bool, len(removed))
	for _, id := range removed {
		ids[id] = true
	}
	n := 0
	for _, k := range c.paths.Keys() {
		p, ok := c.paths.Peek(k)
		if !ok {
			continue
		}
		if p.Touches(ids) {
			c.paths.Remove(k)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	return c.paths.Len()
}
