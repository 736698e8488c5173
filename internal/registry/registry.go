// Package registry holds the administrator-defined code tables in process
// memory: a flat code -> entry index for O(1) lookups and a nested
// parent/child view for tree-structured tables such as product categories.
//
// The whole registry is rebuilt on every administrator write and published
// as an immutable snapshot behind an atomic pointer, so lookups running
// concurrently with a reload never observe a half-built table.
package registry

import (
	"sort"
	"sync/atomic"

	"openmarket/internal/domain"
)

// Store is the durable source of code tables.
type Store interface {
	ListAll() ([]domain.CodeGroup, error)
}

// Node is a code entry with its children attached, as served by the nested
// views.
type Node struct {
	domain.CodeEntry
	Sub []*Node `json:"sub,omitempty"`
}

// NestedGroup is one code table in nested form. Flat tables have every
// entry at the top level; tree tables start at the depth-1 roots.
type NestedGroup struct {
	ID    string  `json:"_id"`
	Title string  `json:"title"`
	Codes []*Node `json:"codes"`
}

type snapshot struct {
	flat   map[string]domain.CodeEntry
	nested map[string]NestedGroup
	order  []string // group ids in listing order
}

var emptySnapshot = &snapshot{
	flat:   map[string]domain.CodeEntry{},
	nested: map[string]NestedGroup{},
}

type Registry struct {
	store Store
	snap  atomic.Pointer[snapshot]
}

func New(store Store) *Registry {
	r := &Registry{store: store}
	r.snap.Store(emptySnapshot)
	return r
}

// Reload fetches every code table and swaps in a freshly built snapshot.
// On a store failure the previous snapshot stays in place and the error is
// reported as ErrRegistryUnavailable.
func (r *Registry) Reload() error {
	groups, err := r.store.ListAll()
	if err != nil {
		return domain.ErrRegistryUnavailable
	}
	r.snap.Store(build(groups))
	return nil
}

// Lookup resolves a code through the flat index.
func (r *Registry) Lookup(code string) (domain.CodeEntry, bool) {
	e, ok := r.snap.Load().flat[code]
	return e, ok
}

func (r *Registry) Has(code string) bool {
	_, ok := r.Lookup(code)
	return ok
}

// Value returns the display value of a code, or "" when unknown.
func (r *Registry) Value(code string) string {
	e, _ := r.Lookup(code)
	return e.Value
}

// Attr projects one field of a code entry: the fixed fields by name
// (value, sort, parent, depth) or any extra attribute key.
func (r *Registry) Attr(code, field string) (any, bool) {
	e, ok := r.Lookup(code)
	if !ok {
		return nil, false
	}
	switch field {
	case "value":
		return e.Value, true
	case "sort":
		return e.Sort, true
	case "parent":
		return e.Parent, true
	case "depth":
		return e.Depth, true
	}
	v, ok := e.Extra[field]
	return v, ok
}

// Flat returns the whole flat index. The map belongs to the current
// snapshot and must not be mutated.
func (r *Registry) Flat() map[string]domain.CodeEntry {
	return r.snap.Load().flat
}

// Nested returns every code table in nested form, keyed by table id.
func (r *Registry) Nested() map[string]NestedGroup {
	return r.snap.Load().nested
}

// Group returns one table's nested view.
func (r *Registry) Group(id string) (NestedGroup, bool) {
	g, ok := r.snap.Load().nested[id]
	return g, ok
}

// GroupIDs lists the table ids in stable order.
func (r *Registry) GroupIDs() []string {
	return r.snap.Load().order
}

func build(groups []domain.CodeGroup) *snapshot {
	s := &snapshot{
		flat:   make(map[string]domain.CodeEntry),
		nested: make(map[string]NestedGroup, len(groups)),
	}
	for _, g := range groups {
		// Later tables win on a code collision; write-time uniqueness
		// makes this unreachable for stored data.
		for _, e := range g.Codes {
			s.flat[e.Code] = e
		}
		s.nested[g.ID] = NestedGroup{ID: g.ID, Title: g.Title, Codes: BuildNested(g.Codes)}
		s.order = append(s.order, g.ID)
	}
	return s
}

// BuildNested turns one table's entries into a forest. Flat tables (no
// depth anywhere) come back as a single level in sort order. Tree tables
// sort by (depth, sort); depth-1 entries become roots and every entry
// adopts as Sub the entries whose parent equals its code. Entries with an
// unmatched parent are dropped, not errored.
func BuildNested(entries []domain.CodeEntry) []*Node {
	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, &Node{CodeEntry: e})
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return nodes[i].Sort < nodes[j].Sort
	})

	treed := false
	for _, n := range nodes {
		if n.Depth > 0 {
			treed = true
			break
		}
	}
	if !treed {
		return nodes
	}

	children := make(map[string][]*Node)
	for _, n := range nodes {
		if n.Parent != "" {
			children[n.Parent] = append(children[n.Parent], n)
		}
	}

	var roots []*Node
	for _, n := range nodes {
		n.Sub = children[n.Code]
		if n.Depth == 1 {
			roots = append(roots, n)
		}
	}
	return roots
}
