package graph

import (
	"iter"
	"maps"
	"slices"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

type edgeKey struct {
	id  entity.ID
	rel Relation
}

// Graph is an arena of entities plus their relationships and derived
// account balances.
type Graph struct {
	nodes    map[entity.ID]entity.Entity
	out      map[edgeKey][]entity.ID
	in       map[edgeKey][]entity.ID
	byKind   map[entity.Kind][]entity.ID
	balances map[entity.ID]int64
	seq      uint64
	version  uint64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[entity.ID]entity.Entity),
		out:      make(map[edgeKey][]entity.ID),
		in:       make(map[edgeKey][]entity.ID),
		byKind:   make(map[entity.Kind][]entity.ID),
		balances: make(map[entity.ID]int64),
	}
}

// Clone returns a copy that can be mutated without affecting g.
//
// Adjacency slices are shared until appended to; appends always reallocate
// (see appendID), so the original stays untouched.
func (g *Graph) Clone() *Graph {
	return &Graph{
		nodes:    maps.Clone(g.nodes),
		out:      maps.Clone(g.out),
		in:       maps.Clone(g.in),
		byKind:   maps.Clone(g.byKind),
		balances: maps.Clone(g.balances),
		seq:      g.seq,
		version:  g.version,
	}
}

// Version counts committed write batches.
func (g *Graph) Version() uint64 {
	return g.version
}

// Commit marks the end of a write batch.
func (g *Graph) Commit() {
	g.version++
}

// Len returns the number of entities, removed ones included.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Insert adds an entity and assigns its creation sequence.
// Identifiers are never reused, including those of removed entities.
func (g *Graph) Insert(e entity.Entity) (entity.Entity, error) {
	if _, exists := g.nodes[e.ID]; exists {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeIdentityConflict, "identifier already in use", map[string]string{"id": string(e.ID)})
	}
	if !e.Kind.Valid() {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeSchemaViolation, "unknown entity kind", map[string]string{"kind": string(e.Kind)})
	}
	g.seq++
	e.Seq = g.seq
	g.nodes[e.ID] = e
	g.byKind[e.Kind] = appendID(g.byKind[e.Kind], e.ID)
	if e.IsA(entity.CapAccount) {
		g.balances[e.ID] = 0
	}
	return e, nil
}

// Link records a forward edge from -> to.
func (g *Graph) Link(from entity.ID, relation Relation, to entity.ID) error {
	src, ok := g.nodes[from]
	if !ok {
		return notFound(from)
	}
	spec, ok := relationCatalog[src.Kind][relation]
	if !ok || !spec.forward {
		return unsupported(src.Kind, relation)
	}
	dst, ok := g.nodes[to]
	if !ok || dst.Removed {
		return apperrors.WithMetadata(apperrors.CodeDanglingReference, "edge target does not exist", map[string]string{
			"id":       string(to),
			"relation": string(relation),
		})
	}
	if !spec.allows(dst) {
		return apperrors.WithMetadata(apperrors.CodeSchemaViolation, "edge target kind not allowed", map[string]string{
			"kind":     string(dst.Kind),
			"relation": string(relation),
		})
	}
	key := edgeKey{id: from, rel: relation}
	if spec.single && len(g.out[key]) > 0 {
		return apperrors.WithMetadata(apperrors.CodeSchemaViolation, "relation already linked", map[string]string{
			"kind":     string(src.Kind),
			"relation": string(relation),
		})
	}
	g.out[key] = appendID(g.out[key], to)
	back := edgeKey{id: to, rel: relation}
	g.in[back] = appendID(g.in[back], from)
	return nil
}

// Exists reports whether id was ever inserted.
func (g *Graph) Exists(id entity.ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Lookup returns a live entity.
func (g *Graph) Lookup(id entity.ID) (entity.Entity, error) {
	e, ok := g.nodes[id]
	if !ok || e.Removed {
		return entity.Entity{}, notFound(id)
	}
	return e, nil
}

// Node returns an entity whether or not it was removed.
func (g *Graph) Node(id entity.ID) (entity.Entity, bool) {
	e, ok := g.nodes[id]
	return e, ok
}

// EdgesFrom returns the targets of relation from id, in creation order.
// The sequence is lazy and reads only this snapshot.
func (g *Graph) EdgesFrom(id entity.ID, relation Relation) (iter.Seq[entity.ID], error) {
	src, ok := g.nodes[id]
	if !ok || src.Removed {
		return nil, notFound(id)
	}
	spec, ok := relationCatalog[src.Kind][relation]
	if !ok {
		return nil, unsupported(src.Kind, relation)
	}
	if spec.forward {
		return slices.Values(g.out[edgeKey{id: id, rel: relation}]), nil
	}
	lists := make([][]entity.ID, 0, len(spec.inverses))
	for _, rel := range spec.inverses {
		if list := g.in[edgeKey{id: id, rel: rel}]; len(list) > 0 {
			lists = append(lists, list)
		}
	}
	switch len(lists) {
	case 0:
		return func(func(entity.ID) bool) {}, nil
	case 1:
		return slices.Values(lists[0]), nil
	}
	return g.mergeBySeq(lists), nil
}

// First returns the first target of relation, if any.
func (g *Graph) First(id entity.ID, relation Relation) (entity.ID, bool, error) {
	seq, err := g.EdgesFrom(id, relation)
	if err != nil {
		return "", false, err
	}
	for target := range seq {
		return target, true, nil
	}
	return "", false, nil
}

// OfKind returns the ids of every entity of kind, in creation order.
func (g *Graph) OfKind(kind entity.Kind) iter.Seq[entity.ID] {
	return slices.Values(g.byKind[kind])
}

// Balance returns the stored balance of an account.
func (g *Graph) Balance(id entity.ID) (int64, bool) {
	b, ok := g.balances[id]
	return b, ok
}

// Adjust applies delta to an account balance. Callers validate first.
func (g *Graph) Adjust(id entity.ID, delta int64) {
	g.balances[id] += delta
}

// Touch updates an entity's modification time.
func (g *Graph) Touch(id entity.ID, at time.Time) {
	if e, ok := g.nodes[id]; ok {
		e.UpdatedAt = at.UTC()
		g.nodes[id] = e
	}
}

// Remove tombstones an entity. Its identifier stays reserved and its edges
// stay in place so history remains resolvable.
func (g *Graph) Remove(id entity.ID, at time.Time) error {
	e, ok := g.nodes[id]
	if !ok || e.Removed {
		return notFound(id)
	}
	e.Removed = true
	e.UpdatedAt = at.UTC()
	g.nodes[id] = e
	return nil
}

// mergeBySeq yields the union of sorted id lists ordered by entity sequence.
func (g *Graph) mergeBySeq(lists [][]entity.ID) iter.Seq[entity.ID] {
	return func(yield func(entity.ID) bool) {
		pos := make([]int, len(lists))
		var last entity.ID
		for {
			best := -1
			var bestSeq uint64
			for i, list := range lists {
				if pos[i] >= len(list) {
					continue
				}
				seq := g.nodes[list[pos[i]]].Seq
				if best == -1 || seq < bestSeq {
					best, bestSeq = i, seq
				}
			}
			if best == -1 {
				return
			}
			next := lists[best][pos[best]]
			pos[best]++
			if next == last {
				continue
			}
			last = next
			if !yield(next) {
				return
			}
		}
	}
}

func appendID(list []entity.ID, id entity.ID) []entity.ID {
	return append(slices.Clip(list), id)
}

func notFound(id entity.ID) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "entity not found", map[string]string{"id": string(id)})
}

func unsupported(kind entity.Kind, relation Relation) error {
	return apperrors.WithMetadata(apperrors.CodeUnsupportedRelation, "relation not supported", map[string]string{
		"kind":     string(kind),
		"relation": string(relation),
	})
}
