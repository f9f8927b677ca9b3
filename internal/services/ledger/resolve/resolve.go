// Package resolve answers read queries against one immutable graph snapshot:
// identity lookups and relationship expansion. Nothing here mutates the
// graph. Balances and transaction lists pass the invariant engine before
// they are returned.
package resolve

import (
	"context"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/invariant"
)

// Resolver reads a single snapshot.
type Resolver struct {
	g      *graph.Graph
	engine invariant.Engine
}

// New returns a resolver over g. g must not be mutated while in use.
func New(g *graph.Graph) *Resolver {
	return &Resolver{g: g}
}

// Version returns the snapshot version the resolver reads.
func (r *Resolver) Version() uint64 {
	return r.g.Version()
}

// IsAbsent reports whether err is a typed absence rather than a failure.
func IsAbsent(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeNotFound)
}

// Lookup returns a live entity by id.
func (r *Resolver) Lookup(id entity.ID) (entity.Entity, error) {
	return r.g.Lookup(id)
}

func (r *Resolver) typed(id entity.ID, want string, match func(entity.Entity) bool) (entity.Entity, error) {
	e, err := r.g.Lookup(id)
	if err != nil {
		return entity.Entity{}, err
	}
	if !match(e) {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no "+want+" with this id", map[string]string{
			"id":   string(id),
			"kind": want,
		})
	}
	return e, nil
}

// Family returns a family by id.
func (r *Resolver) Family(id entity.ID) (entity.Entity, error) {
	return r.typed(id, "family", func(e entity.Entity) bool { return e.Kind == entity.KindFamily })
}

// Child returns a child by id.
func (r *Resolver) Child(id entity.ID) (entity.Entity, error) {
	return r.typed(id, "child", func(e entity.Entity) bool { return e.Kind == entity.KindChild })
}

// User returns any user variant by id.
func (r *Resolver) User(id entity.ID) (entity.Entity, error) {
	return r.typed(id, "user", func(e entity.Entity) bool { return e.IsA(entity.CapUser) })
}

// Account returns any account variant by id.
func (r *Resolver) Account(id entity.ID) (entity.Entity, error) {
	return r.typed(id, "account", func(e entity.Entity) bool { return e.IsA(entity.CapAccount) })
}

// Rule returns a funding rule by id.
func (r *Resolver) Rule(id entity.ID) (entity.Entity, error) {
	return r.typed(id, "funding_rule", func(e entity.Entity) bool { return e.IsA(entity.CapFundingRule) })
}

// Transaction returns a transaction by id after confirming both endpoint
// balances are consistent.
func (r *Resolver) Transaction(id entity.ID) (entity.Entity, error) {
	tx, err := r.typed(id, "transaction", func(e entity.Entity) bool { return e.IsA(entity.CapTransaction) })
	if err != nil {
		return entity.Entity{}, err
	}
	for _, rel := range []graph.Relation{graph.RelSource, graph.RelDestination} {
		account, ok, err := r.g.First(id, rel)
		if err != nil {
			return entity.Entity{}, err
		}
		if ok {
			if err := r.checkAccount(account); err != nil {
				return entity.Entity{}, err
			}
		}
	}
	return tx, nil
}

// Balance returns an account's balance once it matches the signed sum of
// its transactions.
func (r *Resolver) Balance(id entity.ID) (int64, error) {
	if _, err := r.Account(id); err != nil {
		return 0, err
	}
	if err := r.engine.CheckBalance(r.g, id); err != nil {
		return 0, err
	}
	b, _ := r.g.Balance(id)
	return b, nil
}

func (r *Resolver) checkAccount(id entity.ID) error {
	e, ok := r.g.Node(id)
	if !ok || !e.IsA(entity.CapAccount) || e.Removed {
		return nil
	}
	return r.engine.CheckBalance(r.g, id)
}

// Expand returns the live targets of relation from id in creation order.
// Transactions are history and are returned even when an endpoint was
// removed; membership edges skip removed entities.
func (r *Resolver) Expand(ctx context.Context, id entity.ID, relation graph.Relation) ([]entity.Entity, error) {
	seq, err := r.g.EdgesFrom(id, relation)
	if err != nil {
		return nil, err
	}
	var out []entity.Entity
	for target := range seq {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, ok := r.g.Node(target)
		if !ok || e.Removed {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// One resolves a single-valued relation. A missing or removed target is a
// typed absence.
func (r *Resolver) One(id entity.ID, relation graph.Relation) (entity.Entity, error) {
	target, ok, err := r.g.First(id, relation)
	if err != nil {
		return entity.Entity{}, err
	}
	if !ok {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "relation has no target", map[string]string{
			"id":       string(id),
			"relation": string(relation),
		})
	}
	return r.g.Lookup(target)
}
