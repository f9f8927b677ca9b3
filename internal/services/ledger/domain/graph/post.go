package graph

import (
	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

// Posting links a transaction to its participants.
type Posting struct {
	Source      entity.ID
	Destination entity.ID
	Initiator   entity.ID
	Rule        entity.ID
}

// Post inserts a validated transaction, links it and applies its balance
// effect. A sub-account movement also moves the owning composite account.
// Post does not validate; on error the graph must be discarded.
func (g *Graph) Post(tx entity.Entity, p Posting) (entity.Entity, error) {
	if tx.Transaction == nil {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeSchemaViolation, "not a transaction", map[string]string{"kind": string(tx.Kind)})
	}
	tx, err := g.Insert(tx)
	if err != nil {
		return entity.Entity{}, err
	}
	if err := g.Link(tx.ID, RelSource, p.Source); err != nil {
		return entity.Entity{}, err
	}
	if err := g.Link(tx.ID, RelDestination, p.Destination); err != nil {
		return entity.Entity{}, err
	}
	if err := g.Link(tx.ID, RelInitiator, p.Initiator); err != nil {
		return entity.Entity{}, err
	}
	if p.Rule != "" {
		if err := g.Link(tx.ID, RelRule, p.Rule); err != nil {
			return entity.Entity{}, err
		}
	}
	amount := tx.Transaction.Amount
	g.move(p.Source, -amount, tx)
	g.move(p.Destination, amount, tx)
	return tx, nil
}

func (g *Graph) move(id entity.ID, delta int64, tx entity.Entity) {
	e := g.nodes[id]
	if !e.IsA(entity.CapAccount) {
		return
	}
	g.Adjust(id, delta)
	g.Touch(id, tx.CreatedAt)
	if e.IsA(entity.CapSubAccount) {
		if composite, ok := g.firstInverse(id, RelSubAccounts); ok {
			g.Adjust(composite, delta)
			g.Touch(composite, tx.CreatedAt)
		}
	}
}
