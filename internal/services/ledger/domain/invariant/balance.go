package invariant

import (
	"strconv"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

// CheckBalance recomputes an account balance from its transaction history
// and compares it with the stored balance. A composite child account
// balances to the sum of its sub-accounts.
func (Engine) CheckBalance(g *graph.Graph, accountID entity.ID) error {
	account, err := g.Lookup(accountID)
	if err != nil {
		return err
	}
	if !account.IsA(entity.CapAccount) {
		return apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, "not an account", map[string]string{
			"id":   string(accountID),
			"kind": string(account.Kind),
			"role": "account",
		})
	}
	stored, _ := g.Balance(accountID)
	want, err := Recompute(g, accountID)
	if err != nil {
		return err
	}
	if stored != want {
		return apperrors.WithMetadata(apperrors.CodeInconsistentBalance, "stored balance does not match history", map[string]string{
			"account_id": string(accountID),
			"stored":     strconv.FormatInt(stored, 10),
			"expected":   strconv.FormatInt(want, 10),
		})
	}
	if account.IsA(entity.CapLedger) && stored < 0 {
		return apperrors.WithMetadata(apperrors.CodeNegativeBalance, "balance is negative", map[string]string{"account_id": string(accountID)})
	}
	return nil
}

// Recompute derives an account balance from the committed transactions.
func Recompute(g *graph.Graph, accountID entity.ID) (int64, error) {
	account, err := g.Lookup(accountID)
	if err != nil {
		return 0, err
	}
	if account.Kind == entity.KindChildAccount {
		subs, err := g.EdgesFrom(accountID, graph.RelSubAccounts)
		if err != nil {
			return 0, err
		}
		var total int64
		for sub := range subs {
			balance, err := Recompute(g, sub)
			if err != nil {
				return 0, err
			}
			total += balance
		}
		return total, nil
	}
	txs, err := g.EdgesFrom(accountID, graph.RelTransactions)
	if err != nil {
		return 0, err
	}
	var total int64
	for txID := range txs {
		tx, ok := g.Node(txID)
		if !ok || tx.Transaction == nil {
			continue
		}
		dst, _, _ := g.First(txID, graph.RelDestination)
		if dst == accountID {
			total += tx.Transaction.Amount
		} else {
			total -= tx.Transaction.Amount
		}
	}
	return total, nil
}

// VerifyLedger checks every live account balance in the snapshot.
func (e Engine) VerifyLedger(g *graph.Graph) error {
	for _, kind := range entity.Kinds() {
		caps, _ := entity.Capabilities(kind)
		if !caps.Has(entity.CapAccount) {
			continue
		}
		for id := range g.OfKind(kind) {
			if node, _ := g.Node(id); node.Removed {
				continue
			}
			if err := e.CheckBalance(g, id); err != nil {
				return err
			}
		}
	}
	return nil
}
