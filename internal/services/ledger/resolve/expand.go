package resolve

import (
	"context"
	"slices"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

// Children returns a family's live children.
func (r *Resolver) Children(ctx context.Context, family entity.ID) ([]entity.Entity, error) {
	if _, err := r.Family(family); err != nil {
		return nil, err
	}
	return r.Expand(ctx, family, graph.RelChildren)
}

// Admins returns a family's live administrators.
func (r *Resolver) Admins(ctx context.Context, family entity.ID) ([]entity.Entity, error) {
	if _, err := r.Family(family); err != nil {
		return nil, err
	}
	return r.Expand(ctx, family, graph.RelAdmins)
}

// Families returns the families a user administers or belongs to.
func (r *Resolver) Families(ctx context.Context, user entity.ID) ([]entity.Entity, error) {
	u, err := r.User(user)
	if err != nil {
		return nil, err
	}
	if u.Kind == entity.KindInstitution {
		return r.Expand(ctx, user, graph.RelFamilies)
	}
	return r.Expand(ctx, user, graph.RelFamily)
}

// Devices returns a user's live devices.
func (r *Resolver) Devices(ctx context.Context, user entity.ID) ([]entity.Entity, error) {
	if _, err := r.User(user); err != nil {
		return nil, err
	}
	return r.Expand(ctx, user, graph.RelDevices)
}

// Accounts returns the accounts a user or family holds: a child's composite
// account followed by its sub-accounts, a parent's funding sources, or a
// family's wallet.
func (r *Resolver) Accounts(ctx context.Context, owner entity.ID) ([]entity.Entity, error) {
	e, err := r.g.Lookup(owner)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case entity.KindChild:
		composite, err := r.One(owner, graph.RelAccount)
		if err != nil {
			return nil, err
		}
		subs, err := r.Expand(ctx, composite.ID, graph.RelSubAccounts)
		if err != nil {
			return nil, err
		}
		return append([]entity.Entity{composite}, subs...), nil
	case entity.KindParent:
		return r.Expand(ctx, owner, graph.RelFundingSources)
	case entity.KindFamily:
		return r.Expand(ctx, owner, graph.RelWallet)
	case entity.KindInstitution:
		return nil, nil
	}
	return nil, apperrors.WithMetadata(apperrors.CodeUnsupportedRelation, "entity holds no accounts", map[string]string{
		"kind":     string(e.Kind),
		"relation": "accounts",
	})
}

// SubAccount returns the child's sub-account for purpose.
func (r *Resolver) SubAccount(child entity.ID, purpose entity.Kind) (entity.Entity, error) {
	if _, err := r.Child(child); err != nil {
		return entity.Entity{}, err
	}
	id, ok := r.g.SubAccount(child, purpose)
	if !ok {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "child has no such sub-account", map[string]string{
			"id":      string(child),
			"purpose": string(purpose),
		})
	}
	return r.g.Lookup(id)
}

// RulesFor returns the live funding rules that pay into account. Rules are
// stored once per child; a sub-account only sees those whose purpose is its
// own kind. A wallet sees every rule of its family, and a composite every
// rule targeting its child.
func (r *Resolver) RulesFor(ctx context.Context, account entity.ID) ([]entity.Entity, error) {
	acct, err := r.Account(account)
	if err != nil {
		return nil, err
	}
	switch {
	case acct.Kind == entity.KindWallet:
		family, err := r.One(account, graph.RelFamily)
		if err != nil {
			return nil, err
		}
		return r.Expand(ctx, family.ID, graph.RelRules)
	case acct.Kind == entity.KindChildAccount, acct.IsA(entity.CapSubAccount):
		child, ok := r.g.OwningChild(account)
		if !ok {
			return nil, nil
		}
		rules, err := r.Expand(ctx, child, graph.RelRules)
		if err != nil {
			return nil, err
		}
		if acct.Kind == entity.KindChildAccount {
			return rules, nil
		}
		return slices.DeleteFunc(rules, func(rule entity.Entity) bool {
			return rule.Rule == nil || rule.Rule.Purpose != acct.Kind
		}), nil
	}
	return nil, nil
}

// RulesForChild returns every live rule targeting a child.
func (r *Resolver) RulesForChild(ctx context.Context, child entity.ID) ([]entity.Entity, error) {
	if _, err := r.Child(child); err != nil {
		return nil, err
	}
	return r.Expand(ctx, child, graph.RelRules)
}

// Transactions returns the transactions touching account in creation order,
// after the account's balance is confirmed against them. A composite
// account lists its sub-accounts' transactions.
func (r *Resolver) Transactions(ctx context.Context, account entity.ID) ([]entity.Entity, error) {
	acct, err := r.Account(account)
	if err != nil {
		return nil, err
	}
	if err := r.engine.CheckBalance(r.g, account); err != nil {
		return nil, err
	}
	if acct.Kind != entity.KindChildAccount {
		return r.Expand(ctx, account, graph.RelTransactions)
	}
	subs, err := r.Expand(ctx, account, graph.RelSubAccounts)
	if err != nil {
		return nil, err
	}
	seen := make(map[entity.ID]bool)
	var out []entity.Entity
	for _, sub := range subs {
		txs, err := r.Expand(ctx, sub.ID, graph.RelTransactions)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if !seen[tx.ID] {
				seen[tx.ID] = true
				out = append(out, tx)
			}
		}
	}
	slices.SortFunc(out, func(a, b entity.Entity) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}

// Distributions returns the distributions made under a rule, oldest first.
func (r *Resolver) Distributions(ctx context.Context, rule entity.ID) ([]entity.Entity, error) {
	if _, err := r.Rule(rule); err != nil {
		return nil, err
	}
	return r.Expand(ctx, rule, graph.RelDistributions)
}

// Endpoint returns a transaction's source or destination. Endpoints are
// resolved even after removal so history stays readable.
func (r *Resolver) Endpoint(tx entity.ID, relation graph.Relation) (entity.Entity, error) {
	if relation != graph.RelSource && relation != graph.RelDestination {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeUnsupportedRelation, "not a transaction endpoint", map[string]string{
			"relation": string(relation),
		})
	}
	return r.historical(tx, relation)
}

// Initiator returns the user who initiated a transaction.
func (r *Resolver) Initiator(tx entity.ID) (entity.Entity, error) {
	return r.historical(tx, graph.RelInitiator)
}

// DistributionRule returns the rule a distribution was made under.
func (r *Resolver) DistributionRule(tx entity.ID) (entity.Entity, error) {
	return r.historical(tx, graph.RelRule)
}

func (r *Resolver) historical(tx entity.ID, relation graph.Relation) (entity.Entity, error) {
	if _, err := r.typed(tx, "transaction", func(e entity.Entity) bool { return e.IsA(entity.CapTransaction) }); err != nil {
		return entity.Entity{}, err
	}
	target, ok, err := r.g.First(tx, relation)
	if err != nil {
		return entity.Entity{}, err
	}
	e, found := r.g.Node(target)
	if !ok || !found {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "relation has no target", map[string]string{
			"id":       string(tx),
			"relation": string(relation),
		})
	}
	return e, nil
}

// Owner returns who holds an account: the child for child accounts, the
// parent for external funding and the family for a wallet.
func (r *Resolver) Owner(account entity.ID) (entity.Entity, error) {
	acct, err := r.Account(account)
	if err != nil {
		return entity.Entity{}, err
	}
	switch {
	case acct.Kind == entity.KindWallet:
		return r.One(account, graph.RelFamily)
	case acct.Kind == entity.KindExternalFunding:
		return r.One(account, graph.RelOwner)
	case acct.Kind == entity.KindChildAccount, acct.IsA(entity.CapSubAccount):
		child, ok := r.g.OwningChild(account)
		if !ok {
			return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "account has no owner", map[string]string{"id": string(account)})
		}
		return r.g.Lookup(child)
	}
	return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "account has no owner", map[string]string{"id": string(account)})
}

// Composite returns the composite account holding a sub-account.
func (r *Resolver) Composite(sub entity.ID) (entity.Entity, error) {
	if _, err := r.Account(sub); err != nil {
		return entity.Entity{}, err
	}
	return r.One(sub, graph.RelAccount)
}

// FamilyOf returns the live family an entity belongs to.
func (r *Resolver) FamilyOf(id entity.ID) (entity.Entity, error) {
	family, ok := r.g.FamilyOf(id)
	if !ok {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeNotFound, "entity has no family", map[string]string{"id": string(id)})
	}
	return r.Family(family)
}
