package invariant

import (
	"strconv"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

// CheckRemoval reports whether id may be removed and returns every entity the
// removal takes with it, id first.
//
// Users and accounts go only when their balances are zero and no live
// funding rule targets them. Families, wallets, sub-accounts and
// transactions are permanent.
func (Engine) CheckRemoval(g *graph.Graph, id entity.ID) ([]entity.ID, error) {
	e, err := g.Lookup(id)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Kind == entity.KindChild:
		return removeChild(g, e)
	case e.IsA(entity.CapFamilyAdmin):
		return removeAdmin(g, e)
	case e.Kind == entity.KindExternalFunding,
		e.Kind == entity.KindDevice,
		e.Kind == entity.KindPaymentRecipient,
		e.IsA(entity.CapFundingRule):
		return []entity.ID{id}, nil
	}
	return nil, blocked(id, string(e.Kind)+" cannot be removed")
}

func removeChild(g *graph.Graph, child entity.Entity) ([]entity.ID, error) {
	rules, err := g.EdgesFrom(child.ID, graph.RelRules)
	if err != nil {
		return nil, err
	}
	for ruleID := range rules {
		if rule, ok := g.Node(ruleID); ok && !rule.Removed {
			return nil, blocked(child.ID, "funding rule "+string(ruleID)+" still targets child")
		}
	}
	cascade := []entity.ID{child.ID}
	composite, ok, _ := g.First(child.ID, graph.RelAccount)
	if !ok {
		return cascade, nil
	}
	cascade = append(cascade, composite)
	subs, err := g.EdgesFrom(composite, graph.RelSubAccounts)
	if err != nil {
		return nil, err
	}
	for sub := range subs {
		if balance, _ := g.Balance(sub); balance != 0 {
			return nil, blocked(child.ID, "sub-account "+string(sub)+" holds "+strconv.FormatInt(balance, 10))
		}
		cascade = append(cascade, sub)
	}
	return cascade, nil
}

func removeAdmin(g *graph.Graph, admin entity.Entity) ([]entity.ID, error) {
	families, err := g.EdgesFrom(admin.ID, graph.RelFamily)
	if err != nil {
		return nil, err
	}
	for family := range families {
		admins, err := g.EdgesFrom(family, graph.RelAdmins)
		if err != nil {
			return nil, err
		}
		others := 0
		for other := range admins {
			if node, ok := g.Node(other); ok && !node.Removed && other != admin.ID {
				others++
			}
		}
		if others == 0 {
			return nil, blocked(admin.ID, "family "+string(family)+" needs at least one admin")
		}
	}
	if !graph.Supports(admin.Kind, graph.RelFundingSources) {
		return []entity.ID{admin.ID}, nil
	}
	sources, err := g.EdgesFrom(admin.ID, graph.RelFundingSources)
	if err != nil {
		return nil, err
	}
	for source := range sources {
		if node, ok := g.Node(source); ok && !node.Removed {
			return nil, blocked(admin.ID, "funding source "+string(source)+" is still linked")
		}
	}
	return []entity.ID{admin.ID}, nil
}

func blocked(id entity.ID, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeRemovalBlocked, reason, map[string]string{"id": string(id)})
}
