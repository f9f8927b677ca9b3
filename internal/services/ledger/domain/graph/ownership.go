package graph

import (
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

// OwningChild returns the child that owns a composite account or one of its
// sub-accounts.
func (g *Graph) OwningChild(accountID entity.ID) (entity.ID, bool) {
	e, ok := g.nodes[accountID]
	if !ok {
		return "", false
	}
	composite := accountID
	switch {
	case e.Kind == entity.KindChildAccount:
	case e.IsA(entity.CapSubAccount):
		parent, ok := g.firstInverse(accountID, RelSubAccounts)
		if !ok {
			return "", false
		}
		composite = parent
	default:
		return "", false
	}
	return g.firstInverse(composite, RelAccount)
}

// FamilyOf returns the family an entity belongs to.
func (g *Graph) FamilyOf(id entity.ID) (entity.ID, bool) {
	e, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	switch {
	case e.Kind == entity.KindFamily:
		return id, true
	case e.Kind == entity.KindChild:
		return g.firstInverse(id, RelChildren)
	case e.IsA(entity.CapFamilyAdmin):
		return g.firstInverse(id, RelAdmins)
	case e.Kind == entity.KindWallet:
		return g.firstInverse(id, RelWallet)
	case e.IsA(entity.CapFundingRule):
		return g.firstInverse(id, RelRules)
	case e.Kind == entity.KindChildAccount || e.IsA(entity.CapSubAccount):
		child, ok := g.OwningChild(id)
		if !ok {
			return "", false
		}
		return g.firstInverse(child, RelChildren)
	case e.Kind == entity.KindExternalFunding:
		owner, ok := g.firstInverse(id, RelFundingSources)
		if !ok {
			return "", false
		}
		return g.firstInverse(owner, RelAdmins)
	case e.Kind == entity.KindDevice:
		user, ok := g.firstForward(id, RelUser)
		if !ok {
			return "", false
		}
		return g.FamilyOf(user)
	}
	return "", false
}

// IsAdmin reports whether userID is a live admin of familyID.
func (g *Graph) IsAdmin(familyID, userID entity.ID) bool {
	for _, admin := range g.out[edgeKey{id: familyID, rel: RelAdmins}] {
		if admin == userID {
			e := g.nodes[admin]
			return !e.Removed
		}
	}
	return false
}

// SubAccount returns a child's sub-account of the given purpose.
func (g *Graph) SubAccount(childID entity.ID, purpose entity.Kind) (entity.ID, bool) {
	composite, ok := g.firstForward(childID, RelAccount)
	if !ok {
		return "", false
	}
	for _, sub := range g.out[edgeKey{id: composite, rel: RelSubAccounts}] {
		if g.nodes[sub].Kind == purpose {
			return sub, true
		}
	}
	return "", false
}

func (g *Graph) firstForward(id entity.ID, rel Relation) (entity.ID, bool) {
	list := g.out[edgeKey{id: id, rel: rel}]
	if len(list) == 0 {
		return "", false
	}
	return list[0], true
}

func (g *Graph) firstInverse(id entity.ID, rel Relation) (entity.ID, bool) {
	list := g.in[edgeKey{id: id, rel: rel}]
	if len(list) == 0 {
		return "", false
	}
	return list[0], true
}
