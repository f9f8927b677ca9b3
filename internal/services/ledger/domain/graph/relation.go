package graph

import (
	"maps"
	"slices"

	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

// Relation names a directed relationship.
type Relation string

const (
	RelFamilies       Relation = "families"
	RelInstitution    Relation = "institution"
	RelChildren       Relation = "children"
	RelAdmins         Relation = "admins"
	RelRules          Relation = "rules"
	RelWallet         Relation = "wallet"
	RelFamily         Relation = "family"
	RelDevices        Relation = "devices"
	RelUser           Relation = "user"
	RelFundingSources Relation = "funding_sources"
	RelOwner          Relation = "owner"
	RelAccount        Relation = "account"
	RelSubAccounts    Relation = "sub_accounts"
	RelTransactions   Relation = "transactions"
	RelTarget         Relation = "target"
	RelCreator        Relation = "creator"
	RelDistributions  Relation = "distributions"
	RelSource         Relation = "source"
	RelDestination    Relation = "destination"
	RelInitiator      Relation = "initiator"
	RelRule           Relation = "rule"
)

// relationSpec declares how a relation is served for one kind: either
// stored forward on the entity, or read from the inverse index of one or more
// forward relations that point at the entity.
type relationSpec struct {
	forward  bool
	single   bool
	accepts  entity.Capability
	kinds    []entity.Kind
	inverses []Relation
}

func forward(accepts entity.Capability, kinds ...entity.Kind) relationSpec {
	return relationSpec{forward: true, accepts: accepts, kinds: kinds}
}

func forwardOne(accepts entity.Capability, kinds ...entity.Kind) relationSpec {
	return relationSpec{forward: true, single: true, accepts: accepts, kinds: kinds}
}

func inverse(of ...Relation) relationSpec {
	return relationSpec{inverses: of}
}

func (s relationSpec) allows(target entity.Entity) bool {
	if !target.Caps.Has(s.accepts) {
		return false
	}
	if len(s.kinds) == 0 {
		return true
	}
	for _, k := range s.kinds {
		if target.Kind == k {
			return true
		}
	}
	return false
}

var (
	userRelations = map[Relation]relationSpec{
		RelDevices: inverse(RelUser),
	}
	subAccountRelations = map[Relation]relationSpec{
		RelAccount:      inverse(RelSubAccounts),
		RelTransactions: inverse(RelSource, RelDestination),
	}
	ruleRelations = map[Relation]relationSpec{
		RelTarget:        forwardOne(entity.CapUser, entity.KindChild),
		RelCreator:       forwardOne(entity.CapFamilyAdmin),
		RelFamily:        inverse(RelRules),
		RelDistributions: inverse(RelRule),
	}
	txRelations = map[Relation]relationSpec{
		RelSource:      forwardOne(entity.CapSource),
		RelDestination: forwardOne(entity.CapDestination),
		RelInitiator:   forwardOne(entity.CapInitiator),
	}
)

var relationCatalog = map[entity.Kind]map[Relation]relationSpec{
	entity.KindInstitution: merge(userRelations, map[Relation]relationSpec{
		RelFamilies: forward(entity.CapIdentity, entity.KindFamily),
		RelFamily:   inverse(RelAdmins),
	}),
	entity.KindParent: merge(userRelations, map[Relation]relationSpec{
		RelFamily:         inverse(RelAdmins),
		RelFundingSources: forward(entity.CapExternal),
	}),
	entity.KindChild: merge(userRelations, map[Relation]relationSpec{
		RelFamily:  inverse(RelChildren),
		RelAccount: forwardOne(entity.CapAccount, entity.KindChildAccount),
		RelRules:   inverse(RelTarget),
	}),
	entity.KindFamily: {
		RelChildren:    forward(entity.CapUser, entity.KindChild),
		RelAdmins:      forward(entity.CapFamilyAdmin),
		RelRules:       forward(entity.CapFundingRule),
		RelWallet:      forwardOne(entity.CapPooled),
		RelInstitution: inverse(RelFamilies),
	},
	entity.KindDevice: {
		RelUser: forwardOne(entity.CapUser),
	},
	entity.KindPaymentRecipient: {
		RelTransactions: inverse(RelDestination),
	},
	entity.KindWallet: {
		RelFamily:       inverse(RelWallet),
		RelTransactions: inverse(RelSource, RelDestination),
	},
	entity.KindSpend:  subAccountRelations,
	entity.KindSave:   subAccountRelations,
	entity.KindGive:   subAccountRelations,
	entity.KindEarn:   subAccountRelations,
	entity.KindInvest: subAccountRelations,
	entity.KindChildAccount: {
		RelOwner:       inverse(RelAccount),
		RelSubAccounts: forward(entity.CapSubAccount),
	},
	entity.KindExternalFunding: {
		RelOwner:        inverse(RelFundingSources),
		RelTransactions: inverse(RelSource, RelDestination),
	},
	entity.KindChore:     ruleRelations,
	entity.KindAllowance: ruleRelations,

	entity.KindFundTransfer: txRelations,
	entity.KindFundDistribution: merge(txRelations, map[Relation]relationSpec{
		RelRule: forwardOne(entity.CapFundingRule),
	}),
	entity.KindExternalPayment:         txRelations,
	entity.KindSubAccountTransfer:      txRelations,
	entity.KindFundingRequest:          txRelations,
	entity.KindExternalFundingTransfer: txRelations,
}

func merge(base, extra map[Relation]relationSpec) map[Relation]relationSpec {
	out := make(map[Relation]relationSpec, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Supports reports whether kind declares relation.
func Supports(kind entity.Kind, relation Relation) bool {
	_, ok := relationCatalog[kind][relation]
	return ok
}

// Relations returns the relations declared for kind, sorted by name.
func Relations(kind entity.Kind) []Relation {
	return slices.Sorted(maps.Keys(relationCatalog[kind]))
}
