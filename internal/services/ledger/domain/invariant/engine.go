package invariant

import (
	"math"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

// Draft is a transaction proposed for insertion.
type Draft struct {
	ID            entity.ID
	Kind          entity.Kind
	Amount        int64
	SourceID      entity.ID
	DestinationID entity.ID
	InitiatorID   entity.ID
	RuleID        entity.ID
	Timestamp     time.Time
}

// Engine validates ledger writes. The zero value is ready to use.
type Engine struct{}

// endpoints holds the resolved participants of a draft.
type endpoints struct {
	source      entity.Entity
	destination entity.Entity
	initiator   entity.Entity
}

// CheckTransaction validates a draft against the snapshot g.
func (Engine) CheckTransaction(g *graph.Graph, d Draft) error {
	req, ok := RequirementFor(d.Kind)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeSchemaViolation, "not a transaction kind", map[string]string{"kind": string(d.Kind)})
	}
	ep, err := checkReferences(g, d)
	if err != nil {
		return err
	}
	if err := checkCapabilities(g, d, req, ep); err != nil {
		return err
	}
	if d.Amount <= 0 {
		return apperrors.WithMetadata(apperrors.CodeInvalidAmount, "amount must be positive", map[string]string{"amount_sign": "non-positive"})
	}
	if err := checkBalances(g, d, ep); err != nil {
		return err
	}
	return checkRule(g, d, ep)
}

func checkReferences(g *graph.Graph, d Draft) (endpoints, error) {
	var ep endpoints
	var err error
	if ep.source, err = reference(g, d.SourceID, "source"); err != nil {
		return ep, err
	}
	if ep.destination, err = reference(g, d.DestinationID, "destination"); err != nil {
		return ep, err
	}
	if ep.initiator, err = reference(g, d.InitiatorID, "initiator"); err != nil {
		return ep, err
	}
	return ep, nil
}

func reference(g *graph.Graph, id entity.ID, role string) (entity.Entity, error) {
	e, err := g.Lookup(id)
	if err != nil {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeDanglingReference, role+" does not exist", map[string]string{
			"id":   string(id),
			"role": role,
		})
	}
	return e, nil
}

func checkCapabilities(g *graph.Graph, d Draft, req Requirement, ep endpoints) error {
	if !ep.source.IsA(req.Source) {
		return mismatch(ep.source, "source")
	}
	if !ep.destination.IsA(req.Destination) {
		return mismatch(ep.destination, "destination")
	}
	if !ep.initiator.IsA(req.Initiator) {
		return mismatch(ep.initiator, "initiator")
	}
	if ep.source.ID == ep.destination.ID {
		return mismatch(ep.destination, "destination")
	}

	srcFamily, srcOK := g.FamilyOf(ep.source.ID)
	dstFamily, dstOK := g.FamilyOf(ep.destination.ID)
	if srcOK && dstOK && srcFamily != dstFamily {
		return mismatch(ep.destination, "destination")
	}

	switch d.Kind {
	case entity.KindSubAccountTransfer:
		srcChild, _ := g.OwningChild(ep.source.ID)
		dstChild, _ := g.OwningChild(ep.destination.ID)
		if srcChild == "" || srcChild != dstChild {
			return mismatch(ep.destination, "destination")
		}
	}
	if !authorized(g, d.Kind, ep, srcFamily, dstFamily) {
		return mismatch(ep.initiator, "initiator")
	}
	return nil
}

// authorized reports whether the initiator may move money between the
// endpoints: admins act within their family, children only on their own
// accounts.
func authorized(g *graph.Graph, kind entity.Kind, ep endpoints, srcFamily, dstFamily entity.ID) bool {
	family := srcFamily
	if family == "" {
		family = dstFamily
	}
	if ep.initiator.IsA(entity.CapFamilyAdmin) {
		if kind == entity.KindFundingRequest {
			return false
		}
		if kind == entity.KindExternalFundingTransfer {
			owner, _, _ := g.First(ep.source.ID, graph.RelOwner)
			if owner == ep.initiator.ID {
				return true
			}
		}
		return family != "" && g.IsAdmin(family, ep.initiator.ID)
	}
	if ep.initiator.Kind != entity.KindChild {
		return false
	}
	switch kind {
	case entity.KindFundingRequest:
		owner, _ := g.OwningChild(ep.destination.ID)
		return owner == ep.initiator.ID
	case entity.KindExternalPayment, entity.KindSubAccountTransfer:
		owner, _ := g.OwningChild(ep.source.ID)
		return owner == ep.initiator.ID
	}
	return false
}

// MaxBalance bounds every tracked balance and net flow, in minor units. It
// matches the 32-bit integers the query schema serves balances as.
const MaxBalance = math.MaxInt32

func checkBalances(g *graph.Graph, d Draft, ep endpoints) error {
	if d.Amount > MaxBalance {
		return overflow(ep.destination.ID, "amount exceeds the largest balance")
	}
	if ep.source.IsA(entity.CapAccount) {
		balance, _ := g.Balance(ep.source.ID)
		switch {
		case ep.source.IsA(entity.CapLedger) && balance-d.Amount < 0:
			return apperrors.WithMetadata(apperrors.CodeNegativeBalance, "source balance would go negative", map[string]string{
				"account_id": string(ep.source.ID),
			})
		case balance-d.Amount < -MaxBalance:
			return overflow(ep.source.ID, "source net flow would overflow")
		}
	}
	if ep.destination.IsA(entity.CapAccount) {
		if balance, _ := g.Balance(ep.destination.ID); balance > MaxBalance-d.Amount {
			return overflow(ep.destination.ID, "destination balance would overflow")
		}
	}
	if ep.destination.IsA(entity.CapSubAccount) {
		dst, _, _ := g.First(ep.destination.ID, graph.RelAccount)
		src, _, _ := g.First(ep.source.ID, graph.RelAccount)
		if dst != "" && dst != src {
			if balance, _ := g.Balance(dst); balance > MaxBalance-d.Amount {
				return overflow(dst, "composite balance would overflow")
			}
		}
	}
	return nil
}

func overflow(id entity.ID, message string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidAmount, message, map[string]string{"account_id": string(id)})
}

func checkRule(g *graph.Graph, d Draft, ep endpoints) error {
	if d.Kind != entity.KindFundDistribution {
		if d.RuleID != "" {
			return ruleMismatch(d.RuleID, "only fund distributions reference a rule")
		}
		return nil
	}
	rule, err := g.Lookup(d.RuleID)
	if err != nil || !rule.IsA(entity.CapFundingRule) {
		return ruleMismatch(d.RuleID, "distribution rule does not exist")
	}
	target, _, _ := g.First(rule.ID, graph.RelTarget)
	owner, _ := g.OwningChild(ep.destination.ID)
	if target == "" || target != owner {
		return ruleMismatch(rule.ID, "rule targets a different child")
	}
	if rule.Rule.Purpose != ep.destination.Kind {
		return ruleMismatch(rule.ID, "rule pays into a different sub-account")
	}
	if ruleFamily, ok := g.FamilyOf(rule.ID); ok {
		if walletFamily, ok := g.FamilyOf(ep.source.ID); ok && walletFamily != ruleFamily {
			return ruleMismatch(rule.ID, "rule belongs to a different family")
		}
	}
	if d.Timestamp.Before(rule.CreatedAt) {
		return ruleMismatch(rule.ID, "distribution predates rule")
	}
	if last, ok := lastDistribution(g, rule.ID); ok && d.Timestamp.Before(last) {
		return ruleMismatch(rule.ID, "distribution predates an earlier distribution")
	}
	return nil
}

func lastDistribution(g *graph.Graph, ruleID entity.ID) (time.Time, bool) {
	seq, err := g.EdgesFrom(ruleID, graph.RelDistributions)
	if err != nil {
		return time.Time{}, false
	}
	var last time.Time
	var found bool
	for id := range seq {
		if e, ok := g.Node(id); ok {
			last, found = e.CreatedAt, true
		}
	}
	return last, found
}

func mismatch(e entity.Entity, role string) error {
	return apperrors.WithMetadata(apperrors.CodeCapabilityMismatch, string(e.Kind)+" cannot act as "+role, map[string]string{
		"id":   string(e.ID),
		"kind": string(e.Kind),
		"role": role,
	})
}

func ruleMismatch(ruleID entity.ID, message string) error {
	return apperrors.WithMetadata(apperrors.CodeRuleMismatch, message, map[string]string{"rule_id": string(ruleID)})
}
