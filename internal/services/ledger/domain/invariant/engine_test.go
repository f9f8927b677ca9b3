package invariant

import (
	"fmt"
	"slices"
	"testing"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	g     *graph.Graph
	now   time.Time
	txSeq int
}

// newFixture builds two families. "fam" has admin mom, children kid and sib,
// wallet, mom's card, a store and an allowance rule paying kid's spend
// account. "other" has admin stranger and its own wallet.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, g: graph.New(), now: start}
	f.insert("fam", entity.KindFamily)
	f.insert("wallet", entity.KindWallet)
	f.link("fam", graph.RelWallet, "wallet")
	f.insert("mom", entity.KindParent)
	f.link("fam", graph.RelAdmins, "mom")
	f.insert("card", entity.KindExternalFunding)
	f.link("mom", graph.RelFundingSources, "card")
	f.insert("store", entity.KindPaymentRecipient)
	f.child("fam", "kid")
	f.child("fam", "sib")
	f.rule("allow", "kid", "mom", entity.KindSpend)

	f.insert("other", entity.KindFamily)
	f.insert("other-wallet", entity.KindWallet)
	f.link("other", graph.RelWallet, "other-wallet")
	f.insert("stranger", entity.KindInstitution)
	f.link("other", graph.RelAdmins, "stranger")
	return f
}

func (f *fixture) tick() time.Time {
	f.now = f.now.Add(time.Minute)
	return f.now
}

func (f *fixture) insert(id entity.ID, kind entity.Kind) {
	f.t.Helper()
	caps, _ := entity.Capabilities(kind)
	spec := entity.Spec{ID: id, Kind: kind, CreatedAt: f.tick()}
	if caps.Has(entity.CapUser) {
		spec.User = &entity.UserProfile{UserName: string(id)}
	}
	e, err := entity.New(spec)
	if err != nil {
		f.t.Fatalf("new %s: %v", id, err)
	}
	if _, err := f.g.Insert(e); err != nil {
		f.t.Fatalf("insert %s: %v", id, err)
	}
}

func (f *fixture) link(from entity.ID, rel graph.Relation, to entity.ID) {
	f.t.Helper()
	if err := f.g.Link(from, rel, to); err != nil {
		f.t.Fatalf("link %s %s %s: %v", from, rel, to, err)
	}
}

func (f *fixture) child(family, id entity.ID) {
	f.t.Helper()
	f.insert(id, entity.KindChild)
	f.link(family, graph.RelChildren, id)
	account := id + "-account"
	f.insert(account, entity.KindChildAccount)
	f.link(id, graph.RelAccount, account)
	for _, purpose := range entity.SubAccountKinds {
		sub := id + "-" + entity.ID(purpose)
		f.insert(sub, purpose)
		f.link(account, graph.RelSubAccounts, sub)
	}
}

func (f *fixture) rule(id, target, creator entity.ID, purpose entity.Kind) {
	f.t.Helper()
	e, err := entity.New(entity.Spec{
		ID:        id,
		Kind:      entity.KindAllowance,
		CreatedAt: f.tick(),
		Rule:      &entity.RuleTerms{Recurrence: entity.RecurrenceWeekly, Amount: 50, Purpose: purpose},
	})
	if err != nil {
		f.t.Fatalf("new rule: %v", err)
	}
	if _, err := f.g.Insert(e); err != nil {
		f.t.Fatalf("insert rule: %v", err)
	}
	family, _ := f.g.FamilyOf(target)
	f.link(family, graph.RelRules, id)
	f.link(id, graph.RelTarget, target)
	f.link(id, graph.RelCreator, creator)
}

func (f *fixture) draft(kind entity.Kind, src, dst, initiator entity.ID, amount int64) Draft {
	f.txSeq++
	return Draft{
		ID:            entity.ID(fmt.Sprintf("tx-%d", f.txSeq)),
		Kind:          kind,
		Amount:        amount,
		SourceID:      src,
		DestinationID: dst,
		InitiatorID:   initiator,
		Timestamp:     f.tick(),
	}
}

// post writes a draft without validation.
func (f *fixture) post(d Draft) {
	f.t.Helper()
	tx, err := entity.New(entity.Spec{
		ID:          d.ID,
		Kind:        d.Kind,
		CreatedAt:   d.Timestamp,
		Transaction: &entity.TransactionRecord{Amount: d.Amount},
	})
	if err != nil {
		f.t.Fatalf("new tx: %v", err)
	}
	if _, err := f.g.Post(tx, graph.Posting{Source: d.SourceID, Destination: d.DestinationID, Initiator: d.InitiatorID, Rule: d.RuleID}); err != nil {
		f.t.Fatalf("post %s: %v", d.ID, err)
	}
}

// apply checks then posts a draft.
func (f *fixture) apply(d Draft) error {
	f.t.Helper()
	if err := (Engine{}).CheckTransaction(f.g, d); err != nil {
		return err
	}
	f.post(d)
	return nil
}

func (f *fixture) balance(id entity.ID) int64 {
	b, _ := f.g.Balance(id)
	return b
}

func expectCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("code = %s, want %s (%v)", got, want, err)
	}
}

func TestDistributionFromEmptyWalletFails(t *testing.T) {
	f := newFixture(t)
	d := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 50)
	d.RuleID = "allow"

	expectCode(t, f.apply(d), apperrors.CodeNegativeBalance)
	if b := f.balance("wallet"); b != 0 {
		t.Fatalf("wallet balance = %d, want 0", b)
	}
	if f.g.Exists(d.ID) {
		t.Fatal("rejected transaction was recorded")
	}
}

func TestFundedDistributionMovesBalances(t *testing.T) {
	f := newFixture(t)
	if err := f.apply(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 100)); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
	d := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 50)
	d.RuleID = "allow"
	if err := f.apply(d); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	for id, want := range map[entity.ID]int64{"wallet": 50, "kid-spend": 50, "kid-account": 50, "card": -100} {
		if got := f.balance(id); got != want {
			t.Fatalf("%s balance = %d, want %d", id, got, want)
		}
	}
	if err := (Engine{}).VerifyLedger(f.g); err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
}

func TestRuleDistributionsOrderedByTimestamp(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 500))

	var want []entity.ID
	for range 2 {
		d := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 50)
		d.RuleID = "allow"
		if err := f.apply(d); err != nil {
			t.Fatalf("distribute: %v", err)
		}
		want = append(want, d.ID)
	}

	seq, err := f.g.EdgesFrom("allow", graph.RelDistributions)
	if err != nil {
		t.Fatalf("distributions: %v", err)
	}
	got := slices.Collect(seq)
	if !slices.Equal(got, want) {
		t.Fatalf("distributions = %v, want %v", got, want)
	}
	first, _ := f.g.Node(got[0])
	second, _ := f.g.Node(got[1])
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatal("distributions out of timestamp order")
	}
}

func TestNonPositiveAmountAlwaysInvalid(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 500))
	for _, amount := range []int64{0, -1, -500} {
		d := f.draft(entity.KindFundTransfer, "wallet", "kid-spend", "mom", amount)
		expectCode(t, f.apply(d), apperrors.CodeInvalidAmount)
	}
	if b := f.balance("wallet"); b != 500 {
		t.Fatalf("wallet balance = %d, want 500", b)
	}
}

func TestCheckOrderIsFixed(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		draft  Draft
		rule   entity.ID
		expect apperrors.Code
	}{
		{
			name:   "capability before amount",
			draft:  f.draft(entity.KindFundDistribution, "kid", "kid-spend", "mom", 0),
			expect: apperrors.CodeCapabilityMismatch,
		},
		{
			name:   "amount before balance",
			draft:  f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", -3),
			rule:   "allow",
			expect: apperrors.CodeInvalidAmount,
		},
		{
			name:   "balance before rule",
			draft:  f.draft(entity.KindFundDistribution, "wallet", "kid-save", "mom", 10),
			rule:   "missing",
			expect: apperrors.CodeNegativeBalance,
		},
		{
			name:   "references first",
			draft:  f.draft(entity.KindFundDistribution, "nowhere", "kid-spend", "mom", 0),
			expect: apperrors.CodeDanglingReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.draft
			d.RuleID = tt.rule
			expectCode(t, (Engine{}).CheckTransaction(f.g, d), tt.expect)
		})
	}
}

func TestRuleConsistency(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 1000))

	tests := []struct {
		name string
		dst  entity.ID
		kind entity.Kind
		rule entity.ID
		at   time.Time
	}{
		{name: "missing rule", dst: "kid-spend", kind: entity.KindFundDistribution},
		{name: "unknown rule", dst: "kid-spend", kind: entity.KindFundDistribution, rule: "nope"},
		{name: "other child", dst: "sib-spend", kind: entity.KindFundDistribution, rule: "allow"},
		{name: "other purpose", dst: "kid-save", kind: entity.KindFundDistribution, rule: "allow"},
		{name: "before rule", dst: "kid-spend", kind: entity.KindFundDistribution, rule: "allow", at: start},
		{name: "rule on transfer", dst: "kid-spend", kind: entity.KindFundTransfer, rule: "allow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.draft(tt.kind, "wallet", tt.dst, "mom", 10)
			d.RuleID = tt.rule
			if !tt.at.IsZero() {
				d.Timestamp = tt.at
			}
			expectCode(t, (Engine{}).CheckTransaction(f.g, d), apperrors.CodeRuleMismatch)
		})
	}
}

func TestDistributionCannotPredateLastDistribution(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 1000))
	first := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 10)
	first.RuleID = "allow"
	if err := f.apply(first); err != nil {
		t.Fatalf("first distribution: %v", err)
	}
	late := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 10)
	late.RuleID = "allow"
	late.Timestamp = first.Timestamp.Add(-time.Second)
	expectCode(t, f.apply(late), apperrors.CodeRuleMismatch)
}

func TestInitiatorAuthority(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 1000))
	f.post(f.draft(entity.KindFundTransfer, "wallet", "kid-spend", "mom", 100))
	f.post(f.draft(entity.KindFundTransfer, "wallet", "sib-spend", "mom", 100))

	tests := []struct {
		name      string
		kind      entity.Kind
		src, dst  entity.ID
		initiator entity.ID
		ok        bool
	}{
		{"admin pays from child account", entity.KindExternalPayment, "kid-spend", "store", "mom", true},
		{"child pays from own account", entity.KindExternalPayment, "kid-spend", "store", "kid", true},
		{"child pays from sibling account", entity.KindExternalPayment, "sib-spend", "store", "kid", false},
		{"child moves own money", entity.KindSubAccountTransfer, "kid-spend", "kid-save", "kid", true},
		{"transfer across children", entity.KindSubAccountTransfer, "kid-spend", "sib-save", "mom", false},
		{"child requests funds", entity.KindFundingRequest, "wallet", "kid-give", "kid", true},
		{"child requests for sibling", entity.KindFundingRequest, "wallet", "sib-give", "kid", false},
		{"admin cannot request", entity.KindFundingRequest, "wallet", "kid-give", "mom", false},
		{"foreign admin", entity.KindFundTransfer, "wallet", "kid-spend", "stranger", false},
		{"child cannot transfer", entity.KindFundTransfer, "wallet", "kid-spend", "kid", false},
		{"cross family", entity.KindFundTransfer, "wallet", "other-wallet", "mom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (Engine{}).CheckTransaction(f.g, f.draft(tt.kind, tt.src, tt.dst, tt.initiator, 5))
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectCode(t, err, apperrors.CodeCapabilityMismatch)
		})
	}
}

// Every accepted transaction has endpoints satisfying its kind's capability
// requirement, and every live endpoint lacking it is a capability mismatch.
func TestEndpointCapabilityProperty(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 1000))
	for _, purpose := range entity.SubAccountKinds {
		f.post(f.draft(entity.KindFundTransfer, "wallet", "kid-"+entity.ID(purpose), "mom", 10))
	}

	candidates := []entity.ID{
		"fam", "wallet", "mom", "card", "store", "kid", "kid-account",
		"kid-spend", "kid-save", "kid-give", "kid-earn", "kid-invest", "allow",
	}
	for _, kind := range entity.TransactionKinds {
		req, _ := RequirementFor(kind)
		for _, src := range candidates {
			for _, dst := range candidates {
				for _, initiator := range []entity.ID{"mom", "kid"} {
					d := f.draft(kind, src, dst, initiator, 1)
					if kind == entity.KindFundDistribution {
						d.RuleID = "allow"
					}
					err := (Engine{}).CheckTransaction(f.g, d)
					source, _ := f.g.Lookup(src)
					destination, _ := f.g.Lookup(dst)
					satisfied := source.IsA(req.Source) && destination.IsA(req.Destination)
					if err == nil && !satisfied {
						t.Fatalf("%s %s -> %s accepted without capabilities", kind, src, dst)
					}
					if !satisfied && !apperrors.IsCode(err, apperrors.CodeCapabilityMismatch) {
						t.Fatalf("%s %s -> %s: %v, want capability mismatch", kind, src, dst, err)
					}
				}
			}
		}
	}
}

func TestCheckBalanceDetectsDrift(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 80))
	if err := (Engine{}).CheckBalance(f.g, "wallet"); err != nil {
		t.Fatalf("check balance: %v", err)
	}
	f.g.Adjust("wallet", 5)
	expectCode(t, (Engine{}).CheckBalance(f.g, "wallet"), apperrors.CodeInconsistentBalance)
	expectCode(t, (Engine{}).VerifyLedger(f.g), apperrors.CodeInconsistentBalance)
	expectCode(t, (Engine{}).CheckBalance(f.g, "mom"), apperrors.CodeCapabilityMismatch)
}

func TestCheckRemoval(t *testing.T) {
	f := newFixture(t)
	e := Engine{}

	expectCode(t, removal(e, f, "kid"), apperrors.CodeRemovalBlocked)
	expectCode(t, removal(e, f, "mom"), apperrors.CodeRemovalBlocked)
	expectCode(t, removal(e, f, "wallet"), apperrors.CodeRemovalBlocked)
	expectCode(t, removal(e, f, "fam"), apperrors.CodeRemovalBlocked)

	cascade, err := e.CheckRemoval(f.g, "sib")
	if err != nil {
		t.Fatalf("remove sib: %v", err)
	}
	if len(cascade) != 7 || cascade[0] != "sib" || cascade[1] != "sib-account" {
		t.Fatalf("cascade = %v", cascade)
	}

	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 10))
	f.post(f.draft(entity.KindFundTransfer, "wallet", "sib-spend", "mom", 10))
	expectCode(t, removal(e, f, "sib"), apperrors.CodeRemovalBlocked)

	if err := f.g.Remove("allow", f.tick()); err != nil {
		t.Fatalf("remove rule: %v", err)
	}
	if _, err := e.CheckRemoval(f.g, "kid"); err != nil {
		t.Fatalf("remove kid after rule: %v", err)
	}
}

func removal(e Engine, f *fixture, id entity.ID) error {
	_, err := e.CheckRemoval(f.g, id)
	return err
}

func TestBalancesStayWithinServedRange(t *testing.T) {
	f := newFixture(t)

	if err := f.apply(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", MaxBalance-10)); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
	expectCode(t, f.apply(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 20)), apperrors.CodeInvalidAmount)
	expectCode(t, f.apply(f.draft(entity.KindExternalFundingTransfer, "card", "other-wallet", "mom", MaxBalance+1)), apperrors.CodeInvalidAmount)
	if got := f.balance("wallet"); got != MaxBalance-10 {
		t.Fatalf("wallet = %d, want %d", got, MaxBalance-10)
	}

	// Sub-accounts below the cap can still push the composite over it.
	f.g.Adjust("kid-save", MaxBalance-5)
	f.g.Adjust("kid-account", MaxBalance-5)
	if err := f.apply(f.draft(entity.KindSubAccountTransfer, "kid-save", "kid-spend", "kid", 10)); err != nil {
		t.Fatalf("transfer inside composite: %v", err)
	}
	d := f.draft(entity.KindFundDistribution, "wallet", "kid-spend", "mom", 10)
	d.RuleID = "allow"
	expectCode(t, f.apply(d), apperrors.CodeInvalidAmount)
}

func TestExternalFundingRemovableAtAnyNetFlow(t *testing.T) {
	f := newFixture(t)
	f.post(f.draft(entity.KindExternalFundingTransfer, "card", "wallet", "mom", 100))
	if got := f.balance("card"); got != -100 {
		t.Fatalf("card net flow = %d, want -100", got)
	}
	cascade, err := (Engine{}).CheckRemoval(f.g, "card")
	if err != nil {
		t.Fatalf("remove card: %v", err)
	}
	if !slices.Equal(cascade, []entity.ID{"card"}) {
		t.Fatalf("cascade = %v", cascade)
	}
}
