package graph

import (
	"slices"
	"testing"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func mustInsert(t *testing.T, g *Graph, id entity.ID, kind entity.Kind) entity.Entity {
	t.Helper()
	caps, _ := entity.Capabilities(kind)
	spec := entity.Spec{ID: id, Kind: kind, CreatedAt: now}
	switch {
	case caps.Has(entity.CapUser):
		spec.User = &entity.UserProfile{UserName: string(id)}
	case caps.Has(entity.CapFundingRule):
		spec.Rule = &entity.RuleTerms{Recurrence: entity.RecurrenceWeekly, Amount: 100, Purpose: entity.KindSpend}
	case caps.Has(entity.CapTransaction):
		spec.Transaction = &entity.TransactionRecord{Amount: 10}
	}
	e, err := entity.New(spec)
	if err != nil {
		t.Fatalf("new %s: %v", id, err)
	}
	inserted, err := g.Insert(e)
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return inserted
}

func mustLink(t *testing.T, g *Graph, from entity.ID, rel Relation, to entity.ID) {
	t.Helper()
	if err := g.Link(from, rel, to); err != nil {
		t.Fatalf("link %s -%s-> %s: %v", from, rel, to, err)
	}
}

func collect(t *testing.T, g *Graph, id entity.ID, rel Relation) []entity.ID {
	t.Helper()
	seq, err := g.EdgesFrom(id, rel)
	if err != nil {
		t.Fatalf("edges from %s %s: %v", id, rel, err)
	}
	return slices.Collect(seq)
}

func TestEdgesFromPreservesCreationOrder(t *testing.T) {
	g := New()
	mustInsert(t, g, "fam", entity.KindFamily)
	for _, id := range []entity.ID{"c3", "c1", "c2"} {
		mustInsert(t, g, id, entity.KindChild)
		mustLink(t, g, "fam", RelChildren, id)
	}

	got := collect(t, g, "fam", RelChildren)
	want := []entity.ID{"c3", "c1", "c2"}
	if !slices.Equal(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	if again := collect(t, g, "fam", RelChildren); !slices.Equal(again, got) {
		t.Fatalf("second traversal = %v, want %v", again, got)
	}
}

func TestEdgesFromInverseRelation(t *testing.T) {
	g := New()
	mustInsert(t, g, "fam", entity.KindFamily)
	mustInsert(t, g, "kid", entity.KindChild)
	mustLink(t, g, "fam", RelChildren, "kid")

	family, ok, err := g.First("kid", RelFamily)
	if err != nil || !ok || family != "fam" {
		t.Fatalf("first family = %s, %v, %v", family, ok, err)
	}
}

func TestTransactionsMergeSourceAndDestinationBySeq(t *testing.T) {
	g := New()
	mustInsert(t, g, "w", entity.KindWallet)
	mustInsert(t, g, "s", entity.KindSpend)
	mustInsert(t, g, "ext", entity.KindExternalFunding)
	mustInsert(t, g, "admin", entity.KindParent)

	// tx1: ext -> w, tx2: w -> s, tx3: ext -> w
	pairs := []struct {
		id       entity.ID
		src, dst entity.ID
	}{{"tx1", "ext", "w"}, {"tx2", "w", "s"}, {"tx3", "ext", "w"}}
	for _, p := range pairs {
		mustInsert(t, g, p.id, entity.KindFundTransfer)
		mustLink(t, g, p.id, RelSource, p.src)
		mustLink(t, g, p.id, RelDestination, p.dst)
		mustLink(t, g, p.id, RelInitiator, "admin")
	}

	got := collect(t, g, "w", RelTransactions)
	want := []entity.ID{"tx1", "tx2", "tx3"}
	if !slices.Equal(got, want) {
		t.Fatalf("wallet transactions = %v, want %v", got, want)
	}
	if got := collect(t, g, "s", RelTransactions); !slices.Equal(got, []entity.ID{"tx2"}) {
		t.Fatalf("spend transactions = %v", got)
	}
}

func TestEdgesFromIsLazy(t *testing.T) {
	g := New()
	mustInsert(t, g, "fam", entity.KindFamily)
	for _, id := range []entity.ID{"a", "b", "c"} {
		mustInsert(t, g, id, entity.KindChild)
		mustLink(t, g, "fam", RelChildren, id)
	}
	seq, err := g.EdgesFrom("fam", RelChildren)
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	var seen []entity.ID
	for id := range seq {
		seen = append(seen, id)
		break
	}
	if len(seen) != 1 || seen[0] != "a" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestEdgesFromErrors(t *testing.T) {
	g := New()
	mustInsert(t, g, "dev", entity.KindDevice)

	if _, err := g.EdgesFrom("missing", RelChildren); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing id err = %v", err)
	}
	if _, err := g.EdgesFrom("dev", RelChildren); !apperrors.IsCode(err, apperrors.CodeUnsupportedRelation) {
		t.Fatalf("unsupported relation err = %v", err)
	}
}

func TestLinkErrors(t *testing.T) {
	g := New()
	mustInsert(t, g, "fam", entity.KindFamily)
	mustInsert(t, g, "w", entity.KindWallet)
	mustInsert(t, g, "w2", entity.KindWallet)
	mustInsert(t, g, "dev", entity.KindDevice)

	if err := g.Link("fam", RelChildren, "ghost"); !apperrors.IsCode(err, apperrors.CodeDanglingReference) {
		t.Fatalf("dangling err = %v", err)
	}
	if err := g.Link("ghost", RelChildren, "w"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing source err = %v", err)
	}
	if err := g.Link("fam", RelFamily, "w"); !apperrors.IsCode(err, apperrors.CodeUnsupportedRelation) {
		t.Fatalf("unsupported err = %v", err)
	}
	if err := g.Link("fam", RelChildren, "dev"); !apperrors.IsCode(err, apperrors.CodeSchemaViolation) {
		t.Fatalf("wrong target kind err = %v", err)
	}
	mustLink(t, g, "fam", RelWallet, "w")
	if err := g.Link("fam", RelWallet, "w2"); !apperrors.IsCode(err, apperrors.CodeSchemaViolation) {
		t.Fatalf("second wallet err = %v", err)
	}
	if got := collect(t, g, "fam", RelChildren); len(got) != 0 {
		t.Fatalf("invalid edges must not be stored, got %v", got)
	}
}

func TestInsertRejectsReusedIdentifier(t *testing.T) {
	g := New()
	mustInsert(t, g, "dup", entity.KindDevice)
	if err := g.Remove("dup", now); err != nil {
		t.Fatalf("remove: %v", err)
	}
	e, _ := entity.New(entity.Spec{ID: "dup", Kind: entity.KindWallet, CreatedAt: now})
	if _, err := g.Insert(e); !apperrors.IsCode(err, apperrors.CodeIdentityConflict) {
		t.Fatalf("reuse err = %v", err)
	}
	if _, err := g.Lookup("dup"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("removed lookup err = %v", err)
	}
	if !g.Exists("dup") {
		t.Fatal("removed id must stay reserved")
	}
}

func TestCloneIsolatesWrites(t *testing.T) {
	base := New()
	mustInsert(t, base, "fam", entity.KindFamily)
	mustInsert(t, base, "c1", entity.KindChild)
	mustLink(t, base, "fam", RelChildren, "c1")
	mustInsert(t, base, "w", entity.KindWallet)

	next := base.Clone()
	mustInsert(t, next, "c2", entity.KindChild)
	mustLink(t, next, "fam", RelChildren, "c2")
	next.Adjust("w", 100)
	next.Commit()

	if got := collect(t, base, "fam", RelChildren); !slices.Equal(got, []entity.ID{"c1"}) {
		t.Fatalf("base children = %v", got)
	}
	if b, _ := base.Balance("w"); b != 0 {
		t.Fatalf("base balance = %d", b)
	}
	if base.Exists("c2") {
		t.Fatal("base must not see clone inserts")
	}
	if next.Version() != base.Version()+1 {
		t.Fatalf("versions = %d, %d", base.Version(), next.Version())
	}
}

func TestOfKindAndRelations(t *testing.T) {
	g := New()
	mustInsert(t, g, "r1", entity.KindAllowance)
	mustInsert(t, g, "r2", entity.KindAllowance)
	if got := slices.Collect(g.OfKind(entity.KindAllowance)); !slices.Equal(got, []entity.ID{"r1", "r2"}) {
		t.Fatalf("of kind = %v", got)
	}
	rels := Relations(entity.KindFamily)
	if !slices.IsSorted(rels) || !slices.Contains(rels, RelChildren) {
		t.Fatalf("family relations = %v", rels)
	}
	for _, kind := range entity.Kinds() {
		if len(Relations(kind)) == 0 {
			t.Fatalf("%s declares no relations", kind)
		}
	}
}

func newTx(t *testing.T, id entity.ID, kind entity.Kind, amount int64) entity.Entity {
	t.Helper()
	e, err := entity.New(entity.Spec{ID: id, Kind: kind, CreatedAt: now, Transaction: &entity.TransactionRecord{Amount: amount}})
	if err != nil {
		t.Fatalf("new %s: %v", id, err)
	}
	return e
}

func TestPostMovesSubAccountAndComposite(t *testing.T) {
	g := New()
	mustInsert(t, g, "admin", entity.KindParent)
	mustInsert(t, g, "w", entity.KindWallet)
	mustInsert(t, g, "acct", entity.KindChildAccount)
	mustInsert(t, g, "s", entity.KindSpend)
	mustInsert(t, g, "v", entity.KindSave)
	mustLink(t, g, "acct", RelSubAccounts, "s")
	mustLink(t, g, "acct", RelSubAccounts, "v")
	g.Adjust("w", 100)

	if _, err := g.Post(newTx(t, "tx1", entity.KindFundDistribution, 30), Posting{Source: "w", Destination: "s", Initiator: "admin"}); err != nil {
		t.Fatalf("post distribution: %v", err)
	}
	if _, err := g.Post(newTx(t, "tx2", entity.KindSubAccountTransfer, 10), Posting{Source: "s", Destination: "v", Initiator: "admin"}); err != nil {
		t.Fatalf("post transfer: %v", err)
	}

	want := map[entity.ID]int64{"w": 70, "s": 20, "v": 10, "acct": 30}
	for id, amount := range want {
		if got, _ := g.Balance(id); got != amount {
			t.Fatalf("balance %s = %d, want %d", id, got, amount)
		}
	}
	if got := collect(t, g, "s", RelTransactions); !slices.Equal(got, []entity.ID{"tx1", "tx2"}) {
		t.Fatalf("spend transactions = %v", got)
	}
}

func TestPostErrors(t *testing.T) {
	g := New()
	mustInsert(t, g, "admin", entity.KindParent)
	mustInsert(t, g, "w", entity.KindWallet)

	fam, err := entity.New(entity.Spec{ID: "fam", Kind: entity.KindFamily, CreatedAt: now})
	if err != nil {
		t.Fatalf("new family: %v", err)
	}
	if _, err := g.Post(fam, Posting{}); !apperrors.IsCode(err, apperrors.CodeSchemaViolation) {
		t.Fatalf("post family = %v, want schema violation", err)
	}
	_, err = g.Post(newTx(t, "tx", entity.KindFundTransfer, 5), Posting{Source: "w", Destination: "ghost", Initiator: "admin"})
	if !apperrors.IsCode(err, apperrors.CodeDanglingReference) {
		t.Fatalf("post to ghost = %v, want dangling reference", err)
	}
}
