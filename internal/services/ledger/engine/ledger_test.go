package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/platform/id"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/invariant"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
	"github.com/louisbranch/famledger/internal/services/ledger/storage"
	"github.com/louisbranch/famledger/internal/services/ledger/storage/sqlite"
)

// memJournal is an in-memory storage.Journal.
type memJournal struct {
	mu     sync.Mutex
	events []event.Event
	fail   error
}

func (j *memJournal) AppendEvents(_ context.Context, events []event.Event) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return nil, j.fail
	}
	out := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.Seq = uint64(len(j.events) + 1)
		j.events = append(j.events, evt)
		out = append(out, evt)
	}
	return out, nil
}

func (j *memJournal) ListEvents(_ context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if afterSeq >= uint64(len(j.events)) {
		return nil, nil
	}
	rest := j.events[afterSeq:]
	if len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]event.Event(nil), rest...), nil
}

func (j *memJournal) LastSeq(context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return uint64(len(j.events)), nil
}

func (j *memJournal) VerifyChain(context.Context) error { return nil }

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func openLedger(t *testing.T, journal storage.Journal) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), Options{
		Journal:     journal,
		Now:         stepClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)),
		IDs:         id.Sequence("id"),
		LockTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

func subAccounts(child string) map[string]string {
	subs := make(map[string]string)
	for _, purpose := range entity.SubAccountKinds {
		subs[string(purpose)] = child + "-" + string(purpose)
	}
	return subs
}

// seedFamily builds mom's family with kid, mom's card, a store recipient and
// an allowance rule paying into kid's spend account.
func seedFamily(t *testing.T, l *Ledger) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		typ     command.Type
		actor   string
		payload any
	}{
		{ledger.CommandTypeParentRegister, "", ledger.UserRegisterPayload{UserID: "mom", UserName: "Ana", Roles: []string{"OWNER", "FUNDER"}}},
		{ledger.CommandTypeFamilyCreate, "mom", ledger.FamilyCreatePayload{FamilyID: "fam", WalletID: "wallet", Label: "Silva"}},
		{ledger.CommandTypeChildAdd, "mom", ledger.ChildAddPayload{FamilyID: "fam", ChildID: "kid", AccountID: "kid-account", SubAccounts: subAccounts("kid"), UserName: "Bia"}},
		{ledger.CommandTypeFundingSourceLink, "mom", ledger.FundingSourceLinkPayload{FundingSourceID: "card", ParentID: "mom", Label: "Visa"}},
		{ledger.CommandTypeRecipientRegister, "mom", ledger.RecipientRegisterPayload{RecipientID: "store", Label: "Corner store"}},
		{ledger.CommandTypeRuleCreate, "mom", ledger.RuleCreatePayload{RuleID: "allow", Kind: "allowance", ChildID: "kid", Recurrence: "WEEKLY", Amount: 50, Purpose: "spend"}},
	}
	for _, step := range steps {
		if _, err := l.Submit(ctx, step.typ, step.actor, "", step.payload); err != nil {
			t.Fatalf("%s: %v", step.typ, err)
		}
	}
}

func record(t *testing.T, l *Ledger, actor string, p ledger.TransactionRecordPayload) {
	t.Helper()
	if _, err := l.RecordTransaction(context.Background(), entity.ID(actor), p); err != nil {
		t.Fatalf("record %s: %v", p.Kind, err)
	}
}

func balance(t *testing.T, l *Ledger, account entity.ID) int64 {
	t.Helper()
	b, ok := l.Snapshot().Balance(account)
	if !ok {
		t.Fatalf("balance %s: not a ledger account", account)
	}
	return b
}

func TestExecutePublishesSnapshots(t *testing.T) {
	l := openLedger(t, nil)
	before := l.Snapshot()
	seedFamily(t, l)
	after := l.Snapshot()
	if before == after || before.Exists("fam") {
		t.Fatal("writes must publish a new snapshot and leave old ones untouched")
	}
	if after.Version() != 6 {
		t.Fatalf("version = %d, want 6", after.Version())
	}
}

func TestRejectedCommandLeavesSnapshot(t *testing.T) {
	journal := &memJournal{}
	l := openLedger(t, journal)
	seedFamily(t, l)
	snap := l.Snapshot()
	seq := len(journal.events)

	_, err := l.RecordTransaction(context.Background(), "mom", ledger.TransactionRecordPayload{
		Kind: "fund_distribution", Amount: 50, SourceID: "wallet", DestinationID: "kid-spend", RuleID: "allow",
	})
	if !apperrors.IsCode(err, apperrors.CodeNegativeBalance) {
		t.Fatalf("expected NegativeBalance, got %v", err)
	}
	if l.Snapshot() != snap || len(journal.events) != seq {
		t.Fatal("rejected command changed state")
	}
}

func TestJournalFailureLeavesSnapshot(t *testing.T) {
	journal := &memJournal{}
	l := openLedger(t, journal)
	seedFamily(t, l)
	snap := l.Snapshot()

	journal.fail = fmt.Errorf("wrap: %w", storage.ErrConflict)
	_, err := l.RecordTransaction(context.Background(), "mom", ledger.TransactionRecordPayload{
		Kind: "external_funding_transfer", Amount: 100, SourceID: "card", DestinationID: "wallet",
	})
	if !apperrors.IsCode(err, apperrors.CodeContention) {
		t.Fatalf("expected Contention, got %v", err)
	}
	if l.Snapshot() != snap {
		t.Fatal("failed append published a snapshot")
	}
}

func TestConcurrentPaymentsNeverOverdraw(t *testing.T) {
	l := openLedger(t, &memJournal{})
	seedFamily(t, l)
	record(t, l, "mom", ledger.TransactionRecordPayload{Kind: "external_funding_transfer", Amount: 100, SourceID: "card", DestinationID: "wallet"})
	record(t, l, "mom", ledger.TransactionRecordPayload{Kind: "fund_distribution", Amount: 100, SourceID: "wallet", DestinationID: "kid-spend", RuleID: "allow"})

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordTransaction(context.Background(), "kid", ledger.TransactionRecordPayload{
				Kind: "external_payment", Amount: 10, SourceID: "kid-spend", DestinationID: "store",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.IsCode(err, apperrors.CodeNegativeBalance):
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != 10 {
		t.Fatalf("succeeded = %d, want 10", succeeded)
	}
	if b := balance(t, l, "kid-spend"); b != 0 {
		t.Fatalf("spend = %d, want 0", b)
	}
	if err := (invariant.Engine{}).VerifyLedger(l.Snapshot()); err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
}

func TestLockTimeoutReportsContention(t *testing.T) {
	l := openLedger(t, nil)
	seedFamily(t, l)
	l.lockTimeout = 20 * time.Millisecond

	release, err := l.locks.acquire(context.Background(), []string{"card"}, time.Second)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer release()

	_, err = l.RecordTransaction(context.Background(), "mom", ledger.TransactionRecordPayload{
		Kind: "external_funding_transfer", Amount: 100, SourceID: "card", DestinationID: "wallet",
	})
	if !apperrors.IsCode(err, apperrors.CodeContention) {
		t.Fatalf("expected Contention, got %v", err)
	}
	if !apperrors.CodeContention.Retryable() {
		t.Fatal("contention should be retryable")
	}
}

func TestCanceledContextWhileWaiting(t *testing.T) {
	l := openLedger(t, nil)
	release, err := l.locks.acquire(context.Background(), []string{globalKey}, time.Second)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// No payload ids, so the command waits on the global key.
	_, err = l.Execute(ctx, command.Command{
		Type:        ledger.CommandTypeRecipientRegister,
		ActorID:     "mom",
		PayloadJSON: []byte(`{"label":"Corner store"}`),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// stallJournal blocks appends while stalled until release is closed.
type stallJournal struct {
	*memJournal
	stalled atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (j *stallJournal) AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if j.stalled.Load() {
		j.entered <- struct{}{}
		<-j.release
	}
	return j.memJournal.AppendEvents(ctx, events)
}

func TestStalledJournalReportsContention(t *testing.T) {
	journal := &stallJournal{memJournal: &memJournal{}, entered: make(chan struct{}, 1), release: make(chan struct{})}
	l := openLedger(t, journal)
	seedFamily(t, l)
	l.lockTimeout = 50 * time.Millisecond

	journal.stalled.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := l.RecordTransaction(context.Background(), "mom", ledger.TransactionRecordPayload{
			Kind: "external_funding_transfer", Amount: 100, SourceID: "card", DestinationID: "wallet",
		})
		done <- err
	}()
	<-journal.entered
	journal.stalled.Store(false)

	// Disjoint keys, so only the commit section is shared.
	_, err := l.RegisterParent(context.Background(), ledger.UserRegisterPayload{UserID: "dad", UserName: "Rui", Roles: []string{"FUNDER"}})
	if !apperrors.IsCode(err, apperrors.CodeContention) {
		t.Fatalf("expected Contention, got %v", err)
	}

	close(journal.release)
	if err := <-done; err != nil {
		t.Fatalf("stalled write: %v", err)
	}
	if _, err := l.RegisterParent(context.Background(), ledger.UserRegisterPayload{UserID: "dad", UserName: "Rui", Roles: []string{"FUNDER"}}); err != nil {
		t.Fatalf("write after stall: %v", err)
	}
}

func TestRedecisionIsValidated(t *testing.T) {
	l := openLedger(t, nil)
	seedFamily(t, l)

	calls := 0
	l.decide = func(g *graph.Graph, cmd command.Command, now func() time.Time) command.Decision {
		calls++
		if calls == 1 {
			// Publish a newer snapshot so the commit section decides again.
			l.current.Store(g.Clone())
			return ledger.Decide(g, cmd, now)
		}
		return command.Decision{}
	}
	_, err := l.RecordTransaction(context.Background(), "mom", ledger.TransactionRecordPayload{
		Kind: "external_funding_transfer", Amount: 100, SourceID: "card", DestinationID: "wallet",
	})
	if err == nil {
		t.Fatal("expected empty re-decision to be rejected")
	}
	if calls != 2 {
		t.Fatalf("decide calls = %d, want 2", calls)
	}
	if b, _ := l.Snapshot().Balance("wallet"); b != 0 {
		t.Fatalf("wallet = %d after rejected re-decision", b)
	}
}

func TestReplayFromSQLiteJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	l := openLedger(t, store)
	seedFamily(t, l)
	record(t, l, "mom", ledger.TransactionRecordPayload{Kind: "external_funding_transfer", Amount: 120, SourceID: "card", DestinationID: "wallet"})
	record(t, l, "mom", ledger.TransactionRecordPayload{Kind: "fund_distribution", Amount: 50, SourceID: "wallet", DestinationID: "kid-spend", RuleID: "allow"})
	record(t, l, "kid", ledger.TransactionRecordPayload{Kind: "sub_account_transfer", Amount: 20, SourceID: "kid-spend", DestinationID: "kid-save"})
	removed, err := l.Remove(ctx, "mom", "store")
	if err != nil || len(removed) != 1 || removed[0] != "store" {
		t.Fatalf("remove store = %v, %v", removed, err)
	}
	want := map[entity.ID]int64{}
	for _, account := range []entity.ID{"wallet", "kid-spend", "kid-save", "kid-account", "card"} {
		want[account] = balance(t, l, account)
	}
	version := l.Snapshot().Version()
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	replayed := openLedger(t, reopened)

	if replayed.Snapshot().Version() != version {
		t.Fatalf("replayed version = %d, want %d", replayed.Snapshot().Version(), version)
	}
	for account, b := range want {
		if got := balance(t, replayed, account); got != b {
			t.Fatalf("%s = %d after replay, want %d", account, got, b)
		}
	}
	if _, err := replayed.Snapshot().Lookup("store"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("removed recipient after replay: %v", err)
	}
	if tomb, ok := replayed.Snapshot().Node("store"); !ok || !tomb.Removed {
		t.Fatalf("recipient tombstone after replay = %+v, %v", tomb, ok)
	}
	if err := (invariant.Engine{}).VerifyLedger(replayed.Snapshot()); err != nil {
		t.Fatalf("verify replayed ledger: %v", err)
	}

	page, err := reopened.ListTransactions(ctx, storage.ListTransactionsRequest{Filter: `initiator_id = "kid"`})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(page.Transactions) != 1 || page.Transactions[0].Kind != "sub_account_transfer" {
		t.Fatalf("kid transactions = %+v", page.Transactions)
	}
}

func TestClosedLedgerRejects(t *testing.T) {
	l := openLedger(t, nil)
	l.Close()
	if _, err := l.RegisterParent(context.Background(), ledger.UserRegisterPayload{UserName: "Rui"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConvenienceCommandsGenerateIDs(t *testing.T) {
	l := openLedger(t, nil)
	ctx := context.Background()
	mom, err := l.RegisterParent(ctx, ledger.UserRegisterPayload{UserName: "Ana"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	fam, err := l.CreateFamily(ctx, mom, ledger.FamilyCreatePayload{Label: "Silva"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	kid, err := l.AddChild(ctx, mom, ledger.ChildAddPayload{FamilyID: string(fam), UserName: "Bia"})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	for _, purpose := range entity.SubAccountKinds {
		if _, ok := l.Snapshot().SubAccount(kid, purpose); !ok {
			t.Fatalf("missing %s sub-account", purpose)
		}
	}
	if mom != "id-1" || fam != "id-2" {
		t.Fatalf("ids = %s, %s", mom, fam)
	}
}
