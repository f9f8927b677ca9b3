// Package schedule turns recurring funding rules into fund distributions.
//
// The k-th distribution of a rule is due at its creation time advanced by k
// periods: seven days for WEEKLY, one calendar month for MONTHLY. A ONE_TIME
// rule is due once, at creation. Every distribution already recorded under a
// rule counts toward k, whether scheduled or recorded by hand.
package schedule

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/entity"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
	"github.com/louisbranch/famledger/internal/services/ledger/engine"
	"github.com/louisbranch/famledger/internal/services/ledger/resolve"
)

const (
	// DefaultInterval is how often Run checks for due rules.
	DefaultInterval = time.Hour
	// maxCatchUp bounds how many missed periods one run records per rule.
	maxCatchUp = 52
)

// DueAt returns when the k-th distribution of a rule is due.
func DueAt(terms entity.RuleTerms, createdAt time.Time, k int) (time.Time, bool) {
	if k < 0 {
		return time.Time{}, false
	}
	switch terms.Recurrence {
	case entity.RecurrenceOneTime:
		if k != 0 {
			return time.Time{}, false
		}
		return createdAt, true
	case entity.RecurrenceWeekly:
		return createdAt.AddDate(0, 0, 7*k), true
	case entity.RecurrenceMonthly:
		return createdAt.AddDate(0, k, 0), true
	}
	return time.Time{}, false
}

// Distribution is one distribution recorded by a run.
type Distribution struct {
	RuleID        entity.ID
	TransactionID entity.ID
	DueAt         time.Time
}

// Skip records a rule a run could not pay.
type Skip struct {
	RuleID entity.ID
	Err    error
}

// Report summarizes one run.
type Report struct {
	Recorded []Distribution
	Skipped  []Skip
}

// Scheduler records due distributions on a ledger.
type Scheduler struct {
	ledger     *engine.Ledger
	interval   time.Duration
	newBackOff func() backoff.BackOff
	maxTries   uint
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the Run tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBackOff sets the retry policy for contended writes.
func WithBackOff(newBackOff func() backoff.BackOff, maxTries uint) Option {
	return func(s *Scheduler) {
		s.newBackOff = newBackOff
		s.maxTries = maxTries
	}
}

// New returns a scheduler for l.
func New(l *engine.Ledger, opts ...Option) *Scheduler {
	s := &Scheduler{
		ledger:   l,
		interval: DefaultInterval,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		maxTries: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run checks for due rules immediately and then every interval until ctx
// is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		report, err := s.RunDue(ctx, s.ledger.Now())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("scheduler: run failed: %v", err)
		} else if len(report.Recorded) > 0 || len(report.Skipped) > 0 {
			log.Printf("scheduler: recorded %d distributions, skipped %d rules", len(report.Recorded), len(report.Skipped))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunDue records every distribution due at or before now.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	for _, kind := range entity.RuleKinds {
		for ruleID := range s.ledger.Snapshot().OfKind(kind) {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := s.runRule(ctx, ruleID, now, &report); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				log.Printf("scheduler: rule %s skipped: %v", ruleID, err)
				report.Skipped = append(report.Skipped, Skip{RuleID: ruleID, Err: err})
			}
		}
	}
	return report, nil
}

func (s *Scheduler) runRule(ctx context.Context, ruleID entity.ID, now time.Time, report *Report) error {
	for range maxCatchUp {
		r := resolve.New(s.ledger.Snapshot())
		rule, err := r.Rule(ruleID)
		if resolve.IsAbsent(err) {
			return nil
		}
		if err != nil {
			return err
		}
		paid, err := r.Distributions(ctx, ruleID)
		if err != nil {
			return err
		}
		due, ok := DueAt(*rule.Rule, rule.CreatedAt, len(paid))
		if !ok || due.After(now) {
			return nil
		}
		payment, initiator, err := plan(ctx, r, rule)
		if err != nil {
			return err
		}
		txID, err := s.record(ctx, initiator, payment)
		if err != nil {
			return err
		}
		report.Recorded = append(report.Recorded, Distribution{RuleID: ruleID, TransactionID: txID, DueAt: due})
	}
	return nil
}

// plan builds the distribution a rule pays: family wallet to the target
// child's sub-account of the rule's purpose, initiated by the rule's creator
// or, once the creator is gone, the family's first live admin.
func plan(ctx context.Context, r *resolve.Resolver, rule entity.Entity) (ledger.TransactionRecordPayload, entity.ID, error) {
	child, err := r.One(rule.ID, graph.RelTarget)
	if err != nil {
		return ledger.TransactionRecordPayload{}, "", err
	}
	family, err := r.FamilyOf(rule.ID)
	if err != nil {
		return ledger.TransactionRecordPayload{}, "", err
	}
	wallet, err := r.One(family.ID, graph.RelWallet)
	if err != nil {
		return ledger.TransactionRecordPayload{}, "", err
	}
	sub, err := r.SubAccount(child.ID, rule.Rule.Purpose)
	if err != nil {
		return ledger.TransactionRecordPayload{}, "", err
	}

	initiator, err := r.One(rule.ID, graph.RelCreator)
	if err != nil {
		if !resolve.IsAbsent(err) {
			return ledger.TransactionRecordPayload{}, "", err
		}
		admins, err := r.Admins(ctx, family.ID)
		if err != nil {
			return ledger.TransactionRecordPayload{}, "", err
		}
		if len(admins) == 0 {
			return ledger.TransactionRecordPayload{}, "", apperrors.WithMetadata(apperrors.CodeUnauthorizedActor, "family has no admin to initiate distributions", map[string]string{"id": string(family.ID)})
		}
		initiator = admins[0]
	}

	description := rule.Rule.Title
	if description == "" {
		description = string(rule.Kind)
	}
	return ledger.TransactionRecordPayload{
		Kind:          string(entity.KindFundDistribution),
		Amount:        rule.Rule.Amount,
		Description:   description,
		SourceID:      string(wallet.ID),
		DestinationID: string(sub.ID),
		RuleID:        string(rule.ID),
	}, initiator.ID, nil
}

// record retries contended writes with backoff; any other error is final.
func (s *Scheduler) record(ctx context.Context, initiator entity.ID, p ledger.TransactionRecordPayload) (entity.ID, error) {
	// One id for every attempt so a retried write cannot pay twice.
	txID, err := s.ledger.NewID()
	if err != nil {
		return "", err
	}
	p.TransactionID = txID
	return backoff.Retry(ctx, func() (entity.ID, error) {
		id, err := s.ledger.RecordTransaction(ctx, initiator, p)
		if err == nil {
			return id, nil
		}
		if apperrors.IsCode(err, apperrors.CodeContention) {
			return "", err
		}
		return "", backoff.Permanent(err)
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.maxTries))
}

// IsUnfunded reports whether a skip was caused by an empty wallet.
func IsUnfunded(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeNegativeBalance)
}
