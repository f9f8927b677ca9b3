package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/platform/id"
	platformotel "github.com/louisbranch/famledger/internal/platform/otel"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/event"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/graph"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/ledger"
	"github.com/louisbranch/famledger/internal/services/ledger/storage"
)

const (
	// DefaultLockTimeout bounds how long a command waits for its keys.
	DefaultLockTimeout = 2 * time.Second

	replayBatch = 200

	// commitKey names the commit section in Contention metadata.
	commitKey = "commit"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("ledger is closed")

// Options configures a Ledger.
type Options struct {
	// Journal persists events; nil keeps the ledger in memory only.
	Journal storage.Journal
	// Registry validates commands; defaults to ledger.NewRegistry().
	Registry *command.Registry
	// Now is the wall clock; defaults to time.Now.
	Now func() time.Time
	// IDs generates identifiers for convenience commands; defaults to id.NewID.
	IDs id.Generator
	// LockTimeout defaults to DefaultLockTimeout.
	LockTimeout time.Duration
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Result is the outcome of an accepted command.
type Result struct {
	Events   []event.Event
	Snapshot *graph.Graph
}

// Ledger owns the published graph snapshot and serializes writes to it.
type Ledger struct {
	journal     storage.Journal
	registry    *command.Registry
	clock       *clock
	ids         id.Generator
	idsMu       sync.Mutex
	lockTimeout time.Duration
	tracer      trace.Tracer

	locks   *lockManager
	commit  *semaphore.Weighted
	decide  func(*graph.Graph, command.Command, func() time.Time) command.Decision
	current atomic.Pointer[graph.Graph]
	closed  atomic.Bool
}

// Open builds a ledger, replaying the journal when one is configured.
func Open(ctx context.Context, opts Options) (*Ledger, error) {
	l := &Ledger{
		journal:     opts.Journal,
		registry:    opts.Registry,
		clock:       newClock(opts.Now),
		ids:         opts.IDs,
		lockTimeout: opts.LockTimeout,
		tracer:      opts.Tracer,
		locks:       newLockManager(),
		commit:      semaphore.NewWeighted(1),
		decide:      ledger.Decide,
	}
	if l.registry == nil {
		l.registry = ledger.NewRegistry()
	}
	if l.ids == nil {
		l.ids = id.NewID
	}
	if l.lockTimeout <= 0 {
		l.lockTimeout = DefaultLockTimeout
	}
	if l.tracer == nil {
		l.tracer = platformotel.Tracer("github.com/louisbranch/famledger/internal/services/ledger/engine")
	}

	g, err := l.replay(ctx)
	if err != nil {
		return nil, err
	}
	l.current.Store(g)
	return l, nil
}

func (l *Ledger) replay(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()
	if l.journal == nil {
		return g, nil
	}
	ctx, span := l.tracer.Start(ctx, "ledger.replay")
	defer span.End()

	if err := l.journal.VerifyChain(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("verify journal: %w", err)
	}
	var after uint64
	for {
		events, err := l.journal.ListEvents(ctx, after, replayBatch)
		if err != nil {
			return nil, fmt.Errorf("list events after %d: %w", after, err)
		}
		if len(events) == 0 {
			break
		}
		for _, evt := range events {
			if err := ledger.Fold(g, evt); err != nil {
				return nil, fmt.Errorf("fold event seq=%d type=%s: %w", evt.Seq, evt.Type, err)
			}
			g.Commit()
			l.clock.observe(evt.Timestamp)
			after = evt.Seq
		}
	}
	span.SetAttributes(attribute.Int64("ledger.events", int64(after)))
	if after > 0 {
		log.Printf("ledger: replayed %d events", after)
	}
	return g, nil
}

// Snapshot returns the current published graph. Callers must not mutate it.
func (l *Ledger) Snapshot() *graph.Graph {
	return l.current.Load()
}

// Now returns the next ledger timestamp.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// NewID returns a fresh identifier from the configured generator.
func (l *Ledger) NewID() (string, error) {
	l.idsMu.Lock()
	defer l.idsMu.Unlock()
	return l.ids()
}

// Close stops accepting commands. The journal is owned by the caller.
func (l *Ledger) Close() {
	l.closed.Store(true)
}

// Execute validates, decides and commits one command. Rejections come back
// as coded errors and leave the snapshot untouched.
func (l *Ledger) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.execute", trace.WithAttributes(
		attribute.String("ledger.command", string(cmd.Type)),
		attribute.String("ledger.actor_id", cmd.ActorID),
	))
	defer span.End()

	res, err := l.execute(ctx, cmd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("ledger.error_code", string(apperrors.CodeOf(err))))
		return Result{}, err
	}
	span.SetAttributes(attribute.Int64("ledger.version", int64(res.Snapshot.Version())))
	return res, nil
}

func (l *Ledger) execute(ctx context.Context, cmd command.Command) (Result, error) {
	if l.closed.Load() {
		return Result{}, ErrClosed
	}
	cmd, err := l.registry.ValidateForDecision(cmd)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid command", err)
	}

	release, err := l.locks.acquire(ctx, lockKeys(cmd), l.lockTimeout)
	if err != nil {
		return Result{}, err
	}
	defer release()

	base := l.current.Load()
	decision, err := l.decideOn(base, cmd)
	if err != nil {
		return Result{}, err
	}

	if err := l.acquireCommit(ctx); err != nil {
		return Result{}, err
	}
	defer l.commit.Release(1)

	// Another key set may have committed since the decision; decide again
	// against what is actually published.
	latest := l.current.Load()
	if latest != base {
		if decision, err = l.decideOn(latest, cmd); err != nil {
			return Result{}, err
		}
	}

	next := latest.Clone()
	for _, evt := range decision.Events {
		if err := ledger.Fold(next, evt); err != nil {
			return Result{}, fmt.Errorf("fold %s: %w", evt.Type, err)
		}
	}
	next.Commit()

	events := decision.Events
	if l.journal != nil {
		events, err = l.journal.AppendEvents(ctx, decision.Events)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Result{}, apperrors.Wrap(apperrors.CodeContention, "journal write conflict", err)
			}
			return Result{}, fmt.Errorf("append events: %w", err)
		}
	}
	l.current.Store(next)
	return Result{Events: events, Snapshot: next}, nil
}

func (l *Ledger) decideOn(g *graph.Graph, cmd command.Command) (command.Decision, error) {
	decision := l.decide(g, cmd, l.clock.Now)
	if err := decision.Err(); err != nil {
		return command.Decision{}, err
	}
	if err := decision.Validate(); err != nil {
		return command.Decision{}, err
	}
	return decision, nil
}

// acquireCommit waits up to the lock timeout for the commit section. The
// journal append runs inside it, so a stalled store surfaces as Contention.
func (l *Ledger) acquireCommit(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()
	if err := l.commit.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.WithMetadata(apperrors.CodeContention, "timed out waiting to commit", map[string]string{"key": commitKey})
	}
	return nil
}
