package engine

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/louisbranch/famledger/internal/platform/errors"
	"github.com/louisbranch/famledger/internal/services/ledger/domain/command"
)

// globalKey serializes commands that reference nothing lockable.
const globalKey = "*"

type lockManager struct {
	mu   sync.Mutex
	keys map[string]*semaphore.Weighted
}

func newLockManager() *lockManager {
	return &lockManager{keys: make(map[string]*semaphore.Weighted)}
}

func (m *lockManager) sem(key string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.keys[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		m.keys[key] = s
	}
	return s
}

// acquire takes every key in sorted order. Waiting longer than timeout on
// any key releases what was taken and reports Contention.
func (m *lockManager) acquire(ctx context.Context, keys []string, timeout time.Duration) (func(), error) {
	held := make([]*semaphore.Weighted, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for _, key := range keys {
		s := m.sem(key)
		if err := s.Acquire(waitCtx, 1); err != nil {
			release()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, apperrors.WithMetadata(apperrors.CodeContention, "timed out waiting for a lock", map[string]string{"key": key})
			}
			return nil, err
		}
		held = append(held, s)
	}
	return release, nil
}

// lockKeys lists the identifiers a command references: every string payload
// field named *_id, plus sub-account ids. Keys come back sorted and unique.
func lockKeys(cmd command.Command) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(cmd.PayloadJSON, &fields); err != nil {
		return []string{globalKey}
	}
	var keys []string
	for name, raw := range fields {
		switch {
		case name == "sub_accounts":
			var subs map[string]string
			if json.Unmarshal(raw, &subs) == nil {
				for _, id := range subs {
					keys = append(keys, id)
				}
			}
		case strings.HasSuffix(name, "_id"):
			var id string
			if json.Unmarshal(raw, &id) == nil {
				keys = append(keys, id)
			}
		}
	}
	keys = slices.DeleteFunc(keys, func(k string) bool { return strings.TrimSpace(k) == "" })
	if len(keys) == 0 {
		return []string{globalKey}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
