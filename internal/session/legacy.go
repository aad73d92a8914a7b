package session

import (
	"context"
	"errors"
	"strings"

	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/storage"
)

// Keys written by app versions that predate namespacing.
const (
	legacyUserContext          = "user_context"
	legacyAdvisorMessagePrefix = "advisor_conversations_"
)

// legacyMove is one un-namespaced key and the base name it becomes.
type legacyMove struct {
	from string
	base string
}

// MigrateLegacy moves un-namespaced keys into ns in one batch and returns
// how many values were copied. Values already present in ns win; the legacy
// key is removed either way so it cannot be claimed by another account
// later. Guest namespaces are never migrated into.
func (s *Store) MigrateLegacy(ctx context.Context, ns identity.Namespace) (int, error) {
	if ns.IsGuest() {
		return 0, nil
	}
	moves, err := s.legacyMoves(ctx)
	if err != nil {
		return 0, err
	}
	if len(moves) == 0 {
		return 0, nil
	}

	lockKeys := make([]string, 0, 2*len(moves))
	for _, m := range moves {
		lockKeys = append(lockKeys, m.from, ns.Key(m.base))
	}
	unlock := s.locks.lockMany(lockKeys...)
	defer unlock()

	var (
		ops    []storage.Op
		copied int
		taken  = make(map[string]bool)
	)
	for _, m := range moves {
		raw, err := s.backend.Get(ctx, m.from)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, unavailable("read", m.from, err)
		}
		ops = append(ops, storage.RemoveOp(m.from))

		dest := ns.Key(m.base)
		if taken[dest] {
			continue
		}
		_, err = s.backend.Get(ctx, dest)
		switch {
		case err == nil:
			taken[dest] = true
			s.log.Debug("legacy key shadowed by namespaced value", "key", m.from, "dest", dest)
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return 0, unavailable("read", dest, err)
		}
		taken[dest] = true
		ops = append(ops, storage.SetOp(dest, raw))
		copied++
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.apply(ctx, ops); err != nil {
		return 0, err
	}
	s.log.Info("legacy data migrated", "namespace", ns.String(), "copied", copied, "removed", countRemoves(ops))
	return copied, nil
}

// legacyMoves lists the legacy keys present in the backend. The exact
// user_preferences key comes before user_context so it takes precedence.
func (s *Store) legacyMoves(ctx context.Context) ([]legacyMove, error) {
	var moves []legacyMove
	for _, b := range fixedBases {
		moves = append(moves, legacyMove{from: b, base: b})
	}
	moves = append(moves, legacyMove{from: legacyUserContext, base: basePreferences})

	for _, prefix := range []string{baseConversationPrefix, legacyAdvisorMessagePrefix} {
		keys, err := s.backend.Keys(ctx, prefix)
		if err != nil {
			s.log.Error("list failed", "prefix", prefix, "error", err)
			return nil, unavailable("list", prefix, err)
		}
		for _, k := range keys {
			id := strings.TrimPrefix(k, prefix)
			if id == "" {
				continue
			}
			moves = append(moves, legacyMove{from: k, base: conversationBase(id)})
		}
	}
	return moves, nil
}

func countRemoves(ops []storage.Op) int {
	n := 0
	for _, op := range ops {
		if op.Kind == storage.OpRemove {
			n++
		}
	}
	return n
}
