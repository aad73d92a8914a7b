package session

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/storage"
)

// migrateParallelism bounds concurrent reads during namespace migration.
const migrateParallelism = 8

// ListKeys returns the full keys owned by ns, sorted.
func (s *Store) ListKeys(ctx context.Context, ns identity.Namespace) ([]string, error) {
	prefix := ns.Prefix()
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		s.log.Error("list failed", "prefix", prefix, "error", err)
		return nil, unavailable("list", prefix, err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if isKnownBase(strings.TrimPrefix(k, prefix)) {
			out = append(out, k)
		}
	}
	return out, nil
}

// ClearNamespace removes every key of ns in one call and returns how many
// were removed.
func (s *Store) ClearNamespace(ctx context.Context, ns identity.Namespace) (int, error) {
	keys, err := s.ListKeys(ctx, ns)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	unlock := s.locks.lockMany(keys...)
	defer unlock()
	if err := s.backend.MultiRemove(ctx, keys); err != nil {
		s.log.Error("clear failed", "namespace", ns.String(), "error", err)
		return 0, unavailable("clear", ns.Prefix(), err)
	}
	s.log.Info("namespace cleared", "namespace", ns.String(), "keys", len(keys))
	return len(keys), nil
}

// MigrateNamespace copies every key of from into to with the value
// unchanged, overwriting what to already holds under the same base name.
// The source keys are left in place. Returns the number of keys copied.
func (s *Store) MigrateNamespace(ctx context.Context, from, to identity.Namespace) (int, error) {
	if from == to {
		return 0, nil
	}
	keys, err := s.ListKeys(ctx, from)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	dest := make([]string, len(keys))
	for i, k := range keys {
		dest[i] = to.Key(strings.TrimPrefix(k, from.Prefix()))
	}
	unlock := s.locks.lockMany(append(append([]string(nil), keys...), dest...)...)
	defer unlock()

	values := make([]string, len(keys))
	found := make([]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(migrateParallelism)
	for i, k := range keys {
		g.Go(func() error {
			v, err := s.backend.Get(gctx, k)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return unavailable("read", k, err)
			}
			values[i], found[i] = v, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("namespace migration read failed", "from", from.String(), "to", to.String(), "error", err)
		return 0, err
	}

	ops := make([]storage.Op, 0, len(keys))
	for i := range keys {
		if found[i] {
			ops = append(ops, storage.SetOp(dest[i], values[i]))
		}
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.apply(ctx, ops); err != nil {
		return 0, err
	}
	s.log.Info("namespace migrated", "from", from.String(), "to", to.String(), "keys", len(ops))
	return len(ops), nil
}

// Namespaces lists every namespace owning at least one key, message logs
// included, guest first and then users by id.
func (s *Store) Namespaces(ctx context.Context) ([]identity.Namespace, error) {
	keys, err := s.backend.Keys(ctx, "")
	if err != nil {
		s.log.Error("list failed", "error", err)
		return nil, unavailable("list", "", err)
	}
	seen := make(map[identity.Namespace]struct{})
	for _, k := range keys {
		if ns, ok := namespaceOf(k); ok {
			seen[ns] = struct{}{}
		}
	}
	out := make([]identity.Namespace, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsGuest() != out[j].IsGuest() {
			return out[i].IsGuest()
		}
		return out[i].UserID() < out[j].UserID()
	})
	return out, nil
}

// ReconcileOrphans removes message logs whose conversation is no longer in
// the namespace's list and returns their conversation ids.
func (s *Store) ReconcileOrphans(ctx context.Context, ns identity.Namespace) ([]string, error) {
	listKey := ns.Key(baseConversations)
	logKeys, err := s.messageLogKeys(ctx, ns)
	if err != nil {
		return nil, err
	}
	if len(logKeys) == 0 {
		return nil, nil
	}
	unlock := s.locks.lockMany(append([]string{listKey}, logKeys...)...)
	defer unlock()

	convs, err := load(ctx, s, listKey, newConversationList)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		keep[c.ID] = struct{}{}
	}
	var (
		orphans []string
		ops     []storage.Op
	)
	for _, k := range logKeys {
		id, _ := conversationIDFromBase(strings.TrimPrefix(k, ns.Prefix()))
		if _, ok := keep[id]; ok {
			continue
		}
		orphans = append(orphans, id)
		ops = append(ops, storage.RemoveOp(k))
	}
	if len(ops) == 0 {
		return nil, nil
	}
	if err := s.apply(ctx, ops); err != nil {
		return nil, err
	}
	s.log.Info("orphaned message logs removed", "namespace", ns.String(), "count", len(orphans))
	return orphans, nil
}

// ReconcileAll runs ReconcileOrphans over every namespace and returns the
// total number of message logs removed. A failing namespace does not stop
// the sweep; the first error is returned at the end.
func (s *Store) ReconcileAll(ctx context.Context) (int, error) {
	namespaces, err := s.Namespaces(ctx)
	if err != nil {
		return 0, err
	}
	var (
		total    int
		firstErr error
	)
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		orphans, err := s.ReconcileOrphans(ctx, ns)
		if err != nil {
			s.log.Warn("reconcile failed", "namespace", ns.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(orphans)
	}
	return total, firstErr
}
