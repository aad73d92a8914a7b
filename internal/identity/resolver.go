package identity

import (
	"context"

	"coffeeleaf/internal/auth"
	"coffeeleaf/internal/logger"
)

// UserSource reports the signed-in user, or nil when nobody is signed in.
type UserSource interface {
	CurrentUser(ctx context.Context) (*auth.User, error)
}

type Resolver struct {
	source UserSource
	log    *logger.Logger
}

func NewResolver(source UserSource, log *logger.Logger) *Resolver {
	return &Resolver{source: source, log: logger.OrNop(log).With("component", "identity")}
}

// Resolve never fails: any lookup problem lands in the guest namespace.
// Nothing is cached, so an identity change shows up on the next call.
func (r *Resolver) Resolve(ctx context.Context) Namespace {
	if r == nil || r.source == nil {
		return Guest()
	}
	u, err := r.source.CurrentUser(ctx)
	if err != nil {
		r.log.Warn("user lookup failed, using guest namespace", "error", err)
		return Guest()
	}
	if u == nil {
		return Guest()
	}
	return ForUser(u.ID)
}
