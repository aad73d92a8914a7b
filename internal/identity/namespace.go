// Package identity decides whose data a request touches.
//
// A Namespace is the per-user key prefix that isolates one user's persisted
// data from another's: "user_<id>_" for an account, "guest_" otherwise.
// The prefix is the only isolation the key-value store has, so every key is
// built through Namespace.Key.
package identity

import "strings"

const (
	guestPrefix = "guest_"
	userPrefix  = "user_"
)

type Namespace struct {
	userID string
}

func Guest() Namespace { return Namespace{} }

// ForUser returns the namespace of userID; a blank id is the guest namespace.
func ForUser(userID string) Namespace {
	return Namespace{userID: strings.TrimSpace(userID)}
}

func (n Namespace) IsGuest() bool  { return n.userID == "" }
func (n Namespace) UserID() string { return n.userID }

func (n Namespace) Prefix() string {
	if n.IsGuest() {
		return guestPrefix
	}
	return userPrefix + n.userID + "_"
}

func (n Namespace) Key(baseName string) string {
	return n.Prefix() + baseName
}

func (n Namespace) String() string {
	return strings.TrimSuffix(n.Prefix(), "_")
}

// FromPrefix is the inverse of Prefix.
func FromPrefix(prefix string) (Namespace, bool) {
	if prefix == guestPrefix {
		return Guest(), true
	}
	if !strings.HasPrefix(prefix, userPrefix) || !strings.HasSuffix(prefix, "_") {
		return Namespace{}, false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(prefix, userPrefix), "_")
	if strings.TrimSpace(id) == "" || id != strings.TrimSpace(id) {
		return Namespace{}, false
	}
	return ForUser(id), true
}
