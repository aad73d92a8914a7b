package session

import (
	"strings"

	"coffeeleaf/internal/identity"
)

// Base names. They are part of the persisted format and must not change.
const (
	baseScanHistory        = "scanHistory"
	baseConversations      = "advisor_conversations"
	baseConversationPrefix = "conversation_"
	basePreferences        = "user_preferences"
	baseInteractions       = "interaction_history"
	baseFeedback           = "recommendation_feedback"
)

// fixedBases are the base names that do not embed an id.
var fixedBases = []string{
	baseScanHistory,
	baseConversations,
	basePreferences,
	baseInteractions,
	baseFeedback,
}

func conversationBase(conversationID string) string {
	return baseConversationPrefix + conversationID
}

// isKnownBase reports whether rest (a key with its namespace prefix
// stripped) is one of ours. Used to keep user "1" from claiming the keys of
// user "1_x", whose prefix "user_1_x_" also starts with "user_1_".
func isKnownBase(rest string) bool {
	for _, b := range fixedBases {
		if rest == b {
			return true
		}
	}
	id, ok := conversationIDFromBase(rest)
	if !ok {
		return false
	}
	// "conversation_x_scanHistory" under user "1" is really user
	// "1_conversation_x"'s scan history.
	if strings.Contains(id, "_"+baseConversationPrefix) {
		return false
	}
	for _, b := range fixedBases {
		if strings.HasSuffix(id, "_"+b) {
			return false
		}
	}
	return true
}

// namespaceOf returns the namespace owning key when key ends in one of the
// fixed base names or is a message log. Message logs are split at every
// "conversation_" and attributed where isKnownBase accepts the remainder, so
// the result agrees with ListKeys.
func namespaceOf(key string) (identity.Namespace, bool) {
	for _, b := range fixedBases {
		if !strings.HasSuffix(key, b) || len(key) == len(b) {
			continue
		}
		if ns, ok := identity.FromPrefix(key[:len(key)-len(b)]); ok {
			return ns, true
		}
	}
	for i := 0; i < len(key); {
		j := strings.Index(key[i:], baseConversationPrefix)
		if j < 0 {
			break
		}
		at := i + j
		if at > 0 && isKnownBase(key[at:]) {
			if ns, ok := identity.FromPrefix(key[:at]); ok {
				return ns, true
			}
		}
		i = at + 1
	}
	return identity.Namespace{}, false
}

func conversationIDFromBase(rest string) (string, bool) {
	if !strings.HasPrefix(rest, baseConversationPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(rest, baseConversationPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
