package session

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/storage"
)

var ErrConversationNotFound = errors.New("session: conversation not found")

const (
	DefaultConversationTitle = "Hội thoại mới"
	emptyPreview             = "Chưa có tin nhắn"
	noMessagesPreview        = "Không có tin nhắn"
	createdLabel             = "Vừa tạo"
	updatedLabel             = "Vừa xong"

	titleMaxRunes   = 30
	titleKeepRunes  = 27
	previewMaxRunes = 30
)

func newConversationList() []Conversation { return []Conversation{} }
func newMessageList() []Message           { return []Message{} }

func (s *Store) Conversations(ctx context.Context, ns identity.Namespace) ([]Conversation, error) {
	return load(ctx, s, ns.Key(baseConversations), newConversationList)
}

func (s *Store) SaveConversations(ctx context.Context, ns identity.Namespace, list []Conversation) error {
	if list == nil {
		list = newConversationList()
	}
	key := ns.Key(baseConversations)
	unlock := s.locks.lock(key)
	defer unlock()
	return s.save(ctx, key, list)
}

// CreateConversation prepends a fresh conversation to the list. A blank
// title gets the default one.
func (s *Store) CreateConversation(ctx context.Context, ns identity.Namespace, title string) (Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultConversationTitle
	}
	var created Conversation
	_, err := update(ctx, s, ns.Key(baseConversations), newConversationList, func(cur []Conversation) ([]Conversation, error) {
		millis := s.now().UnixMilli()
		for listed(cur, "conv_"+strconv.FormatInt(millis, 10)) {
			millis++
		}
		created = Conversation{
			ID:          "conv_" + strconv.FormatInt(millis, 10),
			Title:       title,
			LastMessage: emptyPreview,
			Time:        createdLabel,
		}
		return append([]Conversation{created}, cur...), nil
	})
	if err != nil {
		return Conversation{}, err
	}
	return created, nil
}

func listed(list []Conversation, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Messages returns the message log of one conversation in chronological
// order.
func (s *Store) Messages(ctx context.Context, ns identity.Namespace, conversationID string) ([]Message, error) {
	return load(ctx, s, ns.Key(conversationBase(conversationID)), newMessageList)
}

func (s *Store) SaveMessages(ctx context.Context, ns identity.Namespace, conversationID string, msgs []Message) error {
	if msgs == nil {
		msgs = newMessageList()
	}
	key := ns.Key(conversationBase(conversationID))
	unlock := s.locks.lock(key)
	defer unlock()
	return s.save(ctx, key, msgs)
}

// AppendMessages adds msgs to the conversation's log and refreshes its list
// entry (title, preview, time) in the same batch. Missing message ids and
// timestamps are filled in.
func (s *Store) AppendMessages(ctx context.Context, ns identity.Namespace, conversationID string, msgs ...Message) ([]Message, error) {
	listKey := ns.Key(baseConversations)
	logKey := ns.Key(conversationBase(conversationID))
	unlock := s.locks.lockMany(listKey, logKey)
	defer unlock()

	convs, err := load(ctx, s, listKey, newConversationList)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, c := range convs {
		if c.ID == conversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrConversationNotFound
	}

	log, err := load(ctx, s, logKey, newMessageList)
	if err != nil {
		return nil, err
	}
	base := s.now().UnixMilli()
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = strconv.FormatInt(base+int64(i), 10)
		}
		if m.Timestamp == "" {
			m.Timestamp = s.timestamp()
		}
		log = append(log, m)
	}
	convs[idx] = touchConversation(convs[idx], log)

	rawLog, err := s.encode(logKey, log)
	if err != nil {
		return nil, err
	}
	rawList, err := s.encode(listKey, convs)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, []storage.Op{
		storage.SetOp(logKey, rawLog),
		storage.SetOp(listKey, rawList),
	}); err != nil {
		return nil, err
	}
	return log, nil
}

func touchConversation(c Conversation, log []Message) Conversation {
	lastUser := ""
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].IsUser {
			lastUser = log[i].Text
			break
		}
	}
	if lastUser != "" && c.Title == DefaultConversationTitle {
		if r := []rune(lastUser); len(r) > titleMaxRunes {
			lastUser = string(r[:titleKeepRunes]) + "..."
		}
		c.Title = lastUser
	}
	if len(log) == 0 {
		c.LastMessage = noMessagesPreview
	} else {
		r := []rune(log[len(log)-1].Text)
		if len(r) > previewMaxRunes {
			r = r[:previewMaxRunes]
		}
		c.LastMessage = string(r) + "..."
	}
	c.Time = updatedLabel
	return c
}

// DeleteConversation removes one conversation and its message log.
func (s *Store) DeleteConversation(ctx context.Context, ns identity.Namespace, conversationID string) ([]Conversation, error) {
	return s.DeleteConversations(ctx, ns, []string{conversationID})
}

// DeleteConversations removes the listed conversations and their message
// logs in one all-or-nothing batch and returns the remaining list.
func (s *Store) DeleteConversations(ctx context.Context, ns identity.Namespace, ids []string) ([]Conversation, error) {
	listKey := ns.Key(baseConversations)
	keys := []string{listKey}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		drop[id] = struct{}{}
		keys = append(keys, ns.Key(conversationBase(id)))
	}
	unlock := s.locks.lockMany(keys...)
	defer unlock()

	convs, err := load(ctx, s, listKey, newConversationList)
	if err != nil {
		return nil, err
	}
	remaining := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if _, ok := drop[c.ID]; !ok {
			remaining = append(remaining, c)
		}
	}
	rawList, err := s.encode(listKey, remaining)
	if err != nil {
		return nil, err
	}
	ops := []storage.Op{storage.SetOp(listKey, rawList)}
	for _, k := range keys[1:] {
		ops = append(ops, storage.RemoveOp(k))
	}
	if err := s.apply(ctx, ops); err != nil {
		return nil, err
	}
	return remaining, nil
}

// ClearConversations removes the list and every message log of the
// namespace, including logs the list no longer references.
func (s *Store) ClearConversations(ctx context.Context, ns identity.Namespace) error {
	listKey := ns.Key(baseConversations)
	// The list key sorts before every message log key of the namespace, so
	// taking it first keeps the lockMany ordering. Holding it blocks
	// AppendMessages, which means no new log can appear after the listing.
	unlockList := s.locks.lock(listKey)
	defer unlockList()

	logKeys, err := s.messageLogKeys(ctx, ns)
	if err != nil {
		return err
	}
	unlockLogs := s.locks.lockMany(logKeys...)
	defer unlockLogs()

	ops := []storage.Op{storage.RemoveOp(listKey)}
	for _, k := range logKeys {
		ops = append(ops, storage.RemoveOp(k))
	}
	return s.apply(ctx, ops)
}

func (s *Store) messageLogKeys(ctx context.Context, ns identity.Namespace) ([]string, error) {
	prefix := ns.Key(baseConversationPrefix)
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		s.log.Error("list failed", "prefix", prefix, "error", err)
		return nil, unavailable("list", prefix, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if isKnownBase(strings.TrimPrefix(k, ns.Prefix())) {
			out = append(out, k)
		}
	}
	return out, nil
}
