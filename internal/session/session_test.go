package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeeleaf/internal/history"
	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/storage"
)

var fixedNow = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, storage.Backend) {
	t.Helper()
	b := storage.NewMemoryBackend()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(b, logger.NewNop(), opts...), b
}

// flakyBackend fails every call once armed.
type flakyBackend struct {
	storage.Backend
	fail bool
}

var errDown = errors.New("backend down")

func strPtr(s string) *string { return &s }

func (f *flakyBackend) Get(ctx context.Context, key string) (string, error) {
	if f.fail {
		return "", errDown
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key, value string) error {
	if f.fail {
		return errDown
	}
	return f.Backend.Set(ctx, key, value)
}

func (f *flakyBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if f.fail {
		return nil, errDown
	}
	return f.Backend.Keys(ctx, prefix)
}

func (f *flakyBackend) Apply(ctx context.Context, ops []storage.Op) error {
	if f.fail {
		return errDown
	}
	return f.Backend.Apply(ctx, ops)
}

func scan(id, result string) history.ScanRecord {
	return history.ScanRecord{ID: id, Date: "1/3/2024", Time: "08:30", Result: result, Confidence: "90", Location: "Vị trí hiện tại"}
}

func TestNamespaceIsolation(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	alice := identity.ForUser("alice")

	_, err := s.AddScan(ctx, alice, scan("1", "Bệnh phoma"))
	require.NoError(t, err)

	guest, err := s.ScanHistory(ctx, identity.Guest())
	require.NoError(t, err)
	assert.Empty(t, guest)

	raw, err := b.Get(ctx, "user_alice_scanHistory")
	require.NoError(t, err)
	assert.Contains(t, raw, "Bệnh phoma")

	_, err = b.Get(ctx, "guest_scanHistory")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAbsentAndMalformedValuesReadAsDefaults(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	list, err := s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	require.NoError(t, b.Set(ctx, "user_u1_scanHistory", "{not json"))
	list, err = s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, b.Set(ctx, "user_u1_user_preferences", `{"farmSize":"large"}`))
	p, err := s.Preferences(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "large", p.FarmSize)
	assert.Equal(t, "medium", p.PreferredDetailLevel)
	assert.Equal(t, "beginner", p.ExperienceLevel)
	assert.Nil(t, p.Region)
	assert.NotNil(t, p.PreviousConditions)
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	fb := &flakyBackend{Backend: storage.NewMemoryBackend()}
	s := New(fb, logger.NewNop())
	ctx := context.Background()
	ns := identity.ForUser("u1")

	_, err := s.AddScan(ctx, ns, scan("1", "Cây khoẻ"))
	require.NoError(t, err)

	fb.fail = true
	_, err = s.ScanHistory(ctx, ns)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, errDown)

	_, err = s.AddScan(ctx, ns, scan("2", "Cây khoẻ"))
	assert.True(t, IsUnavailable(err))

	fb.fail = false
	list, err := s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	assert.Len(t, list, 1, "failed write must not change stored data")
}

func TestAddScanPrependsAndTruncates(t *testing.T) {
	s, _ := newTestStore(t, WithScanLimit(3))
	ctx := context.Background()
	ns := identity.Guest()

	for i := 1; i <= 5; i++ {
		list, err := s.AddScan(ctx, ns, scan(fmt.Sprint(i), "Cây khoẻ"))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), list[0].ID)
	}
	list, err := s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"5", "4", "3"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestRemoveAndClearScans(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	require.NoError(t, s.SaveScanHistory(ctx, ns, []history.ScanRecord{scan("a", "x"), scan("b", "y")}))

	list, err := s.RemoveScan(ctx, ns, "missing")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.RemoveScan(ctx, ns, "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	require.NoError(t, s.ClearScanHistory(ctx, ns))
	require.NoError(t, s.ClearScanHistory(ctx, ns), "clearing twice is fine")
	list, err = s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentAddScanLosesNothing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("busy")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddScan(ctx, ns, scan(fmt.Sprint(i), "Cây khoẻ"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := s.ScanHistory(ctx, ns)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestConversationLifecycle(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("farmer")

	conv, err := s.CreateConversation(ctx, ns, "")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("conv_%d", fixedNow.UnixMilli()), conv.ID)
	assert.Equal(t, DefaultConversationTitle, conv.Title)
	assert.Equal(t, "Chưa có tin nhắn", conv.LastMessage)
	assert.Equal(t, "Vừa tạo", conv.Time)

	second, err := s.CreateConversation(ctx, ns, "Tưới nước")
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, second.ID, "same millisecond must still give distinct ids")

	longQuestion := "Lá cà phê của tôi bị đốm vàng ở mặt dưới, tôi nên làm gì?"
	msgs, err := s.AppendMessages(ctx, ns, conv.ID,
		Message{Text: longQuestion, IsUser: true},
		Message{Text: "Đây có thể là bệnh gỉ sắt. Hãy kiểm tra mặt dưới lá.", IsUser: false, RecommendationID: strPtr("rec_1")},
	)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.Equal(t, "2024-03-01T08:30:00.000Z", msgs[0].Timestamp)

	convs, err := s.Conversations(ctx, ns)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID, "newest conversation first")
	touched := convs[1]
	assert.Equal(t, string([]rune(longQuestion)[:27])+"...", touched.Title)
	assert.Equal(t, "Đây có thể là bệnh gỉ sắt. Hãy...", touched.LastMessage)
	assert.Equal(t, "Vừa xong", touched.Time)

	_, err = s.AppendMessages(ctx, ns, conv.ID, Message{Text: "Cảm ơn", IsUser: true})
	require.NoError(t, err)
	convs, err = s.Conversations(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, touched.Title, convs[1].Title, "title is only derived once")

	_, err = s.AppendMessages(ctx, ns, "conv_unknown", Message{Text: "hi", IsUser: true})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	remaining, err := s.DeleteConversation(ctx, ns, conv.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)
	_, err = b.Get(ctx, ns.Key("conversation_"+conv.ID))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteConversationsIsAllOrNothing(t *testing.T) {
	fb := &flakyBackend{Backend: storage.NewMemoryBackend()}
	s := New(fb, logger.NewNop())
	ctx := context.Background()
	ns := identity.ForUser("u1")

	require.NoError(t, s.SaveConversations(ctx, ns, []Conversation{{ID: "c1"}, {ID: "c2"}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "c1", []Message{{ID: "m", Text: "hi"}}))

	// Reads succeed, the batch fails.
	failing := &applyFails{Backend: fb.Backend}
	s2 := New(failing, logger.NewNop())
	_, err := s2.DeleteConversations(ctx, ns, []string{"c1"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	convs, err := s.Conversations(ctx, ns)
	require.NoError(t, err)
	assert.Len(t, convs, 2)
	msgs, err := s.Messages(ctx, ns, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	remaining, err := s.DeleteConversations(ctx, ns, []string{"c1", "c2", "ghost"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
	msgs, err = s.Messages(ctx, ns, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// keysHook runs onKeys once, the first time a message log listing happens.
type keysHook struct {
	storage.Backend
	once   sync.Once
	onKeys func()
}

func (h *keysHook) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := h.Backend.Keys(ctx, prefix)
	if strings.HasSuffix(prefix, "conversation_") {
		h.once.Do(h.onKeys)
	}
	return keys, err
}

func TestClearConversationsBlocksConcurrentAppend(t *testing.T) {
	hook := &keysHook{Backend: storage.NewMemoryBackend()}
	s := New(hook, logger.NewNop())
	ctx := context.Background()
	ns := identity.ForUser("u1")

	conv, err := s.CreateConversation(ctx, ns, "")
	require.NoError(t, err)

	appended := make(chan error, 1)
	hook.onKeys = func() {
		go func() {
			_, err := s.AppendMessages(ctx, ns, conv.ID, Message{Text: "chen ngang", IsUser: true})
			appended <- err
		}()
		// give an unsynchronised append time to land inside the clear
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, s.ClearConversations(ctx, ns))
	assert.ErrorIs(t, <-appended, ErrConversationNotFound)

	keys, err := hook.Backend.Keys(ctx, ns.Prefix())
	require.NoError(t, err)
	assert.Empty(t, keys, "no message log may outlive the clear")
}

type applyFails struct{ storage.Backend }

func (applyFails) Apply(context.Context, []storage.Op) error { return errDown }

func TestClearConversationsRemovesUnlistedLogs(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	ns := identity.Guest()

	require.NoError(t, s.SaveConversations(ctx, ns, []Conversation{{ID: "c1"}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "c1", []Message{{ID: "1"}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "stale", []Message{{ID: "2"}}))
	require.NoError(t, s.ClearConversations(ctx, ns))

	keys, err := b.Keys(ctx, "guest_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPreferences(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	p, err := s.Preferences(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), p)

	region := "Đắk Lắk"
	large := "large"
	conditions := []string{"Gỉ sắt"}
	p, err = s.UpdatePreferences(ctx, ns, PreferencesPatch{FarmSize: &large, Region: &region, PreviousConditions: &conditions})
	require.NoError(t, err)
	assert.Equal(t, "large", p.FarmSize)
	assert.Equal(t, "medium", p.PreferredDetailLevel)
	require.NotNil(t, p.Region)
	assert.Equal(t, "Đắk Lắk", *p.Region)
	assert.Equal(t, "2024-03-01T08:30:00.000Z", p.LastUpdated)

	expert := "expert"
	p, err = s.UpdatePreferences(ctx, ns, PreferencesPatch{ExperienceLevel: &expert})
	require.NoError(t, err)
	assert.Equal(t, "large", p.FarmSize, "earlier patch survives")
	assert.Equal(t, []string{"Gỉ sắt"}, p.PreviousConditions)

	saved, err := s.SavePreferences(ctx, ns, UserPreferences{FarmSize: "medium"})
	require.NoError(t, err)
	assert.Equal(t, "", saved.ExperienceLevel, "save stores what it is given")
	assert.NotNil(t, saved.SuccessfulTreatments)
	assert.NotEmpty(t, saved.LastUpdated)
}

func TestInteractionAndFeedbackLogs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	list, err := s.Interactions(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.SaveInteractions(ctx, ns, []Interaction{{ID: "i1", Type: "question", Context: json.RawMessage(`{"k":1}`)}}))
	list, err = s.UpdateInteractions(ctx, ns, func(cur []Interaction) ([]Interaction, error) {
		return append([]Interaction{{ID: "i2", Type: "view"}}, cur...), nil
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"k":1}`, string(list[1].Context))

	fm, err := s.RecommendationFeedback(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, fm)
	require.NoError(t, s.SaveRecommendationFeedback(ctx, ns, FeedbackMap{"r1": {ID: "r1", UsageCount: 1}}))
	fm, err = s.RecommendationFeedback(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, 1, fm["r1"].UsageCount)
}

func TestListKeysDoesNotLeakAcrossPrefixCollisions(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{
		"user_1_scanHistory",
		"user_1_conversation_conv_9",
		"user_1_x_scanHistory",
		"user_1_x_conversation_conv_5",
		"user_1_conversation_x_user_preferences",
		"user_1_unrelated",
		"guest_scanHistory",
	} {
		require.NoError(t, b.Set(ctx, k, "[]"))
	}

	keys, err := s.ListKeys(ctx, identity.ForUser("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1_conversation_conv_9", "user_1_scanHistory"}, keys)

	keys, err = s.ListKeys(ctx, identity.ForUser("1_x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1_x_conversation_conv_5", "user_1_x_scanHistory"}, keys)
}

func TestClearNamespace(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	u := identity.ForUser("u1")

	_, err := s.AddScan(ctx, u, scan("1", "x"))
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, u, "")
	require.NoError(t, err)
	_, err = s.AddScan(ctx, identity.Guest(), scan("g", "x"))
	require.NoError(t, err)

	n, err := s.ClearNamespace(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := s.ListKeys(ctx, u)
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, err = b.Get(ctx, "guest_scanHistory")
	assert.NoError(t, err, "other namespaces untouched")

	n, err = s.ClearNamespace(ctx, u)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrateNamespaceCopiesValuesUnchanged(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	guest := identity.Guest()
	user := identity.ForUser("42")

	_, err := s.AddScan(ctx, guest, scan("1", "Bệnh miner"))
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, guest, "")
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, guest, conv.ID, Message{Text: "xin chào", IsUser: true})
	require.NoError(t, err)

	n, err := s.MigrateNamespace(ctx, guest, user)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, base := range []string{"scanHistory", "advisor_conversations", "conversation_" + conv.ID} {
		src, err := b.Get(ctx, guest.Key(base))
		require.NoError(t, err)
		dst, err := b.Get(ctx, user.Key(base))
		require.NoError(t, err)
		assert.Equal(t, src, dst, base)
	}

	n, err = s.MigrateNamespace(ctx, user, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNamespaces(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"user_b_scanHistory", "user_a_user_preferences", "guest_interaction_history", "user_c_conversation_x", "scanHistory", "junk"} {
		require.NoError(t, b.Set(ctx, k, "[]"))
	}
	got, err := s.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []identity.Namespace{identity.Guest(), identity.ForUser("a"), identity.ForUser("b"), identity.ForUser("c")}, got)
}

func TestNamespacesAttributesMessageLogsLikeListKeys(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{
		"user_1_conversation_a",
		"user_1_x_conversation_b_conversation_c",
		"guest_conversation_conv_9",
		"conversation_legacy",
	} {
		require.NoError(t, b.Set(ctx, k, "[]"))
	}
	got, err := s.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []identity.Namespace{identity.Guest(), identity.ForUser("1"), identity.ForUser("1_x_conversation_b")}, got)

	for _, ns := range got {
		keys, err := s.ListKeys(ctx, ns)
		require.NoError(t, err)
		assert.Len(t, keys, 1, ns.String())
	}
}

func TestReconcileOrphans(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	require.NoError(t, s.SaveConversations(ctx, ns, []Conversation{{ID: "keep"}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "keep", []Message{{ID: "1"}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "gone", []Message{{ID: "2"}}))

	orphans, err := s.ReconcileOrphans(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, orphans)

	keys, err := s.ListKeys(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_u1_advisor_conversations", "user_u1_conversation_keep"}, keys)

	orphans, err = s.ReconcileOrphans(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMigrateLegacy(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	user := identity.ForUser("7")

	legacy := map[string]string{
		"scanHistory":                  `[{"id":"old","result":"Cây khoẻ"}]`,
		"user_context":                 `{"farmSize":"large"}`,
		"advisor_conversations":        `[{"id":"conv_1","title":"cũ"}]`,
		"advisor_conversations_conv_1": `[{"id":"m1","text":"hi","isUser":true}]`,
		"conversation_conv_2":          `[]`,
		"interaction_history":          `[{"id":"old"}]`,
		"user_7_interaction_history":   `[{"id":"new"}]`,
		"guest_scanHistory":            `[]`,
	}
	for k, v := range legacy {
		require.NoError(t, b.Set(ctx, k, v))
	}

	n, err := s.MigrateLegacy(ctx, identity.Guest())
	require.NoError(t, err)
	assert.Zero(t, n, "guests never receive legacy data")

	n, err = s.MigrateLegacy(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	p, err := s.Preferences(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "large", p.FarmSize)

	msgs, err := s.Messages(ctx, user, "conv_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	list, err := s.Interactions(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID, "namespaced value wins")

	all, err := b.Keys(ctx, "")
	require.NoError(t, err)
	for _, k := range all {
		assert.True(t, strings.HasPrefix(k, "user_") || strings.HasPrefix(k, "guest_"), "legacy key %q left behind", k)
	}

	n, err = s.MigrateLegacy(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to migrate")
}

func TestReconcileAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, ns := range []identity.Namespace{identity.Guest(), identity.ForUser("a"), identity.ForUser("b")} {
		require.NoError(t, s.SaveConversations(ctx, ns, []Conversation{{ID: "live"}}))
		require.NoError(t, s.SaveMessages(ctx, ns, "live", []Message{{ID: "1"}}))
		require.NoError(t, s.SaveMessages(ctx, ns, "dead", []Message{{ID: "2"}}))
	}

	n, err := s.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs, err := s.Messages(ctx, identity.ForUser("b"), "live")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestReconcileAllVisitsNamespacesWithOnlyMessageLogs(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	solo := identity.ForUser("solo")
	require.NoError(t, s.SaveMessages(ctx, solo, "conv_1", []Message{{ID: "1", Text: "còn sót"}}))

	n, err := s.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := b.Keys(ctx, solo.Prefix())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteConversationScenario(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.Guest()

	require.NoError(t, s.SaveConversations(ctx, ns, []Conversation{{ID: "c1", Title: DefaultConversationTitle}}))
	require.NoError(t, s.SaveMessages(ctx, ns, "c1", []Message{
		{ID: "1", Text: "Lá bị vàng", IsUser: true},
		{ID: "2", Text: "Có thể thiếu đạm", IsUser: false},
	}))

	_, err := s.DeleteConversation(ctx, ns, "c1")
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, ns, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	convs, err := s.Conversations(ctx, ns)
	require.NoError(t, err)
	for _, c := range convs {
		assert.NotEqual(t, "c1", c.ID)
	}
}

func TestSavePreferencesRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.ForUser("u1")

	region := "Lâm Đồng"
	p := UserPreferences{
		PreferredDetailLevel:   "high",
		ExperienceLevel:        "intermediate",
		FarmSize:               "large",
		Region:                 &region,
		PreviousConditions:     []string{"Phoma"},
		SuccessfulTreatments:   []string{},
		UnsuccessfulTreatments: []string{"rec_1"},
	}
	saved, err := s.SavePreferences(ctx, ns, p)
	require.NoError(t, err)

	got, err := s.Preferences(ctx, ns)
	require.NoError(t, err)
	want := p
	want.LastUpdated = saved.LastUpdated
	assert.Equal(t, want, got)
	assert.Equal(t, "2024-03-01T08:30:00.000Z", got.LastUpdated)
}

func TestSavePreferencesKeepsBlankFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ns := identity.Guest()

	p := UserPreferences{
		PreferredDetailLevel:   "low",
		ExperienceLevel:        "",
		FarmSize:               "",
		PreviousConditions:     []string{},
		SuccessfulTreatments:   []string{},
		UnsuccessfulTreatments: []string{},
	}
	saved, err := s.SavePreferences(ctx, ns, p)
	require.NoError(t, err)

	got, err := s.Preferences(ctx, ns)
	require.NoError(t, err)
	want := p
	want.LastUpdated = saved.LastUpdated
	assert.Equal(t, want, got)
}

func TestMessageOptionalFieldsSerializeAsNull(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()
	ns := identity.Guest()

	conv, err := s.CreateConversation(ctx, ns, "")
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, ns, conv.ID,
		Message{ID: "1", Text: "Lá có đốm nâu", IsUser: true},
		Message{ID: "2", Text: "Có thể là bệnh Cerco", Type: strPtr("recommendation"), RecommendationID: strPtr("rec_cerco")},
	)
	require.NoError(t, err)

	raw, err := b.Get(ctx, ns.Key("conversation_"+conv.ID))
	require.NoError(t, err)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 2)

	for _, field := range []string{"type", "feedback", "recommendationId"} {
		v, ok := stored[0][field]
		assert.True(t, ok, "%s must be present", field)
		assert.Nil(t, v, "%s must be null", field)
	}
	assert.Equal(t, "recommendation", stored[1]["type"])
	assert.Equal(t, "rec_cerco", stored[1]["recommendationId"])
	assert.Nil(t, stored[1]["feedback"])
}
