// Package memory keeps the advisor's per-user recollection: how well each
// recommendation was received and what the user has been doing recently.
package memory

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/session"
)

type Level string

const (
	VeryPositive Level = "very_positive"
	Positive     Level = "positive"
	Neutral      Level = "neutral"
	Negative     Level = "negative"
	VeryNegative Level = "very_negative"
)

var levelValues = map[Level]float64{
	VeryPositive: 1,
	Positive:     0.5,
	Neutral:      0,
	Negative:     -0.5,
	VeryNegative: -1,
}

// Value maps a level to its score contribution; unknown levels count as
// neutral.
func (l Level) Value() float64 { return levelValues[l] }

func (l Level) Valid() bool {
	_, ok := levelValues[l]
	return ok
}

const (
	newFeedbackWeight  = 0.7
	currentScoreWeight = 0.3
)

// NextScore blends a new feedback level into the running score. A zero
// score is treated as "no history", so the first feedback sets the score
// outright.
func NextScore(current float64, level Level) float64 {
	v := level.Value()
	if current == 0 {
		return v
	}
	return v*newFeedbackWeight + current*currentScoreWeight
}

// Interaction types recorded in the log.
const (
	RecommendationGiven    = "recommendation_given"
	RecommendationAccepted = "recommendation_accepted"
	RecommendationRejected = "recommendation_rejected"
	UserReportedSuccess    = "user_reported_success"
	UserReportedFailure    = "user_reported_failure"
	UserAskedFollowup      = "user_asked_followup"
	UserExpressedConfusion = "user_expressed_confusion"
	UserExpressedGratitude = "user_expressed_gratitude"
)

const (
	DefaultInteractionLimit = 100
	sentimentWindow         = 10
)

type Feedback struct {
	Level   Level           `json:"level"`
	Comment string          `json:"comment"`
	Success *bool           `json:"success"`
	Context json.RawMessage `json:"context,omitempty"`
}

// NewInteraction is an interaction to log. Blank fields get defaults.
// UpdatePreferences, when set, is merged into the user's preferences.
type NewInteraction struct {
	ID                string                    `json:"id"`
	Timestamp         string                    `json:"timestamp"`
	Type              string                    `json:"type"`
	Content           json.RawMessage           `json:"content"`
	Context           json.RawMessage           `json:"context"`
	UpdatePreferences *session.PreferencesPatch `json:"updatePreferences,omitempty"`
}

type Sentiment struct {
	Sentiment  Level            `json:"sentiment"`
	Confidence float64          `json:"confidence"`
	Details    SentimentDetails `json:"details"`
}

type SentimentDetails struct {
	SentimentScore         float64        `json:"sentimentScore"`
	PositiveCount          int            `json:"positiveCount"`
	NegativeCount          int            `json:"negativeCount"`
	RecentInteractionTypes map[string]int `json:"recentInteractionTypes"`
}

type Service struct {
	store *session.Store
	log   *logger.Logger
	limit int
	now   func() time.Time
}

type Option func(*Service)

func WithInteractionLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store *session.Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logger.OrNop(log).With("component", "memory"),
		limit: DefaultInteractionLimit,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// RecordFeedback folds one feedback event into the recommendation's record,
// logs the matching interaction and remembers the treatment outcome in the
// user's preferences. Returns the updated record.
func (s *Service) RecordFeedback(ctx context.Context, ns identity.Namespace, recommendationID string, fb Feedback) (session.RecommendationFeedback, error) {
	if fb.Level == "" {
		fb.Level = Neutral
	}
	ts := s.timestamp()

	var updated session.RecommendationFeedback
	_, err := s.store.UpdateRecommendationFeedback(ctx, ns, func(m session.FeedbackMap) (session.FeedbackMap, error) {
		cur := m[recommendationID]
		entry := session.FeedbackEntry{
			Timestamp: ts,
			Level:     string(fb.Level),
			Comment:   fb.Comment,
			Success:   fb.Success,
			Context:   fb.Context,
		}
		next := session.RecommendationFeedback{
			ID:              recommendationID,
			LastUpdated:     ts,
			FeedbackHistory: append([]session.FeedbackEntry{entry}, cur.FeedbackHistory...),
			OverallScore:    NextScore(cur.OverallScore, fb.Level),
			UsageCount:      cur.UsageCount + 1,
			SuccessCount:    cur.SuccessCount,
		}
		if fb.Success != nil && *fb.Success {
			next.SuccessCount++
		}
		next.SuccessRate = float64(next.SuccessCount) / float64(next.UsageCount)
		m[recommendationID] = next
		updated = next
		return m, nil
	})
	if err != nil {
		return session.RecommendationFeedback{}, err
	}

	kind := RecommendationAccepted
	switch {
	case fb.Success != nil && *fb.Success:
		kind = UserReportedSuccess
	case fb.Level == Negative || fb.Level == VeryNegative:
		kind = UserReportedFailure
	}
	content, _ := json.Marshal(map[string]any{
		"recommendationId": recommendationID,
		"level":            fb.Level,
		"comment":          fb.Comment,
	})
	if _, err := s.SaveInteraction(ctx, ns, NewInteraction{Type: kind, Content: content, Context: fb.Context}); err != nil {
		return updated, err
	}

	if err := s.rememberOutcome(ctx, ns, recommendationID, kind); err != nil {
		return updated, err
	}

	s.log.Debug("feedback recorded", "namespace", ns.String(), "recommendation", recommendationID,
		"level", fb.Level, "score", updated.OverallScore)
	return updated, nil
}

func (s *Service) rememberOutcome(ctx context.Context, ns identity.Namespace, recommendationID, kind string) error {
	if kind == RecommendationAccepted {
		return nil
	}
	_, err := s.store.ModifyPreferences(ctx, ns, func(p session.UserPreferences) session.UserPreferences {
		if kind == UserReportedSuccess {
			p.SuccessfulTreatments = appendUnique(p.SuccessfulTreatments, recommendationID)
		} else {
			p.UnsuccessfulTreatments = appendUnique(p.UnsuccessfulTreatments, recommendationID)
		}
		return p
	})
	return err
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// SaveInteraction prepends in to the log, keeping at most the configured
// number of entries.
func (s *Service) SaveInteraction(ctx context.Context, ns identity.Namespace, in NewInteraction) (session.Interaction, error) {
	it := session.Interaction{
		ID:        in.ID,
		Timestamp: in.Timestamp,
		Type:      in.Type,
		Content:   in.Content,
		Context:   in.Context,
	}
	if it.ID == "" {
		it.ID = "interaction_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	if it.Timestamp == "" {
		it.Timestamp = s.timestamp()
	}
	if it.Type == "" {
		it.Type = RecommendationGiven
	}
	if len(it.Content) == 0 {
		it.Content = json.RawMessage("{}")
	}
	if len(it.Context) == 0 {
		it.Context = json.RawMessage("{}")
	}

	_, err := s.store.UpdateInteractions(ctx, ns, func(cur []session.Interaction) ([]session.Interaction, error) {
		next := append([]session.Interaction{it}, cur...)
		if len(next) > s.limit {
			next = next[:s.limit]
		}
		return next, nil
	})
	if err != nil {
		return session.Interaction{}, err
	}

	if in.UpdatePreferences != nil {
		if _, err := s.store.UpdatePreferences(ctx, ns, *in.UpdatePreferences); err != nil {
			return it, err
		}
	}
	return it, nil
}

// AnalyzeSentiment scores the most recent interactions.
func (s *Service) AnalyzeSentiment(ctx context.Context, ns identity.Namespace) (Sentiment, error) {
	list, err := s.store.Interactions(ctx, ns)
	if err != nil {
		return Sentiment{}, err
	}
	if len(list) > sentimentWindow {
		list = list[:sentimentWindow]
	}
	return scoreSentiment(list), nil
}

func scoreSentiment(recent []session.Interaction) Sentiment {
	counts := make(map[string]int)
	for _, it := range recent {
		counts[it.Type]++
	}
	positive := counts[UserReportedSuccess] + counts[UserExpressedGratitude] + counts[RecommendationAccepted]
	negative := counts[UserReportedFailure] + counts[UserExpressedConfusion] + counts[RecommendationRejected]

	out := Sentiment{
		Sentiment: Neutral,
		Details: SentimentDetails{
			PositiveCount:          positive,
			NegativeCount:          negative,
			RecentInteractionTypes: counts,
		},
	}
	total := positive + negative
	if total == 0 {
		return out
	}

	score := float64(positive-negative) / float64(total)
	switch {
	case score > 0.5:
		out.Sentiment = VeryPositive
	case score > 0.1:
		out.Sentiment = Positive
	case score < -0.5:
		out.Sentiment = VeryNegative
	case score < -0.1:
		out.Sentiment = Negative
	}
	out.Confidence = math.Abs(score)
	out.Details.SentimentScore = score
	return out
}
