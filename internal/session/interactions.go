package session

import (
	"context"

	"coffeeleaf/internal/identity"
)

func newInteractionList() []Interaction { return []Interaction{} }
func newFeedbackMap() FeedbackMap       { return FeedbackMap{} }

// Interactions returns the interaction log, newest first.
func (s *Store) Interactions(ctx context.Context, ns identity.Namespace) ([]Interaction, error) {
	return load(ctx, s, ns.Key(baseInteractions), newInteractionList)
}

func (s *Store) SaveInteractions(ctx context.Context, ns identity.Namespace, list []Interaction) error {
	if list == nil {
		list = newInteractionList()
	}
	key := ns.Key(baseInteractions)
	unlock := s.locks.lock(key)
	defer unlock()
	return s.save(ctx, key, list)
}

// UpdateInteractions runs fn on the interaction log under the key lock.
func (s *Store) UpdateInteractions(ctx context.Context, ns identity.Namespace, fn func([]Interaction) ([]Interaction, error)) ([]Interaction, error) {
	return update(ctx, s, ns.Key(baseInteractions), newInteractionList, fn)
}

func (s *Store) RecommendationFeedback(ctx context.Context, ns identity.Namespace) (FeedbackMap, error) {
	return load(ctx, s, ns.Key(baseFeedback), newFeedbackMap)
}

func (s *Store) SaveRecommendationFeedback(ctx context.Context, ns identity.Namespace, m FeedbackMap) error {
	if m == nil {
		m = newFeedbackMap()
	}
	key := ns.Key(baseFeedback)
	unlock := s.locks.lock(key)
	defer unlock()
	return s.save(ctx, key, m)
}

// UpdateRecommendationFeedback runs fn on the feedback map under the key
// lock.
func (s *Store) UpdateRecommendationFeedback(ctx context.Context, ns identity.Namespace, fn func(FeedbackMap) (FeedbackMap, error)) (FeedbackMap, error) {
	return update(ctx, s, ns.Key(baseFeedback), newFeedbackMap, fn)
}
