package session

import (
	"context"

	"coffeeleaf/internal/identity"
)

// Preferences returns the stored preferences. Fields the stored document
// lacks take their defaults.
func (s *Store) Preferences(ctx context.Context, ns identity.Namespace) (UserPreferences, error) {
	p, err := load(ctx, s, ns.Key(basePreferences), DefaultPreferences)
	if err != nil {
		return p, err
	}
	return normalizePreferences(p), nil
}

// SavePreferences replaces the stored preferences and stamps lastUpdated.
func (s *Store) SavePreferences(ctx context.Context, ns identity.Namespace, p UserPreferences) (UserPreferences, error) {
	key := ns.Key(basePreferences)
	unlock := s.locks.lock(key)
	defer unlock()

	p = normalizePreferences(p)
	p.LastUpdated = s.timestamp()
	if err := s.save(ctx, key, p); err != nil {
		return UserPreferences{}, err
	}
	return p, nil
}

// UpdatePreferences merges the non-nil fields of patch over the stored
// preferences.
func (s *Store) UpdatePreferences(ctx context.Context, ns identity.Namespace, patch PreferencesPatch) (UserPreferences, error) {
	return s.ModifyPreferences(ctx, ns, patch.apply)
}

// ModifyPreferences runs fn on the stored preferences under the key lock and
// stamps lastUpdated on the result.
func (s *Store) ModifyPreferences(ctx context.Context, ns identity.Namespace, fn func(UserPreferences) UserPreferences) (UserPreferences, error) {
	return update(ctx, s, ns.Key(basePreferences), DefaultPreferences, func(p UserPreferences) (UserPreferences, error) {
		p = normalizePreferences(fn(normalizePreferences(p)))
		p.LastUpdated = s.timestamp()
		return p, nil
	})
}

func (patch PreferencesPatch) apply(p UserPreferences) UserPreferences {
	if patch.PreferredDetailLevel != nil {
		p.PreferredDetailLevel = *patch.PreferredDetailLevel
	}
	if patch.ExperienceLevel != nil {
		p.ExperienceLevel = *patch.ExperienceLevel
	}
	if patch.FarmSize != nil {
		p.FarmSize = *patch.FarmSize
	}
	if patch.Region != nil {
		r := *patch.Region
		p.Region = &r
	}
	if patch.PreviousConditions != nil {
		p.PreviousConditions = *patch.PreviousConditions
	}
	if patch.SuccessfulTreatments != nil {
		p.SuccessfulTreatments = *patch.SuccessfulTreatments
	}
	if patch.UnsuccessfulTreatments != nil {
		p.UnsuccessfulTreatments = *patch.UnsuccessfulTreatments
	}
	return p
}

// normalizePreferences turns null lists into empty ones so the document
// always serializes with arrays. Strings are kept as given; fields missing
// from a stored document already decode onto the defaults.
func normalizePreferences(p UserPreferences) UserPreferences {
	if p.PreviousConditions == nil {
		p.PreviousConditions = []string{}
	}
	if p.SuccessfulTreatments == nil {
		p.SuccessfulTreatments = []string{}
	}
	if p.UnsuccessfulTreatments == nil {
		p.UnsuccessfulTreatments = []string{}
	}
	return p
}
