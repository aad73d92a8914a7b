package session

import "encoding/json"

type Conversation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	LastMessage string `json:"lastMessage"`
	Time        string `json:"time"`
}

type MessageFeedback struct {
	Level   string `json:"level"`
	Success *bool  `json:"success"`
	Comment string `json:"comment"`
}

// Message is one entry of a conversation's log. Type, Feedback and
// RecommendationID are written as null when unset, like the app stores them.
type Message struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	IsUser           bool             `json:"isUser"`
	Type             *string          `json:"type"`
	Timestamp        string           `json:"timestamp"`
	Feedback         *MessageFeedback `json:"feedback"`
	RecommendationID *string          `json:"recommendationId"`
}

type UserPreferences struct {
	PreferredDetailLevel   string   `json:"preferredDetailLevel"`
	ExperienceLevel        string   `json:"experienceLevel"`
	FarmSize               string   `json:"farmSize"`
	Region                 *string  `json:"region"`
	PreviousConditions     []string `json:"previousConditions"`
	SuccessfulTreatments   []string `json:"successfulTreatments"`
	UnsuccessfulTreatments []string `json:"unsuccessfulTreatments"`
	LastUpdated            string   `json:"lastUpdated,omitempty"`
}

func DefaultPreferences() UserPreferences {
	return UserPreferences{
		PreferredDetailLevel:   "medium",
		ExperienceLevel:        "beginner",
		FarmSize:               "small",
		PreviousConditions:     []string{},
		SuccessfulTreatments:   []string{},
		UnsuccessfulTreatments: []string{},
	}
}

// PreferencesPatch holds the fields a partial update may touch; nil means
// keep the stored value.
type PreferencesPatch struct {
	PreferredDetailLevel   *string   `json:"preferredDetailLevel"`
	ExperienceLevel        *string   `json:"experienceLevel"`
	FarmSize               *string   `json:"farmSize"`
	Region                 *string   `json:"region"`
	PreviousConditions     *[]string `json:"previousConditions"`
	SuccessfulTreatments   *[]string `json:"successfulTreatments"`
	UnsuccessfulTreatments *[]string `json:"unsuccessfulTreatments"`
}

// Interaction is one entry of the interaction log. Content and Context are
// free-form JSON passed through untouched.
type Interaction struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
}

type FeedbackEntry struct {
	Timestamp string          `json:"timestamp"`
	Level     string          `json:"level"`
	Comment   string          `json:"comment"`
	Success   *bool           `json:"success"`
	Context   json.RawMessage `json:"context,omitempty"`
}

type RecommendationFeedback struct {
	ID              string          `json:"id"`
	LastUpdated     string          `json:"lastUpdated"`
	FeedbackHistory []FeedbackEntry `json:"feedbackHistory"`
	OverallScore    float64         `json:"overallScore"`
	UsageCount      int             `json:"usageCount"`
	SuccessCount    int             `json:"successCount"`
	SuccessRate     float64         `json:"successRate"`
}

// FeedbackMap is keyed by recommendation id.
type FeedbackMap map[string]RecommendationFeedback
