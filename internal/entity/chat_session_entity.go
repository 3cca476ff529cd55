package entity

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

type ChatSession struct {
	Id                  string        `json:"id"`
	Messages            []ChatMessage `json:"messages"`
	CreatedAt           int64         `json:"createdAt"`
	UpdatedAt           int64         `json:"updatedAt"`
	FirstMessagePreview string        `json:"firstMessagePreview"`
	RecommendationCount int           `json:"recommendationCount"`
	Status              SessionStatus `json:"status"`
}
