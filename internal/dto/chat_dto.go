package dto

import "product-rec-agent/internal/entity"

type NewSessionRequest struct {
	PreviousSessionId string `json:"previous_session_id,omitempty" validate:"omitempty,max=128"`
}

type NewSessionResponse struct {
	Id string `json:"id"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type TurnResponse struct {
	SessionId       string               `json:"session_id"`
	State           string               `json:"state"`
	Messages        []entity.ChatMessage `json:"messages"`
	Reply           *entity.ChatMessage  `json:"reply,omitempty"`
	Error           string               `json:"error,omitempty"`
	LastUserMessage string               `json:"last_user_message,omitempty"`
	Attempts        int                  `json:"attempts"`
	TakeoverHTML    string               `json:"takeover_html,omitempty"`
}

type SessionStatusResponse struct {
	SessionId       string `json:"session_id"`
	State           string `json:"state"`
	Loading         bool   `json:"loading"`
	ActiveAgentId   string `json:"active_agent_id,omitempty"`
	Error           string `json:"error,omitempty"`
	LastUserMessage string `json:"last_user_message,omitempty"`
	MessageCount    int    `json:"message_count"`
}

type SessionSummaryResponse struct {
	Id                  string `json:"id"`
	FirstMessagePreview string `json:"first_message_preview"`
	CreatedAt           int64  `json:"created_at"`
	UpdatedAt           int64  `json:"updated_at"`
	RecommendationCount int    `json:"recommendation_count"`
	MessageCount        int    `json:"message_count"`
	Status              string `json:"status"`
}

type SessionDetailResponse struct {
	SessionSummaryResponse
	Messages []entity.ChatMessage `json:"messages"`
}
