package session

import "product-rec-agent/internal/entity"

const previewLength = 80

// BuildSession derives a session's aggregates from its messages. nowMs is used for timestamps
// when there are no messages.
func BuildSession(id string, messages []entity.ChatMessage, nowMs int64) entity.ChatSession {
	s := entity.ChatSession{
		Id:        id,
		Messages:  normalizeMessages(messages),
		CreatedAt: nowMs,
		UpdatedAt: nowMs,
		Status:    entity.SessionStatusActive,
	}

	if len(messages) > 0 {
		s.CreatedAt = messages[0].Timestamp
		s.UpdatedAt = messages[len(messages)-1].Timestamp
	}

	for _, m := range messages {
		if m.Role == entity.RoleUser {
			s.FirstMessagePreview = preview(m.Content)
			break
		}
	}

	for _, m := range messages {
		s.RecommendationCount += len(m.Recommendations)
	}

	return s
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

// normalizeMessages returns a copy in the canonical in-memory form: assistant messages carry
// non-nil (possibly empty) sequences, user messages carry nil when empty. The JSON form omits
// empty sequences either way, so this is what makes a reload equal to what was saved.
func normalizeMessages(messages []entity.ChatMessage) []entity.ChatMessage {
	out := make([]entity.ChatMessage, len(messages))
	for i, m := range messages {
		switch m.Role {
		case entity.RoleAssistant:
			if m.Recommendations == nil {
				m.Recommendations = []entity.Recommendation{}
			}
			if m.FollowUpSuggestions == nil {
				m.FollowUpSuggestions = []string{}
			}
		default:
			if len(m.Recommendations) == 0 {
				m.Recommendations = nil
			}
			if len(m.FollowUpSuggestions) == 0 {
				m.FollowUpSuggestions = nil
			}
		}
		out[i] = m
	}
	return out
}
