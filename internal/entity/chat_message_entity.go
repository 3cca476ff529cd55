package entity

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Recommendation is one product card returned by the agent. Every field is optional.
type Recommendation struct {
	ProductName  string   `json:"product_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Price        string   `json:"price,omitempty"`
	MatchReason  string   `json:"match_reason,omitempty"`
	Promotion    string   `json:"promotion,omitempty"`
	IndustryTags []string `json:"industry_tags,omitempty"`
	UseCaseTags  []string `json:"use_case_tags,omitempty"`
}

type ChatMessage struct {
	Id                  string           `json:"id"`
	Role                MessageRole      `json:"role"`
	Content             string           `json:"content"`
	Recommendations     []Recommendation `json:"recommendations,omitempty"`
	FollowUpSuggestions []string         `json:"followUpSuggestions,omitempty"`
	Timestamp           int64            `json:"timestamp"` // epoch-ms
}
