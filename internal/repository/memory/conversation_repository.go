package memory

import (
	"time"

	"product-rec-agent/pkg/turn"

	"github.com/patrickmn/go-cache"
)

// ConversationRepository holds live conversations between requests. Idle ones expire after an hour;
// the persisted session collection remains the source of truth.
type ConversationRepository struct {
	cache *cache.Cache
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		cache: cache.New(1*time.Hour, 10*time.Minute),
	}
}

func (r *ConversationRepository) Save(conv *turn.Conversation) {
	r.cache.Set(conv.Id(), conv, cache.DefaultExpiration)
}

// Get refreshes the expiry of the conversation it returns.
func (r *ConversationRepository) Get(sessionId string) (*turn.Conversation, bool) {
	if x, found := r.cache.Get(sessionId); found {
		conv := x.(*turn.Conversation)
		r.cache.Set(sessionId, conv, cache.DefaultExpiration)
		return conv, true
	}
	return nil, false
}

// GetOrAdd returns the stored conversation, or stores and returns the one built by create.
func (r *ConversationRepository) GetOrAdd(sessionId string, create func() *turn.Conversation) *turn.Conversation {
	if conv, ok := r.Get(sessionId); ok {
		return conv
	}
	conv := create()
	if err := r.cache.Add(sessionId, conv, cache.DefaultExpiration); err != nil {
		// Lost the race; use the winner.
		if existing, ok := r.Get(sessionId); ok {
			return existing
		}
		r.Save(conv)
	}
	return conv
}

func (r *ConversationRepository) Delete(sessionId string) {
	r.cache.Delete(sessionId)
}
