package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"product-rec-agent/internal/entity"
	"product-rec-agent/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingRepo) Put(context.Context, string, []byte) error   { return errors.New("down") }

func fixedClock() time.Time { return time.UnixMilli(5_000) }

func msg(id string, role entity.MessageRole, content string, ts int64, recs int) entity.ChatMessage {
	m := entity.ChatMessage{Id: id, Role: role, Content: content, Timestamp: ts}
	for i := 0; i < recs; i++ {
		m.Recommendations = append(m.Recommendations, entity.Recommendation{ProductName: "P"})
	}
	if role == entity.RoleAssistant {
		// Parsed replies never carry nil sequences.
		if m.Recommendations == nil {
			m.Recommendations = []entity.Recommendation{}
		}
		m.FollowUpSuggestions = []string{}
	}
	return m
}

func TestBuildSession(t *testing.T) {
	long := strings.Repeat("é", 100)

	tests := []struct {
		name     string
		messages []entity.ChatMessage
		want     entity.ChatSession
	}{
		{
			name:     "empty uses now",
			messages: nil,
			want:     entity.ChatSession{Id: "s", CreatedAt: 99, UpdatedAt: 99, Status: entity.SessionStatusActive},
		},
		{
			name: "aggregates",
			messages: []entity.ChatMessage{
				msg("1", entity.RoleAssistant, "welcome", 10, 0),
				msg("2", entity.RoleUser, "Need a CRM", 20, 0),
				msg("3", entity.RoleAssistant, "Here", 30, 2),
				msg("4", entity.RoleUser, "More", 40, 0),
				msg("5", entity.RoleAssistant, "Also", 50, 1),
			},
			want: entity.ChatSession{Id: "s", CreatedAt: 10, UpdatedAt: 50, FirstMessagePreview: "Need a CRM", RecommendationCount: 3, Status: entity.SessionStatusActive},
		},
		{
			name:     "preview truncated to 80 characters",
			messages: []entity.ChatMessage{msg("1", entity.RoleUser, long, 1, 0)},
			want:     entity.ChatSession{Id: "s", CreatedAt: 1, UpdatedAt: 1, FirstMessagePreview: strings.Repeat("é", 80), Status: entity.SessionStatusActive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSession("s", tt.messages, 99)
			assert.Equal(t, tt.want.CreatedAt, got.CreatedAt)
			assert.Equal(t, tt.want.UpdatedAt, got.UpdatedAt)
			assert.Equal(t, tt.want.FirstMessagePreview, got.FirstMessagePreview)
			assert.Equal(t, tt.want.RecommendationCount, got.RecommendationCount)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Len(t, got.Messages, len(tt.messages))
		})
	}
}

func TestStoreUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBlobRepository()
	store := NewStore(repo, WithClock(fixedClock))

	messages := []entity.ChatMessage{
		msg("m1", entity.RoleUser, "Need a CRM under $300/month", 100, 0),
		msg("m2", entity.RoleAssistant, "Here are matches", 200, 1),
	}
	saved := store.Upsert(ctx, "s-1", messages)

	reloaded := NewStore(repo).Load(ctx)

	require.Len(t, reloaded, 1)
	assert.Equal(t, saved.Id, reloaded[0].Id)
	assert.Equal(t, messages, reloaded[0].Messages)
	assert.Equal(t, BuildSession("s-1", messages, 0), reloaded[0])
}

func TestStoreReloadKeepsEmptyAssistantSequences(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBlobRepository()
	store := NewStore(repo, WithClock(fixedClock))

	messages := []entity.ChatMessage{
		{Id: "m1", Role: entity.RoleUser, Content: "hello", Timestamp: 1},
		{Id: "m2", Role: entity.RoleAssistant, Content: "Nothing matched", Recommendations: []entity.Recommendation{}, FollowUpSuggestions: []string{}, Timestamp: 2},
	}
	saved := store.Upsert(ctx, "s-1", messages)

	reloaded := NewStore(repo).Load(ctx)

	require.Len(t, reloaded, 1)
	assert.Equal(t, messages, reloaded[0].Messages)
	assert.Equal(t, saved, reloaded[0])
	assert.NotNil(t, reloaded[0].Messages[1].Recommendations)
	assert.NotNil(t, reloaded[0].Messages[1].FollowUpSuggestions)
	assert.Nil(t, reloaded[0].Messages[0].Recommendations)
}

func TestStoreUpsertOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStore(memory.NewBlobRepository(), WithClock(fixedClock))

	store.Upsert(ctx, "a", []entity.ChatMessage{msg("1", entity.RoleUser, "a", 1, 0)})
	store.Upsert(ctx, "b", []entity.ChatMessage{msg("2", entity.RoleUser, "b", 2, 0)})
	store.Upsert(ctx, "c", []entity.ChatMessage{msg("3", entity.RoleUser, "c", 3, 0)})

	// Replace in place, no reordering.
	store.Upsert(ctx, "b", []entity.ChatMessage{msg("2", entity.RoleUser, "b", 2, 0), msg("4", entity.RoleAssistant, "reply", 4, 2)})

	all := store.LoadAll()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))
	assert.Equal(t, 2, all[1].RecommendationCount)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBlobRepository()
	store := NewStore(repo, WithClock(fixedClock))

	for _, id := range []string{"a", "b", "c"} {
		store.Upsert(ctx, id, []entity.ChatMessage{msg(id, entity.RoleUser, id, 1, 0)})
	}
	before := store.LoadAll()

	assert.True(t, store.Delete(ctx, "b"))
	assert.False(t, store.Delete(ctx, "missing"))

	after := NewStore(repo).Load(ctx)
	assert.Equal(t, []entity.ChatSession{before[0], before[2]}, after)
}

func TestStoreLoadCorruptData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{{{"},
		{name: "object instead of array", raw: `{"id":"a"}`},
		{name: "string", raw: `"sessions"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.NewBlobRepository()
			require.NoError(t, repo.Put(ctx, DefaultKey, []byte(tt.raw)))

			got := NewStore(repo).Load(ctx)

			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestStoreSwallowsRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingRepo{}, WithClock(fixedClock))

	assert.Empty(t, store.Load(ctx))

	sess := store.Upsert(ctx, "s", []entity.ChatMessage{msg("1", entity.RoleUser, "hi", 1, 0)})
	assert.Equal(t, "s", sess.Id)
	assert.Len(t, store.LoadAll(), 1)
	assert.True(t, store.Delete(ctx, "s"))
}

func TestStoreUsesConfiguredKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBlobRepository()
	store := NewStore(repo, WithKey("other"))

	store.Upsert(ctx, "s", []entity.ChatMessage{msg("1", entity.RoleUser, "hi", 1, 0)})

	raw, err := repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	raw, err = repo.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := NewStore(memory.NewBlobRepository(), WithClock(fixedClock))
	store.Upsert(ctx, "crm", []entity.ChatMessage{msg("1", entity.RoleUser, "Need a CRM", 1, 0)})
	store.Upsert(ctx, "pm", []entity.ChatMessage{
		msg("2", entity.RoleUser, "Project tools", 2, 0),
		msg("3", entity.RoleAssistant, "Try DevTrack Pro", 3, 1),
	})

	assert.Equal(t, []string{"crm"}, ids(store.Search("crm")))
	assert.Equal(t, []string{"pm"}, ids(store.Search("devtrack")))
	assert.Len(t, store.Search("  "), 2)
	assert.Empty(t, store.Search("nothing like this"))
}

func TestStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(memory.NewBlobRepository())
	store.Upsert(ctx, "s", []entity.ChatMessage{msg("1", entity.RoleUser, "hi", 1, 0)})

	got, ok := store.Get("s")
	require.True(t, ok)
	got.Messages[0].Content = "mutated"

	again, _ := store.Get("s")
	assert.Equal(t, "hi", again.Messages[0].Content)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestSampleSessions(t *testing.T) {
	samples := SampleSessions(1_000_000)

	require.Len(t, samples, 2)
	assert.Equal(t, "sample-session-1", samples[0].Id)
	assert.Len(t, samples[0].Messages[1].Recommendations, samples[0].RecommendationCount)
	assert.Len(t, samples[1].Messages[1].Recommendations, samples[1].RecommendationCount)
	assert.Equal(t, []string{"sample-session-1"}, ids(Filter(samples, "retail")))
}

func ids(sessions []entity.ChatSession) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Id)
	}
	return out
}
