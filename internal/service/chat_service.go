package service

import (
	"context"
	"errors"
	"time"

	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/entity"
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/internal/repository/memory"
	"product-rec-agent/pkg/session"
	"product-rec-agent/pkg/turn"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNothingToRetry  = errors.New("no failed turn to retry")
)

type IChatService interface {
	NewSession(ctx context.Context, req *dto.NewSessionRequest) (*dto.NewSessionResponse, error)
	SendMessage(ctx context.Context, sessionId string, req *dto.SendMessageRequest) (*dto.TurnResponse, error)
	FollowUp(ctx context.Context, sessionId string, req *dto.SendMessageRequest) (*dto.TurnResponse, error)
	Retry(ctx context.Context, sessionId string) (*dto.TurnResponse, error)
	GetStatus(ctx context.Context, sessionId string) (*dto.SessionStatusResponse, error)
	ListSessions(ctx context.Context, query string, sample bool) ([]*dto.SessionSummaryResponse, error)
	GetSession(ctx context.Context, sessionId string, sample bool) (*dto.SessionDetailResponse, error)
	DeleteSession(ctx context.Context, sessionId string) error
}

type chatService struct {
	orchestrator  *turn.Orchestrator
	store         *session.Store
	conversations *memory.ConversationRepository
	agentId       string
	logger        logger.ILogger
}

func NewChatService(
	orchestrator *turn.Orchestrator,
	store *session.Store,
	conversations *memory.ConversationRepository,
	agentId string,
	log logger.ILogger,
) IChatService {
	return &chatService{
		orchestrator:  orchestrator,
		store:         store,
		conversations: conversations,
		agentId:       agentId,
		logger:        log,
	}
}

// NewSession saves the previous conversation, if it has anything in it, and opens a fresh one.
// A turn still running on the previous session finishes and persists on its own.
func (s *chatService) NewSession(ctx context.Context, req *dto.NewSessionRequest) (*dto.NewSessionResponse, error) {
	if req != nil && req.PreviousSessionId != "" {
		if prev, ok := s.conversations.Get(req.PreviousSessionId); ok {
			snap := prev.Snapshot()
			if len(snap.Messages) > 0 && !snap.InFlight {
				s.store.Upsert(ctx, snap.SessionId, snap.Messages)
			}
		}
	}

	id := uuid.New().String()
	s.conversations.Save(turn.NewConversation(id, nil))

	s.logger.Info("CHAT", "New session started", map[string]interface{}{
		"session_id":  id,
		"previous_id": previousId(req),
	})

	return &dto.NewSessionResponse{Id: id}, nil
}

func (s *chatService) SendMessage(ctx context.Context, sessionId string, req *dto.SendMessageRequest) (*dto.TurnResponse, error) {
	conv, err := s.conversation(sessionId)
	if err != nil {
		return nil, err
	}

	out, err := s.orchestrator.Send(ctx, conv, req.Text)
	if err != nil {
		return nil, err
	}
	return toTurnResponse(out), nil
}

// FollowUp sends a suggested follow-up as the next user turn.
func (s *chatService) FollowUp(ctx context.Context, sessionId string, req *dto.SendMessageRequest) (*dto.TurnResponse, error) {
	return s.SendMessage(ctx, sessionId, req)
}

// Retry resends the user text of the last failed turn as a new message.
func (s *chatService) Retry(ctx context.Context, sessionId string) (*dto.TurnResponse, error) {
	conv, err := s.conversation(sessionId)
	if err != nil {
		return nil, err
	}

	snap := conv.Snapshot()
	if snap.LastUserText == "" {
		return nil, ErrNothingToRetry
	}

	out, err := s.orchestrator.Send(ctx, conv, snap.LastUserText)
	if err != nil {
		return nil, err
	}
	return toTurnResponse(out), nil
}

func (s *chatService) GetStatus(ctx context.Context, sessionId string) (*dto.SessionStatusResponse, error) {
	conv, err := s.conversation(sessionId)
	if err != nil {
		return nil, err
	}

	snap := conv.Snapshot()
	res := &dto.SessionStatusResponse{
		SessionId:       snap.SessionId,
		State:           string(snap.State),
		Loading:         snap.InFlight,
		Error:           snap.LastError,
		LastUserMessage: snap.LastUserText,
		MessageCount:    len(snap.Messages),
	}
	if snap.InFlight {
		res.ActiveAgentId = s.agentId
	}
	return res, nil
}

func (s *chatService) ListSessions(ctx context.Context, query string, sample bool) ([]*dto.SessionSummaryResponse, error) {
	var sessions []entity.ChatSession
	if sample {
		sessions = session.Filter(session.SampleSessions(time.Now().UnixMilli()), query)
	} else {
		sessions = s.store.Search(query)
	}

	result := make([]*dto.SessionSummaryResponse, 0, len(sessions))
	for _, sess := range sessions {
		summary := toSummary(sess)
		result = append(result, &summary)
	}
	return result, nil
}

func (s *chatService) GetSession(ctx context.Context, sessionId string, sample bool) (*dto.SessionDetailResponse, error) {
	if sample {
		for _, sess := range session.SampleSessions(time.Now().UnixMilli()) {
			if sess.Id == sessionId {
				return toDetail(sess), nil
			}
		}
		return nil, ErrSessionNotFound
	}

	sess, ok := s.store.Get(sessionId)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return toDetail(sess), nil
}

// DeleteSession removes a session from the history. A live conversation with the same id is left
// alone and will re-appear in the history on its next turn.
func (s *chatService) DeleteSession(ctx context.Context, sessionId string) error {
	if !s.store.Delete(ctx, sessionId) {
		return ErrSessionNotFound
	}
	return nil
}

// conversation returns the live conversation, rebuilding it from history when it has expired.
func (s *chatService) conversation(sessionId string) (*turn.Conversation, error) {
	if conv, ok := s.conversations.Get(sessionId); ok {
		return conv, nil
	}

	stored, ok := s.store.Get(sessionId)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.conversations.GetOrAdd(sessionId, func() *turn.Conversation {
		return turn.NewConversation(sessionId, stored.Messages)
	}), nil
}

func toTurnResponse(out *turn.Outcome) *dto.TurnResponse {
	res := &dto.TurnResponse{
		SessionId:    out.SessionId,
		State:        string(out.State),
		Messages:     out.Messages,
		Reply:        out.Reply,
		Error:        out.Err,
		Attempts:     out.Attempts,
		TakeoverHTML: out.TakeoverHTML,
	}
	if out.State == turn.StateFailed {
		res.LastUserMessage = out.UserText
	}
	return res
}

func toSummary(sess entity.ChatSession) dto.SessionSummaryResponse {
	return dto.SessionSummaryResponse{
		Id:                  sess.Id,
		FirstMessagePreview: sess.FirstMessagePreview,
		CreatedAt:           sess.CreatedAt,
		UpdatedAt:           sess.UpdatedAt,
		RecommendationCount: sess.RecommendationCount,
		MessageCount:        len(sess.Messages),
		Status:              string(sess.Status),
	}
}

func toDetail(sess entity.ChatSession) *dto.SessionDetailResponse {
	return &dto.SessionDetailResponse{
		SessionSummaryResponse: toSummary(sess),
		Messages:               sess.Messages,
	}
}

func previousId(req *dto.NewSessionRequest) string {
	if req == nil {
		return ""
	}
	return req.PreviousSessionId
}
