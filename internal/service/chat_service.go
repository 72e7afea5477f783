package service

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/contract"
	"ai-tutor-be/pkg/tutor/event"
	"ai-tutor-be/pkg/tutor/orchestrator"

	"github.com/google/uuid"
)

const lastMessagePreviewLen = 100

// IChatService fronts the turn orchestrator and conversation CRUD
type IChatService interface {
	StreamTurn(ctx context.Context, req *dto.ChatRequest) (<-chan event.Event, error)
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	GetConversations(ctx context.Context, studentId string) ([]*dto.ConversationSummary, error)
	GetConversation(ctx context.Context, conversationId uuid.UUID) ([]*dto.ConversationMessageResponse, error)
	DeleteConversation(ctx context.Context, conversationId uuid.UUID) (*dto.DeleteConversationResponse, error)
}

type chatService struct {
	orchestrator  *orchestrator.Orchestrator
	conversations contract.ConversationRepository
	logger        logger.ILogger
}

func NewChatService(
	turnOrchestrator *orchestrator.Orchestrator,
	conversations contract.ConversationRepository,
	log logger.ILogger,
) IChatService {
	return &chatService{
		orchestrator:  turnOrchestrator,
		conversations: conversations,
		logger:        log,
	}
}

func (cs *chatService) StreamTurn(ctx context.Context, req *dto.ChatRequest) (<-chan event.Event, error) {
	turnReq, err := toTurnRequest(req)
	if err != nil {
		return nil, err
	}
	return cs.orchestrator.Stream(ctx, turnReq), nil
}

func (cs *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	turnReq, err := toTurnRequest(req)
	if err != nil {
		return nil, err
	}

	result, err := cs.orchestrator.Run(ctx, turnReq)
	if err != nil {
		return nil, err
	}

	return &dto.ChatResponse{
		Response:       result.Response,
		Intent:         result.Intent,
		Confidence:     result.Confidence,
		CanvasUsed:     result.CanvasUsed,
		ConversationId: result.ConversationId,
	}, nil
}

// GetConversations groups a student's messages into per-conversation
// summaries, newest conversation first.
func (cs *chatService) GetConversations(ctx context.Context, studentId string) ([]*dto.ConversationSummary, error) {
	messages, err := cs.conversations.ListByStudent(ctx, studentId)
	if err != nil {
		return nil, err
	}

	// Messages arrive newest first, so the first hit per conversation is
	// its latest message.
	summaries := make([]*dto.ConversationSummary, 0)
	index := make(map[uuid.UUID]*dto.ConversationSummary)

	for _, msg := range messages {
		if summary, ok := index[msg.ConversationId]; ok {
			summary.MessageCount++
			continue
		}
		summary := &dto.ConversationSummary{
			ConversationId: msg.ConversationId,
			LastMessage:    preview(msg.Content),
			Timestamp:      msg.CreatedAt,
			MessageCount:   1,
		}
		index[msg.ConversationId] = summary
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (cs *chatService) GetConversation(ctx context.Context, conversationId uuid.UUID) ([]*dto.ConversationMessageResponse, error) {
	messages, err := cs.conversations.FindByConversation(ctx, conversationId, 0)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ConversationMessageResponse, len(messages))
	for i, msg := range messages {
		resp := &dto.ConversationMessageResponse{
			Id:        msg.Id,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
		if len(msg.Metadata) > 0 {
			var meta dto.MessageMetadata
			if err := json.Unmarshal(msg.Metadata, &meta); err == nil {
				resp.Metadata = &meta
			}
		}
		responses[i] = resp
	}
	return responses, nil
}

// DeleteConversation removes every message of a conversation. Deleting a
// conversation that does not exist succeeds with zero rows.
func (cs *chatService) DeleteConversation(ctx context.Context, conversationId uuid.UUID) (*dto.DeleteConversationResponse, error) {
	deleted, err := cs.conversations.DeleteByConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	cs.logger.Info("chat", "conversation deleted", map[string]interface{}{
		"conversation_id": conversationId.String(),
		"messages":        deleted,
	})
	return &dto.DeleteConversationResponse{Deleted: deleted}, nil
}

func toTurnRequest(req *dto.ChatRequest) (orchestrator.TurnRequest, error) {
	turnReq := orchestrator.TurnRequest{
		StudentId: req.StudentId,
		Message:   req.Message,
	}
	if req.ConversationId != "" {
		conversationId, err := uuid.Parse(req.ConversationId)
		if err != nil {
			return orchestrator.TurnRequest{}, fmt.Errorf("invalid conversation_id: %w", err)
		}
		turnReq.ConversationId = conversationId
	}
	return turnReq, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= lastMessagePreviewLen {
		return content
	}
	return string(runes[:lastMessagePreviewLen])
}
