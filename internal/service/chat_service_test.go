package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationRepo struct {
	mu       sync.Mutex
	messages []*entity.ConversationMessage
}

func (r *fakeConversationRepo) Append(ctx context.Context, message *entity.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *fakeConversationRepo) FindByConversation(ctx context.Context, conversationId uuid.UUID, limit int) ([]*entity.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*entity.ConversationMessage
	for _, m := range r.messages {
		if m.ConversationId == conversationId {
			found = append(found, m)
		}
	}
	if limit > 0 && len(found) > limit {
		found = found[len(found)-limit:]
	}
	return found, nil
}

func (r *fakeConversationRepo) ListByStudent(ctx context.Context, studentId string) ([]*entity.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Newest first, mirroring the SQL ordering.
	var found []*entity.ConversationMessage
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].StudentId == studentId {
			found = append(found, r.messages[i])
		}
	}
	return found, nil
}

func (r *fakeConversationRepo) DeleteByConversation(ctx context.Context, conversationId uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*entity.ConversationMessage
	var deleted int64
	for _, m := range r.messages {
		if m.ConversationId == conversationId {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return deleted, nil
}

func seedTurn(repo *fakeConversationRepo, conversationId uuid.UUID, studentId, question, answer string, at time.Time) {
	repo.messages = append(repo.messages,
		&entity.ConversationMessage{
			Id:             uuid.New(),
			ConversationId: conversationId,
			StudentId:      studentId,
			Role:           "user",
			Content:        question,
			CreatedAt:      at,
		},
		&entity.ConversationMessage{
			Id:             uuid.New(),
			ConversationId: conversationId,
			StudentId:      studentId,
			Role:           "assistant",
			Content:        answer,
			CreatedAt:      at.Add(time.Second),
		},
	)
}

func TestGetConversationsGroupsByConversation(t *testing.T) {
	repo := &fakeConversationRepo{}
	now := time.Now()

	older := uuid.New()
	newer := uuid.New()
	seedTurn(repo, older, "student-1", "what is a derivative?", "a rate of change", now.Add(-time.Hour))
	seedTurn(repo, older, "student-1", "and an integral?", "the accumulated area", now.Add(-30*time.Minute))
	seedTurn(repo, newer, "student-1", "factor x^2-1", "difference of squares", now)
	seedTurn(repo, uuid.New(), "student-2", "unrelated", "unrelated", now)

	svc := NewChatService(nil, repo, logger.NewNopLogger())

	summaries, err := svc.GetConversations(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest conversation first, preview from its latest message.
	assert.Equal(t, newer, summaries[0].ConversationId)
	assert.Equal(t, "difference of squares", summaries[0].LastMessage)
	assert.Equal(t, 2, summaries[0].MessageCount)

	assert.Equal(t, older, summaries[1].ConversationId)
	assert.Equal(t, 4, summaries[1].MessageCount)
}

func TestGetConversationsTruncatesPreview(t *testing.T) {
	repo := &fakeConversationRepo{}
	conversationId := uuid.New()
	long := strings.Repeat("x", 300)
	seedTurn(repo, conversationId, "student-1", "q", long, time.Now())

	svc := NewChatService(nil, repo, logger.NewNopLogger())

	summaries, err := svc.GetConversations(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Len(t, summaries[0].LastMessage, lastMessagePreviewLen)
}

func TestGetConversationDecodesMetadata(t *testing.T) {
	repo := &fakeConversationRepo{}
	conversationId := uuid.New()
	now := time.Now()

	meta, _ := json.Marshal(map[string]interface{}{
		"intent":      "question",
		"confidence":  0.9,
		"canvas_used": true,
	})
	repo.messages = append(repo.messages,
		&entity.ConversationMessage{
			Id:             uuid.New(),
			ConversationId: conversationId,
			StudentId:      "student-1",
			Role:           "user",
			Content:        "check my graph",
			CreatedAt:      now,
		},
		&entity.ConversationMessage{
			Id:             uuid.New(),
			ConversationId: conversationId,
			StudentId:      "student-1",
			Role:           "assistant",
			Content:        "the slope is off",
			Metadata:       meta,
			CreatedAt:      now.Add(time.Second),
		},
	)

	svc := NewChatService(nil, repo, logger.NewNopLogger())

	messages, err := svc.GetConversation(context.Background(), conversationId)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Nil(t, messages[0].Metadata)
	require.NotNil(t, messages[1].Metadata)
	assert.Equal(t, "question", messages[1].Metadata.Intent)
	assert.True(t, messages[1].Metadata.CanvasUsed)
}

func TestDeleteConversationIsIdempotent(t *testing.T) {
	repo := &fakeConversationRepo{}
	conversationId := uuid.New()
	seedTurn(repo, conversationId, "student-1", "q", "a", time.Now())

	svc := NewChatService(nil, repo, logger.NewNopLogger())

	res, err := svc.DeleteConversation(context.Background(), conversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)

	res, err = svc.DeleteConversation(context.Background(), conversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Deleted)

	messages, err := svc.GetConversation(context.Background(), conversationId)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatRejectsMalformedConversationId(t *testing.T) {
	svc := NewChatService(nil, &fakeConversationRepo{}, logger.NewNopLogger())

	_, err := svc.Chat(context.Background(), &dto.ChatRequest{
		StudentId:      "student-1",
		Message:        "hi",
		ConversationId: "not-a-uuid",
	})
	assert.Error(t, err)
}
