package contract

import (
	"context"

	"ai-tutor-be/internal/entity"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Append(ctx context.Context, message *entity.ConversationMessage) error
	// FindByConversation returns messages in ascending created_at order.
	// limit > 0 keeps only the most recent limit messages.
	FindByConversation(ctx context.Context, conversationId uuid.UUID, limit int) ([]*entity.ConversationMessage, error)
	// ListByStudent returns all messages for a student, newest first, for
	// grouping into conversation summaries.
	ListByStudent(ctx context.Context, studentId string) ([]*entity.ConversationMessage, error)
	DeleteByConversation(ctx context.Context, conversationId uuid.UUID) (int64, error)
}
