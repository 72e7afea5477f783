package implementation

import (
	"context"

	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{db: db}
}

func (r *ConversationRepositoryImpl) Append(ctx context.Context, message *entity.ConversationMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *ConversationRepositoryImpl) FindByConversation(ctx context.Context, conversationId uuid.UUID, limit int) ([]*entity.ConversationMessage, error) {
	var messages []*entity.ConversationMessage

	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)

	if limit > 0 {
		// Grab the newest limit rows, then flip back to ascending order.
		if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		return messages, nil
	}

	if err := query.Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *ConversationRepositoryImpl) ListByStudent(ctx context.Context, studentId string) ([]*entity.ConversationMessage, error) {
	var messages []*entity.ConversationMessage
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentId).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *ConversationRepositoryImpl) DeleteByConversation(ctx context.Context, conversationId uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Delete(&entity.ConversationMessage{})
	return result.RowsAffected, result.Error
}
