package implementation

import (
	"context"

	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourseChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewCourseChunkRepository(db *gorm.DB) contract.CourseChunkRepository {
	return &CourseChunkRepositoryImpl{db: db}
}

func (r *CourseChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(chunks).Error
}

func (r *CourseChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Delete(&entity.CourseChunk{}).Error
}
