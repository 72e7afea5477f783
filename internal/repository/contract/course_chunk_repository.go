package contract

import (
	"context"

	"ai-tutor-be/internal/entity"

	"github.com/google/uuid"
)

type CourseChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.CourseChunk) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
}
