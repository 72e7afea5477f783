package contract

import (
	"context"
	"time"

	"ai-tutor-be/internal/entity"

	"github.com/google/uuid"
)

type CanvasSessionRepository interface {
	Create(ctx context.Context, session *entity.CanvasSession) error
	FindLatestByStudent(ctx context.Context, studentId string) (*entity.CanvasSession, error)
	FindAllByStudent(ctx context.Context, studentId string, limit int) ([]*entity.CanvasSession, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis string, analyzedAt time.Time) error
}
