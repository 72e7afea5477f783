package implementation

import (
	"context"
	"errors"
	"time"

	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CanvasSessionRepositoryImpl struct {
	db *gorm.DB
}

func NewCanvasSessionRepository(db *gorm.DB) contract.CanvasSessionRepository {
	return &CanvasSessionRepositoryImpl{db: db}
}

func (r *CanvasSessionRepositoryImpl) Create(ctx context.Context, session *entity.CanvasSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *CanvasSessionRepositoryImpl) FindLatestByStudent(ctx context.Context, studentId string) (*entity.CanvasSession, error) {
	var session entity.CanvasSession
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentId).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *CanvasSessionRepositoryImpl) FindAllByStudent(ctx context.Context, studentId string, limit int) ([]*entity.CanvasSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []*entity.CanvasSession
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentId).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *CanvasSessionRepositoryImpl) UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis string, analyzedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.CanvasSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"analysis":    analysis,
			"analyzed_at": analyzedAt,
		}).Error
}
