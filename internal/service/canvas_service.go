package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/contract"
	"ai-tutor-be/internal/repository/memory"
	"ai-tutor-be/internal/websocket"
	"ai-tutor-be/pkg/store"

	"github.com/google/uuid"
)

type ICanvasService interface {
	IngestSteps(ctx context.Context, req *dto.IngestCanvasRequest) (*dto.IngestCanvasResponse, error)
	GetSessions(ctx context.Context, studentId string) ([]*dto.CanvasSessionResponse, error)
}

type canvasService struct {
	sessions  contract.CanvasSessionRepository
	cache     *memory.CanvasCache
	hub       *websocket.Hub
	logger    logger.ILogger
	uploadDir string
}

func NewCanvasService(
	sessions contract.CanvasSessionRepository,
	cache *memory.CanvasCache,
	hub *websocket.Hub,
	log logger.ILogger,
	uploadDir string,
) ICanvasService {
	return &canvasService{
		sessions:  sessions,
		cache:     cache,
		hub:       hub,
		logger:    log,
		uploadDir: uploadDir,
	}
}

// IngestSteps saves the uploaded canvas, records it durably, makes it the
// student's most recent canvas (invalidating any cached analysis), and
// notifies the student's connected clients.
func (cs *canvasService) IngestSteps(ctx context.Context, req *dto.IngestCanvasRequest) (*dto.IngestCanvasResponse, error) {
	stepsDir := filepath.Join(cs.uploadDir, req.SessionId, "steps")
	if err := os.MkdirAll(stepsDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	imagePath := filepath.Join(stepsDir, "full_canvas.png")
	if err := os.WriteFile(imagePath, req.Image, 0644); err != nil {
		return nil, fmt.Errorf("save canvas image: %w", err)
	}

	for stepId, data := range req.StepImages {
		stepPath := filepath.Join(stepsDir, stepId+".png")
		if err := os.WriteFile(stepPath, data, 0644); err != nil {
			cs.logger.Warn("canvas", "failed to save step image", map[string]interface{}{
				"session_id": req.SessionId,
				"step_id":    stepId,
				"error":      err.Error(),
			})
		}
	}

	stepCount := countJSONItems(req.StepsJSON, "steps")
	strokeCount := countJSONItems(req.StrokesJSON, "strokes")

	// The durable row is written before the cache so both readers agree.
	session := &entity.CanvasSession{
		Id:         uuid.New(),
		StudentId:  req.StudentId,
		ImagePath:  imagePath,
		StepNumber: stepCount,
		CreatedAt:  time.Now(),
	}
	if err := cs.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist canvas session: %w", err)
	}

	imageUrl := "/" + filepath.ToSlash(imagePath)
	cs.cache.SaveSnapshot(&store.CanvasSnapshot{
		RecordId:    session.Id,
		SessionId:   req.SessionId,
		StudentId:   req.StudentId,
		ImagePath:   imagePath,
		ImageUrl:    imageUrl,
		Width:       req.ImageWidth,
		Height:      req.ImageHeight,
		StepCount:   stepCount,
		StrokeCount: strokeCount,
		UploadedAt:  session.CreatedAt,
	})

	if cs.hub != nil {
		cs.hub.NotifyCanvasUpdated(websocket.CanvasUpdate{
			StudentId:  req.StudentId,
			SessionId:  req.SessionId,
			ImageUrl:   imageUrl,
			UploadedAt: session.CreatedAt,
		})
	}

	cs.logger.Info("canvas", "canvas ingested", map[string]interface{}{
		"session_id":   req.SessionId,
		"student_id":   req.StudentId,
		"step_count":   stepCount,
		"stroke_count": strokeCount,
	})

	return &dto.IngestCanvasResponse{
		SessionId:   req.SessionId,
		StudentId:   req.StudentId,
		ImageUrl:    imageUrl,
		StepCount:   stepCount,
		StrokeCount: strokeCount,
	}, nil
}

func (cs *canvasService) GetSessions(ctx context.Context, studentId string) ([]*dto.CanvasSessionResponse, error) {
	sessions, err := cs.sessions.FindAllByStudent(ctx, studentId, 20)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.CanvasSessionResponse, len(sessions))
	for i, s := range sessions {
		responses[i] = &dto.CanvasSessionResponse{
			Id:         s.Id,
			StudentId:  s.StudentId,
			ImageUrl:   "/" + filepath.ToSlash(s.ImagePath),
			StepNumber: s.StepNumber,
			Analysis:   s.Analysis,
			AnalyzedAt: s.AnalyzedAt,
			CreatedAt:  s.CreatedAt,
		}
	}
	return responses, nil
}

// countJSONItems counts entries under the named array key, tolerating an
// empty or malformed payload.
func countJSONItems(raw, key string) int {
	if raw == "" {
		return 0
	}
	var parsed map[string][]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0
	}
	return len(parsed[key])
}
