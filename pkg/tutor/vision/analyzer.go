package vision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"ai-tutor-be/internal/constant"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/contract"
	"ai-tutor-be/internal/repository/memory"
	"ai-tutor-be/pkg/llm"
	"ai-tutor-be/pkg/store"

	"golang.org/x/sync/singleflight"
)

var ErrNoCanvas = errors.New("no recent canvas available")

// Result is one resolved canvas analysis for a turn.
type Result struct {
	Analysis string
	ImageUrl string
	CacheHit bool
}

// Analyzer resolves a student's most recent canvas and produces (or reuses)
// its vision analysis. Concurrent requests for the same student collapse
// into a single live gateway call.
type Analyzer struct {
	llmProvider llm.LLMProvider
	cache       *memory.CanvasCache
	sessions    contract.CanvasSessionRepository
	logger      logger.ILogger
	group       singleflight.Group
	ttl         time.Duration
}

func NewAnalyzer(
	llmProvider llm.LLMProvider,
	cache *memory.CanvasCache,
	sessions contract.CanvasSessionRepository,
	log logger.ILogger,
	ttl time.Duration,
) *Analyzer {
	return &Analyzer{
		llmProvider: llmProvider,
		cache:       cache,
		sessions:    sessions,
		logger:      log,
		ttl:         ttl,
	}
}

// Analyze returns the analysis of the student's latest canvas, from cache
// when the underlying image has not changed, otherwise via the model
// gateway. ErrNoCanvas means the student has no canvas within the TTL.
func (a *Analyzer) Analyze(ctx context.Context, studentId, studentQuery string) (*Result, error) {
	snapshot, err := a.resolveSnapshot(ctx, studentId)
	if err != nil {
		return nil, err
	}

	if cached, ok := a.cache.GetAnalysis(studentId, snapshot.ImagePath); ok {
		return &Result{Analysis: cached.Text, ImageUrl: snapshot.ImageUrl, CacheHit: true}, nil
	}

	v, err, shared := a.group.Do(studentId, func() (interface{}, error) {
		// A concurrent caller may have filled the cache while we waited.
		if cached, ok := a.cache.GetAnalysis(studentId, snapshot.ImagePath); ok {
			return cached.Text, nil
		}
		return a.analyzeImage(ctx, studentId, snapshot, studentQuery)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		a.logger.Debug("vision", "analysis shared with concurrent caller", map[string]interface{}{
			"student_id": studentId,
		})
	}

	return &Result{Analysis: v.(string), ImageUrl: snapshot.ImageUrl, CacheHit: false}, nil
}

// HasRecentCanvas reports whether a turn could use canvas context at all.
func (a *Analyzer) HasRecentCanvas(ctx context.Context, studentId string) bool {
	_, err := a.resolveSnapshot(ctx, studentId)
	return err == nil
}

// HasCachedAnalysis reports whether Analyze would be a cache hit, so the
// caller can pick the right progress text before invoking it.
func (a *Analyzer) HasCachedAnalysis(ctx context.Context, studentId string) bool {
	snapshot, err := a.resolveSnapshot(ctx, studentId)
	if err != nil {
		return false
	}
	_, ok := a.cache.GetAnalysis(studentId, snapshot.ImagePath)
	return ok
}

// resolveSnapshot reads through the TTL cache to the durable store.
func (a *Analyzer) resolveSnapshot(ctx context.Context, studentId string) (*store.CanvasSnapshot, error) {
	if snapshot, ok := a.cache.GetSnapshot(studentId); ok {
		return snapshot, nil
	}

	session, err := a.sessions.FindLatestByStudent(ctx, studentId)
	if err != nil {
		return nil, fmt.Errorf("canvas lookup: %w", err)
	}
	if session == nil || time.Since(session.CreatedAt) > a.ttl {
		return nil, ErrNoCanvas
	}

	snapshot := &store.CanvasSnapshot{
		RecordId:   session.Id,
		SessionId:  session.Id.String(),
		StudentId:  studentId,
		ImagePath:  session.ImagePath,
		ImageUrl:   "/" + filepath.ToSlash(session.ImagePath),
		UploadedAt: session.CreatedAt,
	}
	a.cache.SaveSnapshotFor(snapshot, a.ttl-time.Since(session.CreatedAt))

	// A durable analysis survives process restarts; rehydrate it so the
	// gateway is not called again for the same image.
	if session.Analysis != "" && session.AnalyzedAt != nil {
		a.cache.SaveAnalysis(studentId, &store.CanvasAnalysis{
			Text:       session.Analysis,
			ImagePath:  session.ImagePath,
			AnalyzedAt: *session.AnalyzedAt,
		})
	}

	return snapshot, nil
}

func (a *Analyzer) analyzeImage(ctx context.Context, studentId string, snapshot *store.CanvasSnapshot, studentQuery string) (string, error) {
	prompt := constant.VisionCanvasPromptV1
	if studentQuery != "" {
		prompt = fmt.Sprintf(constant.VisionCanvasPromptWithQueryV1, studentQuery)
	}

	analysis, err := a.llmProvider.AnalyzeImage(ctx, snapshot.ImagePath, prompt, llm.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("vision analysis: %w", err)
	}

	now := time.Now()
	a.cache.SaveAnalysis(studentId, &store.CanvasAnalysis{
		Text:       analysis,
		ImagePath:  snapshot.ImagePath,
		AnalyzedAt: now,
	})

	// Best effort; the cache already holds the result.
	if err := a.sessions.UpdateAnalysis(ctx, snapshot.RecordId, analysis, now); err != nil {
		a.logger.Warn("vision", "failed to persist analysis", map[string]interface{}{
			"student_id": studentId,
			"error":      err.Error(),
		})
	}

	a.logger.Info("vision", "canvas analyzed", map[string]interface{}{
		"student_id": studentId,
		"image_path": snapshot.ImagePath,
	})
	return analysis, nil
}
