package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/memory"
	"ai-tutor-be/pkg/llm"
	"ai-tutor-be/pkg/store"
	"ai-tutor-be/pkg/tutor/event"
	"ai-tutor-be/pkg/tutor/intent"
	"ai-tutor-be/pkg/tutor/response"
	"ai-tutor-be/pkg/tutor/turnlock"
	"ai-tutor-be/pkg/tutor/vision"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider drives a whole turn: Generate answers the classification
// call, ChatStream feeds the response chunks, AnalyzeImage the vision step.
type scriptedProvider struct {
	classification string
	chunks         []string
	streamErr      error
	blockStream    bool
	analysis       string
	analysisErr    error
}

func (p *scriptedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return strings.Join(p.chunks, ""), nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for _, c := range p.chunks {
			select {
			case out <- llm.StreamChunk{Content: c}:
			case <-ctx.Done():
				return
			}
		}
		if p.streamErr != nil {
			select {
			case out <- llm.StreamChunk{Err: p.streamErr}:
			case <-ctx.Done():
			}
			return
		}
		if p.blockStream {
			<-ctx.Done()
		}
	}()
	return out, nil
}

func (p *scriptedProvider) AnalyzeImage(ctx context.Context, imagePath string, prompt string, options ...llm.Option) (string, error) {
	return p.analysis, p.analysisErr
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.classification, nil
}

// memoryConversationRepo keeps messages in insertion order.
type memoryConversationRepo struct {
	mu       sync.Mutex
	messages []*entity.ConversationMessage
	failNext bool
}

func (r *memoryConversationRepo) Append(ctx context.Context, message *entity.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("db down")
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *memoryConversationRepo) FindByConversation(ctx context.Context, conversationId uuid.UUID, limit int) ([]*entity.ConversationMessage, error) {
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

func (r *memoryConversationRepo) ListByStudent(ctx context.Context, studentId string) ([]*entity.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*entity.ConversationMessage
	for _, m := range r.messages {
		if m.StudentId == studentId {
			found = append(found, m)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].CreatedAt.After(found[j].CreatedAt)
	})
	return found, nil
}

func (r *memoryConversationRepo) DeleteByConversation(ctx context.Context, conversationId uuid.UUID) (int64, error) {
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

type harness struct {
	orchestrator *Orchestrator
	repo         *memoryConversationRepo
	cache        *memory.CanvasCache
	locks        *turnlock.KeyedLock
}

func newHarness(provider llm.LLMProvider, sessions *visionSessionStub) *harness {
	log := logger.NewNopLogger()
	repo := &memoryConversationRepo{}
	cache := memory.NewCanvasCache(30 * time.Minute)
	locks := turnlock.New()

	o := New(
		repo,
		intent.NewClassifier(provider, log, 10),
		vision.NewAnalyzer(provider, cache, sessions, log, 30*time.Minute),
		response.NewStreamer(provider, log, 10),
		locks,
		log,
		10,
		32,
	)
	return &harness{orchestrator: o, repo: repo, cache: cache, locks: locks}
}

type visionSessionStub struct {
	latest *entity.CanvasSession
}

func (s *visionSessionStub) Create(ctx context.Context, session *entity.CanvasSession) error {
	return nil
}

func (s *visionSessionStub) FindLatestByStudent(ctx context.Context, studentId string) (*entity.CanvasSession, error) {
	return s.latest, nil
}

func (s *visionSessionStub) FindAllByStudent(ctx context.Context, studentId string, limit int) ([]*entity.CanvasSession, error) {
	return nil, nil
}

func (s *visionSessionStub) UpdateAnalysis(ctx context.Context, id uuid.UUID, analysis string, analyzedAt time.Time) error {
	return nil
}

func collect(events <-chan event.Event) []event.Event {
	var all []event.Event
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func types(events []event.Event) []event.Type {
	out := make([]event.Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestTextOnlyTurn(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "question", "needs_canvas": false, "confidence": 0.9}`,
		chunks:         []string{"Start by ", "isolating x ", "on one side."},
	}
	h := newHarness(provider, &visionSessionStub{})

	events := collect(h.orchestrator.Stream(context.Background(), TurnRequest{
		StudentId: "student-1",
		Message:   "how do I solve 2x+3=9?",
	}))

	require.Equal(t, []event.Type{
		event.TypeMeta,
		event.TypeStatus,
		event.TypeChunk,
		event.TypeChunk,
		event.TypeChunk,
		event.TypeDone,
	}, types(events))

	done := events[len(events)-1]
	assert.Equal(t, "Start by isolating x on one side.", done.Response)
	assert.Equal(t, "question", done.Intent)
	assert.InDelta(t, 0.9, done.Confidence, 1e-9)
	assert.False(t, done.CanvasUsed)

	// Chunks concatenate to the final response.
	var concat strings.Builder
	for _, ev := range events {
		if ev.Type == event.TypeChunk {
			concat.WriteString(ev.Content)
		}
	}
	assert.Equal(t, done.Response, concat.String())

	// Both sides of the turn are persisted, assistant with metadata.
	conversationId, err := uuid.Parse(events[0].ConversationId)
	require.NoError(t, err)
	messages, err := h.repo.FindByConversation(context.Background(), conversationId, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Empty(t, messages[0].Metadata)
	assert.Equal(t, "assistant", messages[1].Role)

	var meta dto.MessageMetadata
	require.NoError(t, json.Unmarshal(messages[1].Metadata, &meta))
	assert.Equal(t, "question", meta.Intent)
	assert.False(t, meta.CanvasUsed)
}

func TestCanvasTurnEmitsOneCanvasImage(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "canvas_review_request", "needs_canvas": true, "confidence": 0.95}`,
		chunks:         []string{"Your second step ", "drops a sign."},
		analysis:       "sign error in step two",
	}
	h := newHarness(provider, &visionSessionStub{})
	h.cache.SaveSnapshot(&store.CanvasSnapshot{
		RecordId:   uuid.New(),
		StudentId:  "student-1",
		ImagePath:  "canvas_uploads/s1/steps/full_canvas.png",
		ImageUrl:   "/canvas_uploads/s1/steps/full_canvas.png",
		UploadedAt: time.Now(),
	})

	events := collect(h.orchestrator.Stream(context.Background(), TurnRequest{
		StudentId: "student-1",
		Message:   "can you check my canvas?",
	}))

	require.Equal(t, []event.Type{
		event.TypeMeta,
		event.TypeStatus, // Thinking...
		event.TypeStatus, // Looking at your canvas...
		event.TypeCanvasImage,
		event.TypeChunk,
		event.TypeChunk,
		event.TypeDone,
	}, types(events))

	assert.Equal(t, "/canvas_uploads/s1/steps/full_canvas.png", events[3].ImageUrl)

	done := events[len(events)-1]
	assert.True(t, done.CanvasUsed)
	assert.Equal(t, "canvas_review_request", done.Intent)
}

func TestCanvasTurnWithoutCanvasDegrades(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "canvas_review_request", "needs_canvas": true, "confidence": 0.95}`,
		chunks:         []string{"I can't see a canvas, but tell me your steps."},
	}
	h := newHarness(provider, &visionSessionStub{})

	events := collect(h.orchestrator.Stream(context.Background(), TurnRequest{
		StudentId: "student-1",
		Message:   "check my work",
	}))

	gotTypes := types(events)
	assert.NotContains(t, gotTypes, event.TypeCanvasImage)
	assert.NotContains(t, gotTypes, event.TypeError)

	done := events[len(events)-1]
	require.Equal(t, event.TypeDone, done.Type)
	assert.False(t, done.CanvasUsed)
}

func TestVisionFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "canvas_review_request", "needs_canvas": true, "confidence": 0.95}`,
		chunks:         []string{"Walk me through your steps instead."},
		analysisErr:    errors.New("vision model overloaded"),
	}
	h := newHarness(provider, &visionSessionStub{})
	h.cache.SaveSnapshot(&store.CanvasSnapshot{
		RecordId:   uuid.New(),
		StudentId:  "student-1",
		ImagePath:  "canvas_uploads/s1/steps/full_canvas.png",
		ImageUrl:   "/canvas_uploads/s1/steps/full_canvas.png",
		UploadedAt: time.Now(),
	})

	events := collect(h.orchestrator.Stream(context.Background(), TurnRequest{
		StudentId: "student-1",
		Message:   "check my work",
	}))

	gotTypes := types(events)
	assert.NotContains(t, gotTypes, event.TypeCanvasImage)

	done := events[len(events)-1]
	require.Equal(t, event.TypeDone, done.Type)
	assert.False(t, done.CanvasUsed)
}

func TestBusyConversationIsRejected(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "question", "needs_canvas": false, "confidence": 0.9}`,
		chunks:         []string{"answer"},
	}
	h := newHarness(provider, &visionSessionStub{})

	conversationId := uuid.New()
	require.NoError(t, h.locks.TryAcquire(conversationId.String()))
	defer h.locks.Release(conversationId.String())

	_, err := h.orchestrator.Run(context.Background(), TurnRequest{
		StudentId:      "student-1",
		Message:        "hello?",
		ConversationId: conversationId,
	})
	assert.ErrorIs(t, err, turnlock.ErrTurnInProgress)

	// Nothing persisted for the rejected turn.
	messages, err := h.repo.FindByConversation(context.Background(), conversationId, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStreamFailureEmitsErrorAndKeepsUserMessage(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "question", "needs_canvas": false, "confidence": 0.9}`,
		chunks:         []string{"partial "},
		streamErr:      errors.New("connection reset"),
	}
	h := newHarness(provider, &visionSessionStub{})

	events := collect(h.orchestrator.Stream(context.Background(), TurnRequest{
		StudentId: "student-1",
		Message:   "hi",
	}))

	last := events[len(events)-1]
	require.Equal(t, event.TypeError, last.Type)

	conversationId, err := uuid.Parse(events[0].ConversationId)
	require.NoError(t, err)
	messages, err := h.repo.FindByConversation(context.Background(), conversationId, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1, "only the user message survives a failed stream")
	assert.Equal(t, "user", messages[0].Role)
}

func TestCancellationClosesWithoutDone(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "question", "needs_canvas": false, "confidence": 0.9}`,
		chunks:         []string{"first chunk "},
		blockStream:    true,
	}
	h := newHarness(provider, &visionSessionStub{})

	ctx, cancel := context.WithCancel(context.Background())
	events := h.orchestrator.Stream(ctx, TurnRequest{
		StudentId: "student-1",
		Message:   "hi",
	})

	var got []event.Event
	for ev := range events {
		got = append(got, ev)
		if ev.Type == event.TypeChunk {
			cancel()
		}
	}
	cancel()

	for _, ev := range got {
		assert.NotEqual(t, event.TypeDone, ev.Type)
		assert.NotEqual(t, event.TypeError, ev.Type)
	}

	conversationId, err := uuid.Parse(got[0].ConversationId)
	require.NoError(t, err)
	messages, err := h.repo.FindByConversation(context.Background(), conversationId, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1, "a cancelled turn keeps only the user message")
	assert.Equal(t, "user", messages[0].Role)
}

func TestExistingConversationKeepsId(t *testing.T) {
	provider := &scriptedProvider{
		classification: `{"intent": "clarification", "needs_canvas": false, "confidence": 0.8}`,
		chunks:         []string{"sure"},
	}
	h := newHarness(provider, &visionSessionStub{})

	conversationId := uuid.New()
	result, err := h.orchestrator.Run(context.Background(), TurnRequest{
		StudentId:      "student-1",
		Message:        "what did you mean?",
		ConversationId: conversationId,
	})
	require.NoError(t, err)
	assert.Equal(t, conversationId, result.ConversationId)
}
