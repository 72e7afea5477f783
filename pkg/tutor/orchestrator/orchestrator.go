package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-tutor-be/internal/constant"
	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/contract"
	"ai-tutor-be/pkg/llm"
	"ai-tutor-be/pkg/tutor/event"
	"ai-tutor-be/pkg/tutor/intent"
	"ai-tutor-be/pkg/tutor/response"
	"ai-tutor-be/pkg/tutor/turnlock"
	"ai-tutor-be/pkg/tutor/vision"

	"github.com/google/uuid"
)

// TurnRequest is one incoming chat turn. ConversationId is uuid.Nil for the
// first turn of a new conversation.
type TurnRequest struct {
	StudentId      string
	Message        string
	ConversationId uuid.UUID
}

// TurnResult is the done payload of a completed turn.
type TurnResult struct {
	ConversationId uuid.UUID
	Response       string
	Intent         string
	Confidence     float64
	CanvasUsed     bool
}

// turnState carries one in-flight turn through the pipeline. Stages take it
// by value and return an updated copy; nothing is shared across turns.
type turnState struct {
	conversationId uuid.UUID
	studentId      string
	message        string
	history        []llm.Message
	classification intent.Classification
	canvasAnalysis string
	canvasImageUrl string
	systemNote     string
	canvasUsed     bool
	response       string
}

// Orchestrator sequences one turn: persist the user message, classify,
// optionally analyze the canvas, stream the answer, persist the assistant
// message. It multiplexes everything onto one ordered event channel.
type Orchestrator struct {
	conversations contract.ConversationRepository
	classifier    *intent.Classifier
	analyzer      *vision.Analyzer
	streamer      *response.Streamer
	locks         *turnlock.KeyedLock
	logger        logger.ILogger
	historyLimit  int
	bufSize       int
}

func New(
	conversations contract.ConversationRepository,
	classifier *intent.Classifier,
	analyzer *vision.Analyzer,
	streamer *response.Streamer,
	locks *turnlock.KeyedLock,
	log logger.ILogger,
	historyLimit int,
	bufSize int,
) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Orchestrator{
		conversations: conversations,
		classifier:    classifier,
		analyzer:      analyzer,
		streamer:      streamer,
		locks:         locks,
		logger:        log,
		historyLimit:  historyLimit,
		bufSize:       bufSize,
	}
}

// Stream runs the turn and returns its ordered event sequence. The channel
// is closed after the terminal event, or without one when ctx is cancelled
// mid-turn (the client treats closure without done as failure).
func (o *Orchestrator) Stream(ctx context.Context, req TurnRequest) <-chan event.Event {
	out := make(chan event.Event, o.bufSize)

	go func() {
		defer close(out)

		emit := func(ev event.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		o.run(ctx, req, emit)
	}()

	return out
}

// Run executes the same pipeline synchronously and returns the done payload.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	var conversationId uuid.UUID

	for ev := range o.Stream(ctx, req) {
		switch ev.Type {
		case event.TypeMeta:
			conversationId, _ = uuid.Parse(ev.ConversationId)
		case event.TypeDone:
			return &TurnResult{
				ConversationId: conversationId,
				Response:       ev.Response,
				Intent:         ev.Intent,
				Confidence:     ev.Confidence,
				CanvasUsed:     ev.CanvasUsed,
			}, nil
		case event.TypeError:
			if ev.Message == turnlock.ErrTurnInProgress.Error() {
				return nil, turnlock.ErrTurnInProgress
			}
			return nil, errors.New(ev.Message)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without done event")
}

func (o *Orchestrator) run(ctx context.Context, req TurnRequest, emit func(event.Event) bool) {
	state := turnState{
		conversationId: req.ConversationId,
		studentId:      req.StudentId,
		message:        req.Message,
	}
	if state.conversationId == uuid.Nil {
		state.conversationId = uuid.New()
	}

	if err := o.locks.TryAcquire(state.conversationId.String()); err != nil {
		emit(event.Error(err.Error()))
		return
	}
	defer o.locks.Release(state.conversationId.String())

	// History is read before the current message is appended so the
	// classifier and streamer see only prior turns.
	history, err := o.loadHistory(ctx, state.conversationId)
	if err != nil {
		o.logger.Error("orchestrator", "history load failed", map[string]interface{}{
			"conversation_id": state.conversationId.String(),
			"error":           err.Error(),
		})
		emit(event.Error("failed to load conversation history"))
		return
	}
	state.history = history

	if err := o.appendMessage(ctx, state, constant.ChatMessageRoleUser, state.message, nil); err != nil {
		o.logger.Error("orchestrator", "user message append failed", map[string]interface{}{
			"conversation_id": state.conversationId.String(),
			"error":           err.Error(),
		})
		emit(event.Error("failed to persist message"))
		return
	}

	if !emit(event.Meta(state.conversationId.String())) {
		return
	}

	if !emit(event.Status(constant.StatusThinking)) {
		return
	}
	state = o.classify(ctx, state)

	if state.classification.NeedsCanvas {
		var ok bool
		state, ok = o.canvasStep(ctx, state, emit)
		if !ok {
			return
		}
	}

	state, err = o.streamResponse(ctx, state, emit)
	if err != nil {
		if ctx.Err() != nil {
			// Client disconnect. The user message stays; no assistant
			// message is written and no further events can be delivered.
			return
		}
		o.logger.Error("orchestrator", "response stream failed", map[string]interface{}{
			"conversation_id": state.conversationId.String(),
			"error":           err.Error(),
		})
		emit(event.Error("response generation failed"))
		return
	}
	if ctx.Err() != nil {
		// The stream may finish in the same instant the client leaves. A
		// cancelled turn keeps only the user message either way.
		return
	}

	meta := &dto.MessageMetadata{
		Intent:     state.classification.Intent,
		Confidence: state.classification.Confidence,
		CanvasUsed: state.canvasUsed,
	}
	if err := o.appendMessage(ctx, state, constant.ChatMessageRoleAssistant, state.response, meta); err != nil {
		o.logger.Error("orchestrator", "assistant message append failed", map[string]interface{}{
			"conversation_id": state.conversationId.String(),
			"error":           err.Error(),
		})
		emit(event.Error("failed to persist response"))
		return
	}

	emit(event.Done(state.response, state.classification.Intent, state.classification.Confidence, state.canvasUsed))
}

func (o *Orchestrator) classify(ctx context.Context, state turnState) turnState {
	state.classification = o.classifier.Classify(ctx, state.message, state.history)
	return state
}

// canvasStep resolves canvas context for the turn. A missing canvas or a
// vision failure degrades the turn to text-only with an explanatory system
// note; only emit failure (client gone) stops the turn here.
func (o *Orchestrator) canvasStep(ctx context.Context, state turnState, emit func(event.Event) bool) (turnState, bool) {
	status := constant.StatusLookingCanvas
	if o.analyzer.HasCachedAnalysis(ctx, state.studentId) {
		status = constant.StatusReviewedCanvas
	}
	if !emit(event.Status(status)) {
		return state, false
	}

	result, err := o.analyzer.Analyze(ctx, state.studentId, state.message)
	if err != nil {
		if errors.Is(err, vision.ErrNoCanvas) {
			state.systemNote = constant.NoCanvasSystemNote
		} else {
			o.logger.Warn("orchestrator", "vision step failed, degrading to text-only", map[string]interface{}{
				"student_id": state.studentId,
				"error":      err.Error(),
			})
			state.systemNote = constant.VisionFailureSystemNote
		}
		return state, true
	}

	state.canvasAnalysis = result.Analysis
	state.canvasImageUrl = result.ImageUrl
	state.canvasUsed = true

	if !emit(event.CanvasImage(state.canvasImageUrl)) {
		return state, false
	}
	return state, true
}

func (o *Orchestrator) streamResponse(ctx context.Context, state turnState, emit func(event.Event) bool) (turnState, error) {
	messages := o.streamer.BuildMessages(state.history, state.message, state.canvasAnalysis, state.systemNote)

	full, err := o.streamer.Stream(ctx, messages, func(fragment string) {
		emit(event.Chunk(fragment))
	})
	if err != nil {
		return state, err
	}

	state.response = full
	return state, nil
}

func (o *Orchestrator) loadHistory(ctx context.Context, conversationId uuid.UUID) ([]llm.Message, error) {
	messages, err := o.conversations.FindByConversation(ctx, conversationId, o.historyLimit)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, len(messages))
	for i, msg := range messages {
		history[i] = llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return history, nil
}

func (o *Orchestrator) appendMessage(ctx context.Context, state turnState, role, content string, meta *dto.MessageMetadata) error {
	message := &entity.ConversationMessage{
		Id:             uuid.New(),
		ConversationId: state.conversationId,
		StudentId:      state.studentId,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	if meta != nil {
		metaJson, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		message.Metadata = metaJson
	}

	return o.conversations.Append(ctx, message)
}
