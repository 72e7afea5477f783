package intent

import (
	"context"
	"errors"
	"testing"

	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
)

type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) AnalyzeImage(ctx context.Context, imagePath string, prompt string, options ...llm.Option) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.response, s.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name            string
		response        string
		err             error
		wantIntent      string
		wantNeedsCanvas bool
		wantConfidence  float64
	}{
		{
			name:            "clean json",
			response:        `{"intent": "question", "needs_canvas": false, "confidence": 0.85}`,
			wantIntent:      "question",
			wantNeedsCanvas: false,
			wantConfidence:  0.85,
		},
		{
			name:            "fenced json",
			response:        "```json\n{\"intent\": \"canvas_review_request\", \"needs_canvas\": true, \"confidence\": 0.95}\n```",
			wantIntent:      "canvas_review_request",
			wantNeedsCanvas: true,
			wantConfidence:  0.95,
		},
		{
			name:            "json buried in prose",
			response:        "Sure, here is the classification: {\"intent\": \"hint_request\", \"needs_canvas\": true} as requested.",
			wantIntent:      "hint_request",
			wantNeedsCanvas: true,
			wantConfidence:  0.9, // default when the model omits it
		},
		{
			name:            "uppercase label is normalized",
			response:        `{"intent": "Clarification", "needs_canvas": false, "confidence": 0.7}`,
			wantIntent:      "clarification",
			wantNeedsCanvas: false,
			wantConfidence:  0.7,
		},
		{
			name:            "confidence clamped to one",
			response:        `{"intent": "question", "needs_canvas": false, "confidence": 1.7}`,
			wantIntent:      "question",
			wantNeedsCanvas: false,
			wantConfidence:  1,
		},
		{
			name:           "unknown label falls back",
			response:       `{"intent": "banter", "needs_canvas": true, "confidence": 0.9}`,
			wantIntent:     "general",
			wantConfidence: 0,
		},
		{
			name:           "no json falls back",
			response:       "I think the student is asking a question.",
			wantIntent:     "general",
			wantConfidence: 0,
		},
		{
			name:           "malformed json falls back",
			response:       `{"intent": "question", "needs_canvas": `,
			wantIntent:     "general",
			wantConfidence: 0,
		},
		{
			name:           "provider error falls back",
			err:            errors.New("gateway down"),
			wantIntent:     "general",
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := NewClassifier(&stubProvider{response: tt.response, err: tt.err}, logger.NewNopLogger(), 10)

			got := classifier.Classify(context.Background(), "how do I factor this?", nil)

			assert.Equal(t, tt.wantIntent, got.Intent)
			assert.Equal(t, tt.wantNeedsCanvas, got.NeedsCanvas)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
		})
	}
}

func TestFormatConversation(t *testing.T) {
	assert.Equal(t, "No previous conversation", formatConversation(nil))

	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	assert.Equal(t, "user: hi\nassistant: hello", formatConversation(history))
}

func TestRecentKeepsTail(t *testing.T) {
	classifier := NewClassifier(&stubProvider{}, logger.NewNopLogger(), 2)

	history := []llm.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
	}

	recent := classifier.recent(history)
	assert.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content)
	assert.Equal(t, "third", recent[1].Content)
}
