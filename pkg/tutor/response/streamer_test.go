package response

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ai-tutor-be/internal/constant"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamStub struct {
	chunks    []string
	streamErr error
}

func (s *streamStub) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return strings.Join(s.chunks, ""), nil
}

func (s *streamStub) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk, len(s.chunks)+1)
	for _, c := range s.chunks {
		out <- llm.StreamChunk{Content: c}
	}
	if s.streamErr != nil {
		out <- llm.StreamChunk{Err: s.streamErr}
	}
	close(out)
	return out, nil
}

func (s *streamStub) AnalyzeImage(ctx context.Context, imagePath string, prompt string, options ...llm.Option) (string, error) {
	return "", errors.New("not implemented")
}

func (s *streamStub) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return "", errors.New("not implemented")
}

func TestBuildMessagesBaseShape(t *testing.T) {
	s := NewStreamer(&streamStub{}, logger.NewNopLogger(), 10)

	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	messages := s.BuildMessages(history, "what next?", "", "")

	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, constant.TutorSystemPromptV1, messages[0].Content)
	assert.Equal(t, history[0], messages[1])
	assert.Equal(t, history[1], messages[2])
	assert.Equal(t, llm.Message{Role: "user", Content: "what next?"}, messages[3])
}

func TestBuildMessagesInsertsCanvasAnalysis(t *testing.T) {
	s := NewStreamer(&streamStub{}, logger.NewNopLogger(), 10)

	messages := s.BuildMessages(nil, "is this right?", "step two drops a sign", "")

	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[1].Role)
	assert.Equal(t, constant.CanvasAnalysisNotePrefix+"step two drops a sign", messages[1].Content)
	assert.Equal(t, "is this right?", messages[2].Content)
}

func TestBuildMessagesInsertsSystemNote(t *testing.T) {
	s := NewStreamer(&streamStub{}, logger.NewNopLogger(), 10)

	messages := s.BuildMessages(nil, "check my canvas", "", constant.NoCanvasSystemNote)

	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[1].Role)
	assert.Equal(t, constant.NoCanvasSystemNote, messages[1].Content)
}

func TestBuildMessagesTruncatesHistory(t *testing.T) {
	s := NewStreamer(&streamStub{}, logger.NewNopLogger(), 2)

	history := []llm.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	messages := s.BuildMessages(history, "four", "", "")

	require.Len(t, messages, 4)
	assert.Equal(t, "two", messages[1].Content)
	assert.Equal(t, "three", messages[2].Content)
}

func TestStreamConcatenatesAndReportsChunks(t *testing.T) {
	s := NewStreamer(&streamStub{chunks: []string{"a ", "b ", "c"}}, logger.NewNopLogger(), 10)

	var seen []string
	full, err := s.Stream(context.Background(), nil, func(fragment string) {
		seen = append(seen, fragment)
	})
	require.NoError(t, err)
	assert.Equal(t, "a b c", full)
	assert.Equal(t, []string{"a ", "b ", "c"}, seen)
}

func TestStreamPropagatesChunkError(t *testing.T) {
	s := NewStreamer(&streamStub{chunks: []string{"partial"}, streamErr: errors.New("connection reset")}, logger.NewNopLogger(), 10)

	_, err := s.Stream(context.Background(), nil, func(string) {})
	assert.EqualError(t, err, "connection reset")
}
