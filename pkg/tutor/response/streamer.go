package response

import (
	"context"
	"strings"

	"ai-tutor-be/internal/constant"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/pkg/llm"
)

// Streamer drives the model gateway for the answering half of a turn.
type Streamer struct {
	llmProvider  llm.LLMProvider
	logger       logger.ILogger
	historyLimit int
}

func NewStreamer(llmProvider llm.LLMProvider, log logger.ILogger, historyLimit int) *Streamer {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Streamer{
		llmProvider:  llmProvider,
		logger:       log,
		historyLimit: historyLimit,
	}
}

// BuildMessages assembles the gateway call: tutor system prompt, rolling
// history, optional canvas analysis, optional degradation note, then the
// student's current message.
func (s *Streamer) BuildMessages(history []llm.Message, userMessage, canvasAnalysis, systemNote string) []llm.Message {
	recent := history
	if len(recent) > s.historyLimit {
		recent = recent[len(recent)-s.historyLimit:]
	}

	messages := make([]llm.Message, 0, len(recent)+4)
	messages = append(messages, llm.Message{
		Role:    constant.ChatMessageRoleSystem,
		Content: constant.TutorSystemPromptV1,
	})
	messages = append(messages, recent...)

	if canvasAnalysis != "" {
		messages = append(messages, llm.Message{
			Role:    constant.ChatMessageRoleSystem,
			Content: constant.CanvasAnalysisNotePrefix + canvasAnalysis,
		})
	}
	if systemNote != "" {
		messages = append(messages, llm.Message{
			Role:    constant.ChatMessageRoleSystem,
			Content: systemNote,
		})
	}

	messages = append(messages, llm.Message{
		Role:    constant.ChatMessageRoleUser,
		Content: userMessage,
	})
	return messages
}

// Stream pulls fragments from the gateway in emission order, invoking
// onChunk for each. It returns the concatenated text. Context cancellation
// stops the pull loop and returns ctx.Err(); the partial text is discarded
// by the caller.
func (s *Streamer) Stream(ctx context.Context, messages []llm.Message, onChunk func(string)) (string, error) {
	chunks, err := s.llmProvider.ChatStream(ctx, messages, llm.WithTemperature(0.7))
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return full.String(), nil
			}
			if chunk.Err != nil {
				return "", chunk.Err
			}
			full.WriteString(chunk.Content)
			onChunk(chunk.Content)
		}
	}
}
