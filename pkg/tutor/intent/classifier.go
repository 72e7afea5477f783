package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-tutor-be/internal/constant"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/pkg/llm"
)

// Classification is the classifier's full output for one message.
type Classification struct {
	Intent      string  `json:"intent"`
	NeedsCanvas bool    `json:"needs_canvas"`
	Confidence  float64 `json:"confidence"`
}

var validIntents = map[string]bool{
	constant.IntentQuestion:            true,
	constant.IntentHintRequest:         true,
	constant.IntentCanvasReviewRequest: true,
	constant.IntentClarification:       true,
	constant.IntentGeneral:             true,
}

// Classifier resolves a student message into one intent label plus a canvas
// decision in a single LLM call. It never fails a turn: any provider or
// parse error falls back to the general intent.
type Classifier struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
	historySize int
}

func NewClassifier(llmProvider llm.LLMProvider, log logger.ILogger, historySize int) *Classifier {
	if historySize <= 0 {
		historySize = 10
	}
	return &Classifier{
		llmProvider: llmProvider,
		logger:      log,
		historySize: historySize,
	}
}

func (c *Classifier) Classify(ctx context.Context, message string, history []llm.Message) Classification {
	prompt := fmt.Sprintf(constant.IntentClassifyPromptV1, formatConversation(c.recent(history)), message)

	response, err := c.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.2))
	if err != nil {
		c.logger.Warn("intent", "classification call failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallback()
	}

	classification, err := parseClassification(response)
	if err != nil {
		c.logger.Warn("intent", "classification output unparsable, using fallback", map[string]interface{}{
			"error": err.Error(),
			"raw":   truncate(response, 200),
		})
		return fallback()
	}

	c.logger.Info("intent", "classified", map[string]interface{}{
		"intent":       classification.Intent,
		"needs_canvas": classification.NeedsCanvas,
		"confidence":   classification.Confidence,
	})
	return classification
}

func (c *Classifier) recent(history []llm.Message) []llm.Message {
	if len(history) > c.historySize {
		return history[len(history)-c.historySize:]
	}
	return history
}

func parseClassification(response string) (Classification, error) {
	raw := stripFences(strings.TrimSpace(response))

	jsonContent := extractJSON(raw)
	if jsonContent == "" {
		return Classification{}, fmt.Errorf("no JSON found in response")
	}

	var parsed struct {
		Intent      string   `json:"intent"`
		NeedsCanvas bool     `json:"needs_canvas"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonContent), &parsed); err != nil {
		return Classification{}, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	label := strings.ToLower(strings.TrimSpace(parsed.Intent))
	if !validIntents[label] {
		return Classification{}, fmt.Errorf("unknown intent label: %q", parsed.Intent)
	}

	confidence := 0.9 // models rarely report one; assume firm when parseable
	if parsed.Confidence != nil {
		confidence = *parsed.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	return Classification{
		Intent:      label,
		NeedsCanvas: parsed.NeedsCanvas,
		Confidence:  confidence,
	}, nil
}

func fallback() Classification {
	return Classification{
		Intent:      constant.IntentGeneral,
		NeedsCanvas: false,
		Confidence:  0,
	}
}

func formatConversation(messages []llm.Message) string {
	if len(messages) == 0 {
		return constant.NoPreviousConversation
	}

	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = fmt.Sprintf("%s: %s", msg.Role, msg.Content)
	}
	return strings.Join(formatted, "\n")
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw, "\n"); idx != -1 {
		raw = raw[idx+1:]
	}
	if idx := strings.LastIndex(raw, "```"); idx != -1 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}
	return response[startIdx : endIdx+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
