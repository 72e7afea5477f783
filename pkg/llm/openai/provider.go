package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-tutor-be/pkg/llm"

	"github.com/cenkalti/backoff/v4"
)

type OpenAIProvider struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	VisionModel string
	Client      *http.Client
}

// Ensure OpenAIProvider implements LLMProvider
var _ llm.LLMProvider = &OpenAIProvider{}

func NewOpenAIProvider(baseURL, apiKey, modelName, visionModel string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if visionModel == "" {
		visionModel = modelName
	}
	return &OpenAIProvider{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		ModelName:   modelName,
		VisionModel: visionModel,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

// Content is either a plain string or a list of parts for vision requests.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// --- Interface Implementation ---

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := resolveOptions(opts)

	payload := chatRequest{
		Model:       p.resolveModel(options, p.ModelName),
		Messages:    mapMessages(history),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	return p.complete(ctx, payload)
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamChunk, error) {
	options := resolveOptions(opts)

	payload := chatRequest{
		Model:       p.resolveModel(options, p.ModelName),
		Messages:    mapMessages(history),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stream:      true,
	}

	resp, err := p.sendWithRetry(ctx, payload)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			content, done, err := parseStreamLine(scanner.Bytes())
			if err != nil {
				select {
				case out <- llm.StreamChunk{Err: fmt.Errorf("parse stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if done {
				return
			}
			if content == "" {
				continue
			}
			select {
			case out <- llm.StreamChunk{Content: content}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- llm.StreamChunk{Err: fmt.Errorf("read stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, imagePath string, prompt string, opts ...llm.Option) (string, error) {
	options := resolveOptions(opts)

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", imageMimeType(imagePath), base64.StdEncoding.EncodeToString(imageData))

	payload := chatRequest{
		Model: p.resolveModel(options, p.VisionModel),
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	return p.complete(ctx, payload)
}

// --- Internals ---

func resolveOptions(opts []llm.Option) *llm.Options {
	options := &llm.Options{
		Temperature: 0.7, // Default
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (p *OpenAIProvider) resolveModel(options *llm.Options, fallback string) string {
	if options.Model != "" {
		return options.Model
	}
	return fallback
}

func mapMessages(history []llm.Message) []chatMessage {
	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages[i] = chatMessage{
			Role:    role,
			Content: msg.Content,
		}
	}
	return messages
}

func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// complete runs a blocking completion with retries. Network failures, 429 and
// 5xx responses are retried; other statuses and parse failures are permanent.
func (p *OpenAIProvider) complete(ctx context.Context, payload chatRequest) (string, error) {
	operation := func() (string, error) {
		resp, err := p.send(ctx, payload)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}

		var parsed chatResponse
		if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
			return "", backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("openai: empty choices"))
		}
		return parsed.Choices[0].Message.Content, nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryWithData(operation, b)
}

// sendWithRetry opens the request with the same retry policy as complete,
// so stream initiation also survives transient failures.
func (p *OpenAIProvider) sendWithRetry(ctx context.Context, payload chatRequest) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		return p.send(ctx, payload)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryWithData(operation, b)
}

// send posts the payload and returns the response on 200. Non-200 responses
// are drained and returned as errors, marked permanent for client faults.
func (p *OpenAIProvider) send(ctx context.Context, payload chatRequest) (*http.Response, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := p.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		statusErr := &statusError{Code: resp.StatusCode, Body: string(bodyBytes)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return resp, nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai error: status %d, body: %s", e.Code, e.Body)
}

// parseStreamLine handles one SSE line from the completions stream.
// Blank lines and comments yield empty content; "data: [DONE]" sets done.
func parseStreamLine(line []byte) (content string, done bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || !bytes.HasPrefix(trimmed, []byte("data:")) {
		return "", false, nil
	}

	data := bytes.TrimSpace(bytes.TrimPrefix(trimmed, []byte("data:")))
	if bytes.Equal(data, []byte("[DONE]")) {
		return "", true, nil
	}

	var parsed streamResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, err
	}
	if len(parsed.Choices) == 0 {
		return "", false, nil
	}
	return parsed.Choices[0].Delta.Content, false, nil
}
