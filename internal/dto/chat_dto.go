package dto

import (
	"time"

	"github.com/google/uuid"
)

// MessageMetadata is the closed metadata shape persisted with every message.
type MessageMetadata struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	CanvasUsed bool    `json:"canvas_used"`
}

type ChatRequest struct {
	StudentId      string `json:"student_id" validate:"required"`
	Message        string `json:"message" validate:"required"`
	ConversationId string `json:"conversation_id,omitempty" validate:"omitempty,uuid4"`
}

// ChatResponse mirrors the terminal done event for the synchronous endpoint.
type ChatResponse struct {
	Response       string    `json:"response"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	CanvasUsed     bool      `json:"canvas_used"`
	ConversationId uuid.UUID `json:"conversation_id"`
}

type ConversationSummary struct {
	ConversationId uuid.UUID `json:"conversation_id"`
	LastMessage    string    `json:"last_message"`
	Timestamp      time.Time `json:"timestamp"`
	MessageCount   int       `json:"message_count"`
}

type ConversationMessageResponse struct {
	Id        uuid.UUID        `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

type DeleteConversationResponse struct {
	Deleted int64 `json:"deleted"`
}
