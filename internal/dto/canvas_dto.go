package dto

import (
	"time"

	"github.com/google/uuid"
)

// IngestCanvasRequest is the parsed multipart payload from the drawing
// client: the full canvas image plus per-step crops and stroke metadata.
type IngestCanvasRequest struct {
	SessionId   string
	StudentId   string
	ImageWidth  int
	ImageHeight int
	Image       []byte
	StepImages  map[string][]byte // step id -> cropped PNG
	StepsJSON   string
	StrokesJSON string
}

// IngestCanvasResponse acknowledges a canvas upload from the drawing client.
type IngestCanvasResponse struct {
	SessionId   string `json:"session_id"`
	StudentId   string `json:"student_id"`
	ImageUrl    string `json:"image_url"`
	StepCount   int    `json:"step_count"`
	StrokeCount int    `json:"stroke_count"`
}

type CanvasSessionResponse struct {
	Id         uuid.UUID  `json:"id"`
	StudentId  string     `json:"student_id"`
	ImageUrl   string     `json:"image_url"`
	StepNumber int        `json:"step_number"`
	Analysis   string     `json:"analysis,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
