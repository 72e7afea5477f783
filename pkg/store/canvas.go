package store

import (
	"time"

	"github.com/google/uuid"
)

// CanvasSnapshot is the in-memory record of a student's most recent canvas.
type CanvasSnapshot struct {
	RecordId    uuid.UUID `json:"record_id"` // durable canvas_sessions row
	SessionId   string    `json:"session_id"`
	StudentId   string    `json:"student_id"`
	ImagePath   string    `json:"image_path"`
	ImageUrl    string    `json:"image_url"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	StepCount   int       `json:"step_count"`
	StrokeCount int       `json:"stroke_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// CanvasAnalysis is a cached vision result. It is valid only while the
// snapshot it was computed from is still the student's latest image.
type CanvasAnalysis struct {
	Text       string    `json:"text"`
	ImagePath  string    `json:"image_path"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}
