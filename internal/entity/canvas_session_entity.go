package entity

import (
	"time"

	"github.com/google/uuid"
)

// CanvasSession is the durable record behind the in-memory canvas cache. One
// row per ingested canvas image; the newest row per student wins.
type CanvasSession struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentId  string    `gorm:"index"`
	ImagePath  string
	StepNumber int
	Analysis   string
	AnalyzedAt *time.Time
	CreatedAt  time.Time
}
