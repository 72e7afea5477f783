package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type CourseChunk struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	DocumentId uuid.UUID `gorm:"type:uuid;index"`
	Title      string
	Content    string
	ChunkIndex int
	Embedding  pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt  time.Time
}
