package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationMessage struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID `gorm:"type:uuid;index"`
	StudentId      string    `gorm:"index"`
	Role           string
	Content        string
	Metadata       datatypes.JSON
	CreatedAt      time.Time
}
