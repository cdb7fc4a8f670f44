package entities

import (
	"time"
)

type RecordingMetadata struct {
	RecordingId      string    `json:"recording_id" gorm:"type:varchar(64);primary_key"`
	OwnerId          string    `json:"owner_id" gorm:"type:varchar(64);not null;index:idx_recording_metadata_owner"`
	OwnerDisplayName *string   `json:"owner_display_name" gorm:"type:varchar(255)"`
	FinalizedAt      time.Time `json:"finalized_at" gorm:"not null;index:idx_recording_metadata_finalized"`
	DurationSeconds  int       `json:"duration_seconds" gorm:"not null"`
	ByteSize         int64     `json:"byte_size" gorm:"type:bigint;not null"`
	MimeType         string    `json:"mime_type" gorm:"type:varchar(100);not null"`
}

func (RecordingMetadata) TableName() string {
	return "recording_metadata"
}
