package entities

import (
	"time"

	"github.com/google/uuid"
)

type AudioChunk struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	RecordingId string    `json:"recording_id" gorm:"type:varchar(64);not null;index:idx_audio_chunks_recording;uniqueIndex:unique_recording_chunk_index"`
	ChunkIndex  int       `json:"chunk_index" gorm:"not null;uniqueIndex:unique_recording_chunk_index"`
	OwnerId     string    `json:"owner_id" gorm:"type:varchar(64);not null"`
	MimeType    string    `json:"mime_type" gorm:"type:varchar(100);not null"`
	Payload     []byte    `json:"-" gorm:"type:blob;not null"`
	CapturedAt  time.Time `json:"captured_at" gorm:"not null"`
}

func (AudioChunk) TableName() string {
	return "audio_chunks"
}
