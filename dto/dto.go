package dto

import (
	"time"

	"consult-edge/constant"
)

// ControlMessage is the page-to-agent control channel payload, carried
// either over AMQP or the HTTP control endpoints.
type ControlMessage struct {
	Type constant.ControlType `json:"type"`
	Urls []string             `json:"urls,omitempty"`
}

// ConsultationCreatedMessage is published after a recording has been
// delivered, so consultation list views know to refresh.
type ConsultationCreatedMessage struct {
	RecordingId    string    `json:"recordingId"`
	OwnerId        string    `json:"ownerId"`
	ConsultationId string    `json:"consultationId,omitempty"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

type FinalizeRecordingRequest struct {
	OwnerId          string  `json:"ownerId" binding:"required"`
	OwnerDisplayName *string `json:"ownerDisplayName"`
	DurationSeconds  int     `json:"durationSeconds"`
	ByteSize         int64   `json:"byteSize"`
	MimeType         string  `json:"mimeType" binding:"required"`
}
