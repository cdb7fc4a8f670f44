package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"consult-edge/entities"
	"consult-edge/repository"
)

// RecordingStore persists in-progress audio chunks and finalized recording
// metadata. Chunk writes are best-effort and report success as a bool the
// caller may ignore: losing one write must never interrupt an active
// capture. FinalizeRecording is the durability checkpoint and returns a
// real error, because a recording that was captured but never marked
// complete is undiscoverable by the upload agent.
type RecordingStore interface {
	NewRecordingId() string
	AppendChunk(ctx context.Context, recordingId string, chunkIndex int, payload []byte, mimeType, ownerId string) bool
	ListChunks(ctx context.Context, recordingId string) []*entities.AudioChunk
	AssembleRecording(ctx context.Context, recordingId string) (*AssembledRecording, bool)
	PurgeChunks(ctx context.Context, recordingId string) bool
	FinalizeRecording(ctx context.Context, meta *entities.RecordingMetadata) error
	GetMetadata(ctx context.Context, recordingId string) (*entities.RecordingMetadata, bool)
	DeleteMetadata(ctx context.Context, recordingId string) bool
	ListAllMetadata(ctx context.Context) []*entities.RecordingMetadata
}

// AssembledRecording is one recording's chunk payloads concatenated in
// chunk-index order.
type AssembledRecording struct {
	Data     []byte
	MimeType string
	OwnerId  string
}

type recordingStore struct {
	repo repository.Repository
}

// NewRecordingId only has to be unique within one device. A millisecond
// prefix keeps ids roughly sortable by capture time.
func (s *recordingStore) NewRecordingId() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("rec-%d-%s", time.Now().UnixMilli(), suffix)
}

func (s *recordingStore) AppendChunk(ctx context.Context, recordingId string, chunkIndex int, payload []byte, mimeType, ownerId string) bool {
	chunk := &entities.AudioChunk{
		ID:          uuid.New(),
		RecordingId: recordingId,
		ChunkIndex:  chunkIndex,
		OwnerId:     ownerId,
		MimeType:    mimeType,
		Payload:     payload,
		CapturedAt:  time.Now().UTC(),
	}
	if err := s.repo.UpsertChunk(ctx, chunk); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("recording_id", recordingId).
			Int("chunk_index", chunkIndex).
			Msg("failed to persist audio chunk")
		return false
	}
	return true
}

func (s *recordingStore) ListChunks(ctx context.Context, recordingId string) []*entities.AudioChunk {
	chunks, err := s.repo.GetChunksByRecordingId(ctx, recordingId)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("recording_id", recordingId).Msg("failed to list chunks")
		return nil
	}
	return chunks
}

func (s *recordingStore) AssembleRecording(ctx context.Context, recordingId string) (*AssembledRecording, bool) {
	chunks := s.ListChunks(ctx, recordingId)
	if len(chunks) == 0 {
		return nil, false
	}

	var buf bytes.Buffer
	for _, chunk := range chunks {
		buf.Write(chunk.Payload)
	}

	return &AssembledRecording{
		Data:     buf.Bytes(),
		MimeType: chunks[0].MimeType,
		OwnerId:  chunks[0].OwnerId,
	}, true
}

func (s *recordingStore) PurgeChunks(ctx context.Context, recordingId string) bool {
	if err := s.repo.DeleteChunksByRecordingId(ctx, recordingId); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("recording_id", recordingId).Msg("failed to purge chunks")
		return false
	}
	return true
}

func (s *recordingStore) FinalizeRecording(ctx context.Context, meta *entities.RecordingMetadata) error {
	if meta.RecordingId == "" {
		return errors.New("finalize: empty recording id")
	}
	if meta.FinalizedAt.IsZero() {
		meta.FinalizedAt = time.Now().UTC()
	}
	if err := s.repo.UpsertMetadata(ctx, meta); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("recording_id", meta.RecordingId).Msg("failed to finalize recording")
		return err
	}
	return nil
}

func (s *recordingStore) GetMetadata(ctx context.Context, recordingId string) (*entities.RecordingMetadata, bool) {
	meta, err := s.repo.GetMetadataById(ctx, recordingId)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("recording_id", recordingId).Msg("failed to read recording metadata")
		}
		return nil, false
	}
	return meta, true
}

func (s *recordingStore) DeleteMetadata(ctx context.Context, recordingId string) bool {
	if err := s.repo.DeleteMetadataById(ctx, recordingId); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("recording_id", recordingId).Msg("failed to delete recording metadata")
		return false
	}
	return true
}

func (s *recordingStore) ListAllMetadata(ctx context.Context) []*entities.RecordingMetadata {
	metas, err := s.repo.ListMetadata(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to list recording metadata")
		return nil
	}
	return metas
}

func NewRecordingStore(repo repository.Repository) RecordingStore {
	return &recordingStore{
		repo: repo,
	}
}
