package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"consult-edge/dto"
	"consult-edge/entities"
	"consult-edge/pkg/consultapi"
)

// Notifier announces delivered recordings to downstream consumers so
// consultation list views know to refresh.
type Notifier interface {
	ConsultationCreated(ctx context.Context, msg dto.ConsultationCreatedMessage) error
}

// Archiver keeps a copy of recordings that are abandoned after a permanent
// upload rejection; without it the abandon path loses the audio entirely.
type Archiver interface {
	Archive(ctx context.Context, meta *entities.RecordingMetadata, data []byte, mimeType string) error
}

// UploadAgent drains the recording store in the background: every finalized
// recording is reassembled and delivered to the consultation API, then
// purged locally. Transient failures are retried on a later sweep,
// permanent rejections are abandoned.
type UploadAgent interface {
	Run(ctx context.Context)
	Sweep(ctx context.Context) bool
}

type uploadAgent struct {
	store    RecordingStore
	client   consultapi.Client
	notifier Notifier
	archiver Archiver
	interval time.Duration
	sweeping atomic.Bool
}

// Run performs one sweep immediately, then sweeps on a fixed interval
// until the context is cancelled.
func (a *uploadAgent) Run(ctx context.Context) {
	a.Sweep(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep processes every finalized recording once, sequentially. A tick
// that fires while a sweep is still running is a no-op, not a queued
// retry; Sweep reports whether it actually ran.
func (a *uploadAgent) Sweep(ctx context.Context) bool {
	if !a.sweeping.CompareAndSwap(false, true) {
		zerolog.Ctx(ctx).Debug().Msg("upload sweep already in flight, skipping")
		return false
	}
	defer a.sweeping.Store(false)

	metas := a.store.ListAllMetadata(ctx)
	for _, meta := range metas {
		a.process(ctx, meta)
	}
	return true
}

func (a *uploadAgent) process(ctx context.Context, meta *entities.RecordingMetadata) {
	logger := zerolog.Ctx(ctx).With().
		Str("recording_id", meta.RecordingId).
		Str("owner_id", meta.OwnerId).
		Logger()

	assembled, ok := a.store.AssembleRecording(ctx, meta.RecordingId)
	if !ok {
		// Metadata without chunks is a transient state while capture and
		// finalize race; leave it for a later sweep.
		logger.Warn().Msg("finalized recording has no chunk data yet, skipping")
		return
	}

	consultation, err := a.client.UploadConsultation(ctx, meta.OwnerId, assembled.Data, meta.MimeType, meta.DurationSeconds)
	if err != nil {
		if consultapi.IsPermanent(err) {
			logger.Error().Err(err).Msg("upload rejected permanently, abandoning recording")
			a.archive(ctx, meta, assembled)
			a.purge(ctx, meta.RecordingId)
			return
		}
		if consultapi.IsUnauthorized(err) {
			logger.Warn().Err(err).Msg("upload unauthorized, keeping recording until credentials recover")
			return
		}
		logger.Warn().Err(err).Msg("upload failed, will retry on a later sweep")
		return
	}

	a.purge(ctx, meta.RecordingId)

	if a.notifier != nil {
		msg := dto.ConsultationCreatedMessage{
			RecordingId: meta.RecordingId,
			OwnerId:     meta.OwnerId,
			DeliveredAt: time.Now().UTC(),
		}
		if consultation != nil {
			msg.ConsultationId = consultation.Id
		}
		if err := a.notifier.ConsultationCreated(ctx, msg); err != nil {
			logger.Warn().Err(err).Msg("failed to publish consultation created event")
		}
	}

	logger.Info().Msg("recording delivered")
}

func (a *uploadAgent) archive(ctx context.Context, meta *entities.RecordingMetadata, assembled *AssembledRecording) {
	if a.archiver == nil {
		return
	}
	if err := a.archiver.Archive(ctx, meta, assembled.Data, assembled.MimeType); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("recording_id", meta.RecordingId).
			Msg("failed to archive abandoned recording")
	}
}

func (a *uploadAgent) purge(ctx context.Context, recordingId string) {
	a.store.PurgeChunks(ctx, recordingId)
	a.store.DeleteMetadata(ctx, recordingId)
}

func NewUploadAgent(store RecordingStore, client consultapi.Client, notifier Notifier, archiver Archiver, interval time.Duration) UploadAgent {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &uploadAgent{
		store:    store,
		client:   client,
		notifier: notifier,
		archiver: archiver,
		interval: interval,
	}
}
