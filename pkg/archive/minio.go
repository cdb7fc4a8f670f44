package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"consult-edge/entities"
)

// MinioArchiver stores abandoned recordings in an object bucket so a
// permanent upload rejection does not destroy the only copy of the audio.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

func (a *MinioArchiver) Archive(ctx context.Context, meta *entities.RecordingMetadata, data []byte, mimeType string) error {
	objectName := fmt.Sprintf("abandoned/%s/%s%s", meta.OwnerId, meta.RecordingId, extension(mimeType))

	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("recording_id", meta.RecordingId).
		Str("object_name", objectName).
		Int("size_bytes", len(data)).
		Msg("abandoned recording archived")
	return nil
}

func extension(mimeType string) string {
	base := strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if idx := strings.Index(base, "/"); idx >= 0 && idx < len(base)-1 {
		return "." + base[idx+1:]
	}
	return ".bin"
}

func NewMinioArchiver(client *minio.Client, bucket string) *MinioArchiver {
	return &MinioArchiver{
		client: client,
		bucket: bucket,
	}
}
