package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"consult-edge/constant"
	"consult-edge/entities"
)

type Repository interface {
	GetDB() *gorm.DB
	Migrate() error

	UpsertChunk(ctx context.Context, chunk *entities.AudioChunk) error
	GetChunksByRecordingId(ctx context.Context, recordingId string) ([]*entities.AudioChunk, error)
	DeleteChunksByRecordingId(ctx context.Context, recordingId string) error

	UpsertMetadata(ctx context.Context, meta *entities.RecordingMetadata) error
	GetMetadataById(ctx context.Context, recordingId string) (*entities.RecordingMetadata, error)
	DeleteMetadataById(ctx context.Context, recordingId string) error
	ListMetadata(ctx context.Context) ([]*entities.RecordingMetadata, error)
	ListMetadataByOwnerId(ctx context.Context, ownerId string) ([]*entities.RecordingMetadata, error)

	UpsertCacheEntry(ctx context.Context, entry *entities.CacheEntry) error
	GetCacheEntry(ctx context.Context, generation, method, url string) (*entities.CacheEntry, error)
	DeleteCacheGenerationsExcept(ctx context.Context, generation string) error
	ListCacheGenerations(ctx context.Context) ([]string, error)
}

type repo struct {
	db *gorm.DB
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

// Migrate brings the collections up to the current schema generation.
// AutoMigrate only adds tables and columns, so existing data survives.
func (r *repo) Migrate() error {
	err := r.db.AutoMigrate(
		&entities.AudioChunk{},
		&entities.RecordingMetadata{},
		&entities.CacheEntry{},
		&entities.SchemaVersion{},
	)
	if err != nil {
		return err
	}

	version := &entities.SchemaVersion{
		ID:        1,
		Version:   constant.SchemaVersion,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(version).Error
}

func (r *repo) UpsertChunk(ctx context.Context, chunk *entities.AudioChunk) error {
	return r.GetDB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "recording_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "mime_type", "payload", "captured_at"}),
	}).Create(chunk).Error
}

func (r *repo) GetChunksByRecordingId(ctx context.Context, recordingId string) ([]*entities.AudioChunk, error) {
	var chunks []*entities.AudioChunk
	err := r.GetDB().Where("recording_id = ?", recordingId).Order("chunk_index ASC").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) DeleteChunksByRecordingId(ctx context.Context, recordingId string) error {
	return r.GetDB().Where("recording_id = ?", recordingId).Delete(&entities.AudioChunk{}).Error
}

func (r *repo) UpsertMetadata(ctx context.Context, meta *entities.RecordingMetadata) error {
	return r.GetDB().Clauses(clause.OnConflict{UpdateAll: true}).Create(meta).Error
}

func (r *repo) GetMetadataById(ctx context.Context, recordingId string) (*entities.RecordingMetadata, error) {
	meta := &entities.RecordingMetadata{}
	err := r.GetDB().First(meta, "recording_id = ?", recordingId).Error
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *repo) DeleteMetadataById(ctx context.Context, recordingId string) error {
	return r.GetDB().Where("recording_id = ?", recordingId).Delete(&entities.RecordingMetadata{}).Error
}

func (r *repo) ListMetadata(ctx context.Context) ([]*entities.RecordingMetadata, error) {
	var metas []*entities.RecordingMetadata
	err := r.GetDB().Order("finalized_at DESC").Find(&metas).Error
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func (r *repo) ListMetadataByOwnerId(ctx context.Context, ownerId string) ([]*entities.RecordingMetadata, error) {
	var metas []*entities.RecordingMetadata
	err := r.GetDB().Where("owner_id = ?", ownerId).Order("finalized_at DESC").Find(&metas).Error
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func NewRepo(db *sql.DB) (Repository, error) {
	gormDB, err := gorm.Open(sqlite.Dialector{Conn: db},
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}
