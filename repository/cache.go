package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"consult-edge/entities"
)

func (r *repo) UpsertCacheEntry(ctx context.Context, entry *entities.CacheEntry) error {
	return r.GetDB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generation"}, {Name: "method"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "header", "body", "created_at"}),
	}).Create(entry).Error
}

func (r *repo) GetCacheEntry(ctx context.Context, generation, method, url string) (*entities.CacheEntry, error) {
	entry := &entities.CacheEntry{}
	err := r.GetDB().First(entry, "generation = ? AND method = ? AND url = ?", generation, method, url).Error
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repo) DeleteCacheGenerationsExcept(ctx context.Context, generation string) error {
	return r.GetDB().Where("generation <> ?", generation).Delete(&entities.CacheEntry{}).Error
}

func (r *repo) ListCacheGenerations(ctx context.Context) ([]string, error) {
	var generations []string
	err := r.GetDB().Model(&entities.CacheEntry{}).Distinct("generation").Pluck("generation", &generations).Error
	if err != nil {
		return nil, err
	}
	return generations, nil
}
