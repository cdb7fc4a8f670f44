package entities

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry holds one cached HTTP response inside a named generation.
// Only GET responses are ever stored; the header map is serialized JSON.
type CacheEntry struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Generation string    `json:"generation" gorm:"type:varchar(64);not null;index:idx_cache_entries_generation;uniqueIndex:unique_cache_key"`
	Method     string    `json:"method" gorm:"type:varchar(10);not null;uniqueIndex:unique_cache_key"`
	URL        string    `json:"url" gorm:"type:varchar(2048);not null;uniqueIndex:unique_cache_key"`
	Status     int       `json:"status" gorm:"not null"`
	Header     []byte    `json:"-" gorm:"type:blob"`
	Body       []byte    `json:"-" gorm:"type:blob"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}
