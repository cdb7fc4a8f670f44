package entities

import "time"

// SchemaVersion is a single-row table recording the integer schema
// generation; migrations only ever add collections or columns.
type SchemaVersion struct {
	ID        int       `json:"id" gorm:"primary_key"`
	Version   int       `json:"version" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (SchemaVersion) TableName() string {
	return "schema_version"
}
