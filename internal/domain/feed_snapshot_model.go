package domain

import "time"

// FeedSnapshot stores one completed run. Rows are written only; nothing reads
// them back into the pipeline.
type FeedSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// Timestamp is the capture time in Unix seconds, as emitted in the JSON document.
	Timestamp int64 `gorm:"not null;index"`

	FeedCount    int `gorm:"not null;default:0"`
	AddressCount int `gorm:"not null;default:0"`
	NetworkCount int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`

	Entries []FeedSnapshotEntry `gorm:"foreignKey:SnapshotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
