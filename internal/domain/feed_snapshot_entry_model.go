package domain

// FeedSnapshotEntry stores the normalized content of one feed within a run.
type FeedSnapshotEntry struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SnapshotID uint64 `gorm:"not null;uniqueIndex:idx_feed_snapshot_entry_name,priority:1"`

	Name string `gorm:"size:512;not null;uniqueIndex:idx_feed_snapshot_entry_name,priority:2"`

	AddressCount int `gorm:"not null;default:0"`
	NetworkCount int `gorm:"not null;default:0"`

	// Document holds the feed exactly as it appears under "feeds" in the JSON output.
	Document FeedDocument `gorm:"type:text;not null"`
}
