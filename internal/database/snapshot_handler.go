package database

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	"feedsnap/internal/domain"
)

const snapshotInsertBatchSize = 500

// SaveSnapshot stores snap and one entry per feed in a single transaction and
// returns the id of the new snapshot row.
func SaveSnapshot(ctx context.Context, snap *domain.Snapshot) (uint64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}
	if snap == nil {
		return 0, errors.New("snapshot is nil")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	names := make([]string, 0, len(snap.Feeds))
	for name := range snap.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	record := domain.FeedSnapshot{
		Timestamp: snap.Timestamp,
		FeedCount: len(snap.Feeds),
	}
	record.AddressCount, record.NetworkCount = snap.Counts()

	entries := make([]domain.FeedSnapshotEntry, 0, len(names))
	for _, name := range names {
		feed := snap.Feeds[name]
		entries = append(entries, domain.FeedSnapshotEntry{
			Name:         name,
			AddressCount: len(feed.Addresses),
			NetworkCount: len(feed.Networks),
			Document:     domain.FeedDocument(feed),
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		for i := range entries {
			entries[i].SnapshotID = record.ID
		}
		return tx.CreateInBatches(&entries, snapshotInsertBatchSize).Error
	})
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}
