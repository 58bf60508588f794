package sink

import (
	"context"

	"github.com/charmbracelet/log"

	"feedsnap/internal/database"
	"feedsnap/internal/domain"
)

// Database records every snapshot in the feed_snapshots tables.
type Database struct{}

func NewDatabase() *Database {
	return &Database{}
}

func (d *Database) Name() string { return "database" }

func (d *Database) Write(ctx context.Context, snap *domain.Snapshot) error {
	id, err := database.SaveSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	log.Debug("Snapshot stored in database", "id", id, "feeds", len(snap.Feeds))
	return nil
}
