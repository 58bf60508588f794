package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// FeedDocument stores a ProcessedFeed inside a JSON column.
type FeedDocument ProcessedFeed

// Value implements driver.Valuer so FeedDocument can be stored as JSON text.
func (d FeedDocument) Value() (driver.Value, error) {
	feed := ProcessedFeed(d)
	if feed.Addresses == nil {
		feed.Addresses = []Int{}
	}
	if feed.Networks == nil {
		feed.Networks = []Range{}
	}

	data, err := json.Marshal(feed)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner to hydrate the FeedDocument from the database.
func (d *FeedDocument) Scan(value any) error {
	if value == nil {
		*d = FeedDocument(EmptyFeed())
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return d.unmarshal(v)
	case string:
		return d.unmarshal([]byte(v))
	default:
		return fmt.Errorf("domain.FeedDocument: unsupported type %T", value)
	}
}

func (d *FeedDocument) unmarshal(data []byte) error {
	if len(data) == 0 {
		*d = FeedDocument(EmptyFeed())
		return nil
	}

	var parsed ProcessedFeed
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*d = FeedDocument(parsed)
	return nil
}
