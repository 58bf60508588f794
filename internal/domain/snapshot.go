package domain

// Source describes one threat feed. Regex is applied to every line of the
// downloaded body to extract candidate tokens.
type Source struct {
	Name  string `json:"name" toml:"name" validate:"required"`
	URL   string `json:"url" toml:"url" validate:"required,http_url"`
	Regex string `json:"regex" toml:"regex" validate:"required"`
}

// ProcessedFeed is the normalized content of a single feed. Addresses are
// strictly ascending, Networks ascending by (Start, End), neither holds
// duplicates.
type ProcessedFeed struct {
	Addresses []Int   `json:"addresses"`
	Networks  []Range `json:"networks"`
}

func EmptyFeed() ProcessedFeed {
	return ProcessedFeed{Addresses: []Int{}, Networks: []Range{}}
}

// Snapshot is the consolidated result of one run.
type Snapshot struct {
	Timestamp int64                    `json:"timestamp"`
	Feeds     map[string]ProcessedFeed `json:"feeds"`
}

// Counts returns the total number of addresses and networks across all feeds.
func (s *Snapshot) Counts() (addresses, networks int) {
	if s == nil {
		return 0, 0
	}
	for _, feed := range s.Feeds {
		addresses += len(feed.Addresses)
		networks += len(feed.Networks)
	}
	return addresses, networks
}
