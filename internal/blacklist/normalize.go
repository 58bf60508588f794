package blacklist

import (
	"slices"
	"time"

	"feedsnap/internal/domain"
	"feedsnap/internal/parser"
)

// NormalizeFeed parses every token, drops invalid ones, and returns the
// deduplicated, sorted addresses and networks together with the number of
// tokens that were dropped.
func NormalizeFeed(tokens []string) (domain.ProcessedFeed, int) {
	addresses := make(map[domain.Int]struct{})
	networks := make(map[domain.Range]struct{})
	invalid := 0

	for _, token := range tokens {
		if token == "" {
			continue
		}
		entity := parser.ParseEntity(token)
		switch entity.Kind {
		case domain.EntityAddress:
			addresses[entity.Value] = struct{}{}
		case domain.EntityRange:
			networks[domain.Range{Start: entity.Start, End: entity.End}] = struct{}{}
		default:
			invalid++
		}
	}

	feed := domain.ProcessedFeed{
		Addresses: make([]domain.Int, 0, len(addresses)),
		Networks:  make([]domain.Range, 0, len(networks)),
	}
	for a := range addresses {
		feed.Addresses = append(feed.Addresses, a)
	}
	for n := range networks {
		feed.Networks = append(feed.Networks, n)
	}

	slices.SortFunc(feed.Addresses, func(a, b domain.Int) int {
		return a.Cmp(b.Uint128)
	})
	slices.SortFunc(feed.Networks, func(a, b domain.Range) int {
		if c := a.Start.Cmp(b.Start.Uint128); c != 0 {
			return c
		}
		return a.End.Cmp(b.End.Uint128)
	})

	return feed, invalid
}

// Normalize processes every feed independently. The second result holds the
// number of dropped tokens per feed.
func Normalize(raw map[string]FeedTokens) (map[string]domain.ProcessedFeed, map[string]int) {
	feeds := make(map[string]domain.ProcessedFeed, len(raw))
	invalid := make(map[string]int, len(raw))
	for name, res := range raw {
		feeds[name], invalid[name] = NormalizeFeed(res.Tokens)
	}
	return feeds, invalid
}

// Aggregate wraps the processed feeds into a snapshot stamped with now.
func Aggregate(feeds map[string]domain.ProcessedFeed, now time.Time) *domain.Snapshot {
	if feeds == nil {
		feeds = make(map[string]domain.ProcessedFeed)
	}
	return &domain.Snapshot{
		Timestamp: now.Unix(),
		Feeds:     feeds,
	}
}
