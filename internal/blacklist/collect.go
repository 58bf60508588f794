package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"feedsnap/internal/domain"
	"feedsnap/internal/fetcher"
	"feedsnap/internal/parser"
)

const DefaultWorkers = 10

// Downloader retrieves the lines of one feed URL.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string) fetcher.Result
}

// Feed is a source descriptor with its compiled extraction pattern.
type Feed struct {
	Source  domain.Source
	Pattern parser.Pattern
}

// FeedTokens holds the raw tokens extracted from one feed, in line order.
type FeedTokens struct {
	Tokens   []string
	Attempts int
	Failed   bool
}

// CompileSources compiles the extraction pattern of every source.
func CompileSources(sources []domain.Source, matchTimeout time.Duration) ([]Feed, error) {
	feeds := make([]Feed, 0, len(sources))
	for _, src := range sources {
		pattern, err := parser.Compile(src.Regex, matchTimeout)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", src.Name, err)
		}
		feeds = append(feeds, Feed{Source: src, Pattern: pattern})
	}
	return feeds, nil
}

// Collect downloads every feed with at most workers downloads in flight and
// extracts its tokens. The result has one entry per feed name; feeds that
// could not be downloaded map to an empty token list.
func Collect(ctx context.Context, feeds []Feed, dl Downloader, workers int) map[string]FeedTokens {
	if ctx == nil {
		ctx = context.Background()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var (
		mu      sync.Mutex
		results = make(map[string]FeedTokens, len(feeds))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, feed := range feeds {
		g.Go(func() error {
			res := downloadFeed(gctx, feed, dl)

			mu.Lock()
			results[feed.Source.Name] = res
			mu.Unlock()

			log.Info("Downloaded feed",
				"name", feed.Source.Name,
				"entries", len(res.Tokens),
				"failed", res.Failed,
			)
			// Failures are recorded per feed and never cancel the other downloads.
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func downloadFeed(ctx context.Context, feed Feed, dl Downloader) FeedTokens {
	if err := ctx.Err(); err != nil {
		return FeedTokens{Tokens: []string{}, Failed: true}
	}

	res := dl.Fetch(ctx, feed.Source.URL)
	tokens := parser.ExtractAll(res.Lines, feed.Pattern)
	if tokens == nil {
		tokens = []string{}
	}
	return FeedTokens{Tokens: tokens, Attempts: res.Attempts, Failed: res.Failed}
}
