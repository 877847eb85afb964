package sources

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/poiesic/hegemon/core"
)

// maxPerFeed caps items taken from a single feed per fetch.
const maxPerFeed = 50

// CompanyFeed binds a company code to an RSS/Atom feed covering it.
type CompanyFeed struct {
	CompanyCode string
	URL         string
}

// FeedConnector fetches news articles from per-company RSS/Atom feeds.
type FeedConnector struct {
	feeds  []CompanyFeed
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ Connector = (*FeedConnector)(nil)

// NewFeedConnector creates a news connector over the given feeds.
func NewFeedConnector(feeds []CompanyFeed) *FeedConnector {
	return &FeedConnector{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		logger: slog.Default().With("component", "feed-connector"),
	}
}

// ID returns the stable source identifier.
func (c *FeedConnector) ID() string {
	return "rss:news"
}

// Type returns core.DocTypeNews.
func (c *FeedConnector) Type() core.DocType {
	return core.DocTypeNews
}

// FetchSince parses every configured feed and returns entries newer
// than the cursor, ascending by published time. A feed that fails to
// parse fails the whole fetch so the scheduler can retry it.
func (c *FeedConnector) FetchSince(ctx context.Context, cursor string) ([]Item, string, error) {
	since := parseCursor(cursor)

	var items []Item
	for _, fc := range c.feeds {
		feed, err := c.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			return nil, cursor, fmt.Errorf("%w: feed %s: %v", ErrSourceFetch, fc.URL, err)
		}

		taken := 0
		for _, entry := range feed.Items {
			if taken >= maxPerFeed {
				break
			}
			item, ok := parseEntry(entry, fc.CompanyCode)
			if !ok {
				continue
			}
			if !item.Timestamp.After(since) {
				continue
			}
			items = append(items, item)
			taken++
		}
	}

	slices.SortFunc(items, func(a, b Item) int {
		if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ProviderRef, b.ProviderRef)
	})

	c.logger.Debug("fetched feed entries", "count", len(items), "feeds", len(c.feeds))
	return items, cursorAfter(items, cursor), nil
}

func parseEntry(entry *gofeed.Item, companyCode string) (Item, bool) {
	ref := entry.Link
	if ref == "" {
		ref = entry.GUID
	}
	if ref == "" {
		return Item{}, false
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return Item{}, false
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}
	if published.IsZero() {
		return Item{}, false
	}

	var body string
	if entry.Content != "" {
		body = stripHTML(entry.Content)
	} else if entry.Description != "" {
		body = stripHTML(entry.Description)
	}

	content := title
	if body != "" {
		content = title + "\n" + body
	}

	return Item{
		ProviderRef: ref,
		CompanyCode: companyCode,
		Timestamp:   published,
		Content:     content,
	}, true
}

// stripHTML removes tags and decodes common entities.
func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	// Normalize whitespace
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
