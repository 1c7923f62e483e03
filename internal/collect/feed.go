package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
)

const userAgent = "breachwatch/1.0 (+https://github.com/breachwatch/scraper)"

// fetchFeed parses one feed and returns the entries published after cutoff.
func fetchFeed(ctx context.Context, client *http.Client, src config.FeedSource, cutoff time.Time, maxItems int) ([]breach.Article, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", src.ID, err)
	}

	name := src.Name
	if name == "" {
		name = extractSourceName(src.URL)
	}

	var entries []breach.Article
	for _, item := range feed.Items {
		if maxItems > 0 && len(entries) >= maxItems {
			break
		}
		a := parseItem(item, src.ID, name)
		if a == nil {
			continue
		}
		if isWithinWindow(a.Published, cutoff) {
			entries = append(entries, *a)
		}
	}
	return entries, nil
}

func parseItem(item *gofeed.Item, sourceID, sourceName string) *breach.Article {
	itemURL := strings.TrimSpace(item.Link)
	if itemURL == "" {
		itemURL = strings.TrimSpace(item.GUID)
	}
	if itemURL == "" {
		return nil
	}

	title := collapse(item.Title)
	if title == "" {
		return nil
	}

	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = itemURL
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed
	}

	var summary string
	if item.Description != "" {
		summary = htmlToText(item.Description)
	} else if item.Content != "" {
		summary = htmlToText(item.Content)
	}

	return &breach.Article{
		ID:         id,
		URL:        itemURL,
		Title:      title,
		Summary:    truncateRunes(summary, maxSummaryRunes),
		Source:     sourceID,
		SourceName: sourceName,
		Published:  published,
	}
}

// isWithinWindow keeps undated entries; feeds that omit dates get the
// benefit of the doubt.
func isWithinWindow(published *time.Time, cutoff time.Time) bool {
	if published == nil {
		return true
	}
	return !published.Before(cutoff)
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
