// Package collect pulls fresh entries from the configured breach-news feeds.
package collect

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/logger"
)

// Result holds the results of a collection run.
type Result struct {
	Articles   []breach.Article
	TotalFound int
	Duplicates int
	Sources    map[string]int
	Failed     map[string]error
}

// Collector fetches every enabled feed in parallel.
type Collector struct {
	sources    []config.FeedSource
	client     *http.Client
	lookback   time.Duration
	maxPerFeed int
	workers    int
	now        func() time.Time
}

// NewCollector creates a collector from the scraper settings. lookbackHours
// overrides the configured window when positive.
func NewCollector(cfg *config.Config, lookbackHours int) *Collector {
	if lookbackHours <= 0 {
		lookbackHours = cfg.Scraper.LookbackHours
	}
	return &Collector{
		sources:    cfg.FeedSources(),
		client:     &http.Client{Timeout: cfg.Scraper.RequestTimeout},
		lookback:   time.Duration(lookbackHours) * time.Hour,
		maxPerFeed: cfg.Scraper.MaxPerFeed,
		workers:    cfg.Scraper.Workers,
		now:        time.Now,
	}
}

// Collect fetches all feeds. A failing feed is logged and recorded in
// Result.Failed; it never aborts the others. Entries seen under the same id
// in more than one feed are kept once.
func (c *Collector) Collect(ctx context.Context) *Result {
	cutoff := c.now().Add(-c.lookback)
	perFeed := make([][]breach.Article, len(c.sources))
	errs := make([]error, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	if c.workers > 0 {
		g.SetLimit(c.workers)
	}
	for i, src := range c.sources {
		g.Go(func() error {
			perFeed[i], errs[i] = fetchFeed(gctx, c.client, src, cutoff, c.maxPerFeed)
			return nil
		})
	}
	_ = g.Wait()

	r := &Result{Sources: make(map[string]int), Failed: make(map[string]error)}
	seen := make(map[string]struct{})
	for i, src := range c.sources {
		if errs[i] != nil {
			logger.Log.WithField("source", src.ID).Warnf("Failed to parse feed: %v", errs[i])
			r.Failed[src.ID] = errs[i]
			continue
		}
		r.TotalFound += len(perFeed[i])
		for _, a := range perFeed[i] {
			if _, dup := seen[a.ID]; dup {
				r.Duplicates++
				continue
			}
			seen[a.ID] = struct{}{}
			r.Articles = append(r.Articles, a)
			r.Sources[src.ID]++
		}
		logger.Log.WithField("source", src.ID).Debugf("Parsed %d entries within %s", len(perFeed[i]), c.lookback)
	}

	logger.Log.Infof("Collection complete: %d found, %d unique, %d duplicates, %d feeds failed",
		r.TotalFound, len(r.Articles), r.Duplicates, len(r.Failed))
	return r
}
