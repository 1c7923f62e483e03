// Package pipeline runs collected articles through classification,
// extraction and update resolution, and persists the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/classify"
	"github.com/breachwatch/scraper/internal/collect"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/database"
	"github.com/breachwatch/scraper/internal/extract"
	"github.com/breachwatch/scraper/internal/llm"
	"github.com/breachwatch/scraper/internal/logger"
	"github.com/breachwatch/scraper/internal/resolve"
)

// StagePersist names failures writing to the store.
const StagePersist = "persist"

// Options tune a single run.
type Options struct {
	Workers       int
	LookbackHours int
	DryRun        bool
	Timeout       time.Duration
}

// Failure records an article whose pipeline did not finish. It is not
// marked processed and will be retried next run.
type Failure struct {
	ArticleID string
	Title     string
	Stage     string
	Err       error
}

// Result holds the results of a pipeline run.
type Result struct {
	Collected        int
	AlreadyProcessed int
	Pending          int
	NotBreach        int
	BelowThreshold   int
	Created          int
	Updated          int
	Merged           int
	FeedsFailed      int
	Failures         []Failure
	DryRun           bool
}

// Completed counts articles that reached a terminal outcome.
func (r *Result) Completed() int {
	return r.NotBreach + r.BelowThreshold + r.Created + r.Updated + r.Merged
}

func (r *Result) record(o database.Outcome) {
	switch o {
	case database.OutcomeNotBreach:
		r.NotBreach++
	case database.OutcomeBelowThreshold:
		r.BelowThreshold++
	case database.OutcomeCreated:
		r.Created++
	case database.OutcomeUpdated:
		r.Updated++
	case database.OutcomeMerged:
		r.Merged++
	}
}

// Pipeline orchestrates the three-stage breach pipeline.
type Pipeline struct {
	cfg        *config.Config
	db         *database.DB
	client     *llm.Client
	classifier *classify.Classifier
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	now        func() time.Time
}

// New creates a pipeline. All stages share one client, so the rate limit
// applies across every worker.
func New(cfg *config.Config, db *database.DB, provider llm.Provider) *Pipeline {
	client := llm.NewClient(provider, llm.ClientConfig{
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxRetries:        cfg.Scraper.MaxRetries,
		RetryDelay:        cfg.Scraper.RetryDelay,
		RequestTimeout:    cfg.Scraper.RequestTimeout,
	})
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		client:     client,
		classifier: classify.NewClassifier(client, cfg),
		extractor:  extract.NewExtractor(client, cfg),
		resolver:   resolve.NewResolver(client, cfg),
		now:        time.Now,
	}
}

// Run collects fresh feed entries and processes them.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logger.Log.Info("Step 1/2: Collecting articles...")
	collected := collect.NewCollector(p.cfg, opts.LookbackHours).Collect(ctx)

	logger.Log.Info("Step 2/2: Processing articles...")
	r, err := p.Process(ctx, collected.Articles, opts)
	if r != nil {
		r.FeedsFailed = len(collected.Failed)
	}
	return r, err
}

// Process runs each unprocessed article through the stages on a bounded
// worker pool. A failing article is recorded in Result.Failures and never
// stops the batch.
func (p *Pipeline) Process(ctx context.Context, articles []breach.Article, opts Options) (*Result, error) {
	r := &Result{Collected: len(articles), DryRun: opts.DryRun}

	pending, err := p.filterUnprocessed(articles)
	if err != nil {
		return nil, err
	}
	r.Pending = len(pending)
	r.AlreadyProcessed = len(articles) - len(pending)

	if opts.DryRun || len(pending) == 0 {
		logger.Log.Infof("%d articles pending, %d already processed", r.Pending, r.AlreadyProcessed)
		return r, nil
	}
	if !p.client.Configured() {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, llm.ErrNotConfigured)
	}

	today := dateOf(p.now())
	since := today.AddDate(0, 0, -p.cfg.Scraper.UpdateWindowDays)
	window, err := p.db.RecentBreaches(since, p.cfg.Scraper.UpdateWindowLimit)
	if err != nil {
		return nil, fmt.Errorf("loading candidate window: %w", err)
	}
	logger.Log.Infof("Processing %d articles against %d known breaches", len(pending), len(window))

	workers := opts.Workers
	if workers <= 0 {
		workers = p.cfg.Scraper.Workers
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(workers, 1))
	for _, a := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, stage, err := p.processArticle(ctx, a, window, today)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.Failures = append(r.Failures, Failure{ArticleID: a.ID, Title: a.Title, Stage: stage, Err: err})
				return nil
			}
			r.record(outcome)
			return nil
		})
	}
	_ = g.Wait()

	logger.Log.Infof("Processing complete: %d created, %d updated, %d merged, %d not breaches, %d below threshold, %d failed",
		r.Created, r.Updated, r.Merged, r.NotBreach, r.BelowThreshold, len(r.Failures))

	if err := ctx.Err(); err != nil {
		return r, fmt.Errorf("run interrupted: %w", err)
	}
	return r, nil
}

func (p *Pipeline) processArticle(ctx context.Context, a breach.Article, window []breach.Stored, today time.Time) (database.Outcome, string, error) {
	log := logger.Log.WithFields(logrus.Fields{"article": a.ID, "source": a.Source})

	if p.cfg.Classification.Enabled {
		c, err := p.classifier.Classify(ctx, a.Title, a.Summary)
		if err != nil {
			log.Warnf("Classification failed: %v", err)
			return "", classify.Stage, err
		}
		if !c.IsBreach {
			log.Debugf("Not a breach (%.2f): %s", c.Confidence, a.Title)
			return p.finish(a, database.OutcomeNotBreach)
		}
		if !classify.Passes(c, p.classifier.Threshold()) {
			log.Debugf("Below threshold (%.2f): %s", c.Confidence, a.Title)
			return p.finish(a, database.OutcomeBelowThreshold)
		}
	}

	rec, err := p.extractor.Extract(ctx, a, today)
	if err != nil {
		log.Warnf("Extraction failed: %v", err)
		return "", extract.Stage, err
	}

	d, err := p.resolver.Resolve(ctx, a, window)
	if err != nil {
		log.Warnf("Update detection failed: %v", err)
		return "", resolve.Stage, err
	}

	if d.IsUpdate {
		_, err := p.db.AddUpdate(breach.Update{
			BreachID:    *d.RelatedBreachID,
			UpdateType:  *d.UpdateType,
			SourceURL:   a.URL,
			SourceTitle: a.Title,
			Description: rec.Summary,
			Confidence:  d.Confidence,
		})
		if err != nil {
			return "", StagePersist, err
		}
		log.Infof("Update (%s) to breach %s: %s", *d.UpdateType, d.RelatedBreachID, a.Title)
		return p.finish(a, database.OutcomeUpdated)
	}

	saved, err := p.db.SaveBreach(rec, a)
	if err != nil {
		return "", StagePersist, err
	}
	if !saved.Created {
		log.Infof("Merged into breach %s: %s", saved.ID, a.Title)
		return p.finish(a, database.OutcomeMerged)
	}
	log.Infof("New breach %s (%s): %s", saved.ID, breach.Deref(rec.Company, "unknown company"), a.Title)
	return p.finish(a, database.OutcomeCreated)
}

func (p *Pipeline) finish(a breach.Article, o database.Outcome) (database.Outcome, string, error) {
	if err := p.db.MarkProcessed(a.ID, a.Source, o); err != nil {
		return "", StagePersist, err
	}
	return o, "", nil
}

func (p *Pipeline) filterUnprocessed(articles []breach.Article) ([]breach.Article, error) {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	left, err := p.db.FilterUnprocessed(ids)
	if err != nil {
		return nil, fmt.Errorf("checking ledger: %w", err)
	}
	keep := make(map[string]struct{}, len(left))
	for _, id := range left {
		keep[id] = struct{}{}
	}
	var out []breach.Article
	for _, a := range articles {
		if _, ok := keep[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// IsConfigError reports whether err should stop the process at startup.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrConfiguration)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
