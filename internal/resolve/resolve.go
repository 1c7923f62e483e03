// Package resolve decides whether a breach article is news about an incident
// already on record.
package resolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/llm"
)

// Stage names the update-detection step in logs and failures.
const Stage = "update_detection"

const windowSummaryRunes = 200

// Resolver runs stage 3 of the pipeline.
type Resolver struct {
	client        *llm.Client
	prompt        string
	maxTokens     int
	minConfidence float64
	windowDays    int
}

// NewResolver creates a resolver from the update settings.
func NewResolver(client *llm.Client, cfg *config.Config) *Resolver {
	return &Resolver{
		client:        client,
		prompt:        cfg.Prompts.UpdateDetection,
		maxTokens:     cfg.LLM.UpdateMaxTokens,
		minConfidence: cfg.Validation.UpdateConfidence,
		windowDays:    cfg.Scraper.UpdateWindowDays,
	}
}

type response struct {
	IsUpdate        *bool    `json:"is_update"`
	RelatedBreachID *string  `json:"related_breach_id"`
	UpdateType      *string  `json:"update_type"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
}

// Resolve compares the article with the candidate window. With no
// candidates the article is a new incident and the backend is not asked.
// An update is only honoured above the minimum confidence; weaker claims are
// downgraded to a new incident.
func (r *Resolver) Resolve(ctx context.Context, article breach.Article, window []breach.Stored) (*breach.UpdateDecision, error) {
	if len(window) == 0 {
		return &breach.UpdateDecision{IsUpdate: false, Reasoning: "no existing breaches to compare against"}, nil
	}

	prompt := llm.RenderPrompt(r.prompt, map[string]string{
		"title":             article.Title,
		"url":               article.URL,
		"summary":           article.Summary,
		"existing_breaches": FormatWindow(window),
		"window_days":       strconv.Itoa(r.windowDays),
		"update_confidence": strconv.FormatFloat(r.minConfidence, 'f', -1, 64),
	})

	var decision *breach.UpdateDecision
	err := r.client.Do(ctx, llm.Request{Stage: Stage, Prompt: prompt, MaxTokens: r.maxTokens}, func(text string) error {
		var resp response
		if err := llm.ParseJSONResponse(text, &resp); err != nil {
			return err
		}
		d, err := resp.toDecision(window, r.minConfidence)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", article.Title, err)
	}

	return decision, nil
}

// toDecision validates a reply. Update claims at or below minConfidence are
// downgraded before their id is looked at, so only an update that will be
// honoured has to point into the window.
func (r response) toDecision(window []breach.Stored, minConfidence float64) (*breach.UpdateDecision, error) {
	if r.IsUpdate == nil {
		return nil, &breach.ValidationError{Field: "is_update", Reason: "missing"}
	}
	if r.Confidence == nil {
		return nil, &breach.ValidationError{Field: "confidence", Reason: "missing"}
	}
	d := &breach.UpdateDecision{IsUpdate: *r.IsUpdate, Confidence: *r.Confidence, Reasoning: r.Reasoning}
	if err := breach.ValidateConfidence("confidence", d.Confidence); err != nil {
		return nil, err
	}
	if d.IsUpdate && d.Confidence <= minConfidence {
		d.Reasoning = fmt.Sprintf("update confidence %.2f not above %.2f; treated as new incident: %s",
			d.Confidence, minConfidence, d.Reasoning)
		d.IsUpdate = false
	}
	if !d.IsUpdate {
		return d, nil
	}

	if raw := breach.OptionalText(r.RelatedBreachID); raw != nil {
		id, err := uuid.Parse(*raw)
		if err != nil {
			return nil, &breach.ValidationError{Field: "related_breach_id", Reason: fmt.Sprintf("%q is not a UUID", *raw)}
		}
		d.RelatedBreachID = &id
	}
	ut, err := breach.ParseUpdateType(r.UpdateType)
	if err != nil {
		return nil, err
	}
	if ut == nil {
		def := breach.UpdateNewInfo
		ut = &def
	}
	d.UpdateType = ut

	if err := d.Validate(window); err != nil {
		return nil, err
	}
	return d, nil
}

// FormatWindow renders the candidate breaches one per line for the prompt.
func FormatWindow(window []breach.Stored) string {
	lines := make([]string, 0, len(window))
	for _, s := range window {
		rec := s.Record
		severity := "unknown"
		if rec.Severity != nil {
			severity = string(*rec.Severity)
		}
		lines = append(lines, fmt.Sprintf("- ID: %s | Company: %s | Date: %s | Severity: %s | Updates: %d | Summary: %s",
			s.ID, breach.Deref(rec.Company, "unknown"), breach.FormatDate(rec.DiscoveryDate),
			severity, s.UpdateCount, shorten(rec.Summary, windowSummaryRunes)))
	}
	return strings.Join(lines, "\n")
}

func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
