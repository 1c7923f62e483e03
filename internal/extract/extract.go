// Package extract turns a breach article into a validated breach record.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/llm"
)

// Stage names the extraction step in logs and failures.
const Stage = "extraction"

// Extractor runs stage 2 of the pipeline.
type Extractor struct {
	client    *llm.Client
	prompt    string
	maxTokens int
	bounds    breach.SummaryBounds
}

// NewExtractor creates an extractor from the backend and validation settings.
func NewExtractor(client *llm.Client, cfg *config.Config) *Extractor {
	return &Extractor{
		client:    client,
		prompt:    cfg.Prompts.Extraction,
		maxTokens: cfg.LLM.MaxTokens,
		bounds: breach.SummaryBounds{
			Min: cfg.Validation.MinSummaryLength,
			Max: cfg.Validation.MaxSummaryLength,
		},
	}
}

// response mirrors the JSON the extraction prompt asks for. Pointers keep
// JSON null apart from empty values.
type response struct {
	Company         *string  `json:"company"`
	Industry        *string  `json:"industry"`
	Country         *string  `json:"country"`
	DiscoveryDate   *string  `json:"discovery_date"`
	RecordsAffected *float64 `json:"records_affected"`
	BreachMethod    *string  `json:"breach_method"`
	AttackVector    *string  `json:"attack_vector"`
	DataCompromised []string `json:"data_compromised"`
	Severity        *string  `json:"severity"`
	CVEReferences   []string `json:"cve_references"`
	MITRETechniques []string `json:"mitre_attack_techniques"`
	Summary         *string  `json:"summary"`
	LessonsLearned  *string  `json:"lessons_learned"`
}

// Extract asks the backend for the structured record. today anchors
// relative dates in both the prompt and the fallback date ladder.
func (e *Extractor) Extract(ctx context.Context, article breach.Article, today time.Time) (*breach.Record, error) {
	prompt := llm.RenderPrompt(e.prompt, map[string]string{
		"title":       article.Title,
		"url":         article.URL,
		"summary":     article.Summary,
		"today":       today.Format(breach.DateLayout),
		"year":        strconv.Itoa(today.Year()),
		"min_summary": strconv.Itoa(e.bounds.Min),
		"max_summary": strconv.Itoa(e.bounds.Max),
	})

	var record *breach.Record
	err := e.client.Do(ctx, llm.Request{Stage: Stage, Prompt: prompt, MaxTokens: e.maxTokens}, func(text string) error {
		var resp response
		if err := llm.ParseJSONResponse(text, &resp); err != nil {
			return err
		}
		r, err := resp.toRecord(article, today, e.bounds)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extracting %q: %w", article.Title, err)
	}
	return record, nil
}

func (r response) toRecord(article breach.Article, today time.Time, bounds breach.SummaryBounds) (*breach.Record, error) {
	if r.Summary == nil {
		return nil, &breach.ValidationError{Field: "summary", Reason: "missing"}
	}
	summary, err := breach.NormalizeSummary(*r.Summary, bounds)
	if err != nil {
		return nil, err
	}

	rec := &breach.Record{
		Company:         breach.OptionalText(r.Company),
		Industry:        breach.OptionalText(r.Industry),
		Country:         breach.OptionalText(r.Country),
		BreachMethod:    breach.OptionalText(r.BreachMethod),
		LessonsLearned:  breach.OptionalText(r.LessonsLearned),
		DataCompromised: breach.NormalizeSet(r.DataCompromised),
		CVEReferences:   breach.FilterCVEs(r.CVEReferences),
		MITRETechniques: breach.FilterTechniques(r.MITRETechniques),
		Summary:         summary,
	}

	if rec.AttackVector, err = breach.ParseAttackVector(r.AttackVector); err != nil {
		return nil, err
	}
	if rec.Severity, err = breach.ParseSeverity(r.Severity); err != nil {
		return nil, err
	}
	if rec.RecordsAffected, err = breach.ValidateRecordsAffected(r.RecordsAffected); err != nil {
		return nil, err
	}

	if raw := breach.OptionalText(r.DiscoveryDate); raw != nil {
		d, err := breach.ParseISODate(*raw)
		if err != nil {
			return nil, err
		}
		rec.DiscoveryDate = &d
	} else {
		rec.DiscoveryDate = breach.ResolveDiscoveryDate(article.Title+". "+article.Summary, today)
	}
	return rec, nil
}
