// Package classify decides whether an article reports a data breach.
package classify

import (
	"context"
	"fmt"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/llm"
)

// Stage names the classification step in logs and failures.
const Stage = "classification"

// Classifier runs stage 1 of the pipeline.
type Classifier struct {
	client    *llm.Client
	prompt    string
	maxTokens int
	threshold float64
}

// NewClassifier creates a classifier from the classification settings.
func NewClassifier(client *llm.Client, cfg *config.Config) *Classifier {
	return &Classifier{
		client:    client,
		prompt:    cfg.Prompts.Classification,
		maxTokens: cfg.Classification.MaxTokens,
		threshold: cfg.Classification.ConfidenceThreshold,
	}
}

type response struct {
	IsBreach   *bool    `json:"is_breach"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify asks the backend whether the article describes a breach. A reply
// missing is_breach or confidence, or with confidence outside [0,1], is a
// validation failure and is retried.
func (c *Classifier) Classify(ctx context.Context, title, summary string) (*breach.Classification, error) {
	prompt := llm.RenderPrompt(c.prompt, map[string]string{
		"title":   title,
		"summary": summary,
	})

	var result *breach.Classification
	err := c.client.Do(ctx, llm.Request{Stage: Stage, Prompt: prompt, MaxTokens: c.maxTokens}, func(text string) error {
		var resp response
		if err := llm.ParseJSONResponse(text, &resp); err != nil {
			return err
		}
		r, err := resp.toClassification()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classifying %q: %w", title, err)
	}
	return result, nil
}

func (r response) toClassification() (*breach.Classification, error) {
	if r.IsBreach == nil {
		return nil, &breach.ValidationError{Field: "is_breach", Reason: "missing"}
	}
	if r.Confidence == nil {
		return nil, &breach.ValidationError{Field: "confidence", Reason: "missing"}
	}
	c := &breach.Classification{IsBreach: *r.IsBreach, Confidence: *r.Confidence, Reasoning: r.Reasoning}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Threshold is the confidence an article needs to reach extraction.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Passes reports whether a classification clears the gate into extraction.
func Passes(r *breach.Classification, threshold float64) bool {
	return r != nil && r.IsBreach && r.Confidence >= threshold
}
