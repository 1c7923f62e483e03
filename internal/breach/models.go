// Package breach holds the breach domain model shared by every pipeline
// stage: articles, classification results, extracted breach records, update
// decisions, and the deterministic validation that guards them.
package breach

import (
	"time"

	"github.com/google/uuid"
)

// Article is a feed entry that enters the pipeline.
type Article struct {
	ID         string
	URL        string
	Title      string
	Summary    string
	Source     string
	SourceName string
	Published  *time.Time
}

// Classification is the stage 1 verdict for an article.
type Classification struct {
	IsBreach   bool
	Confidence float64
	Reasoning  string
}

// Record is a structured breach extracted from a single article.
type Record struct {
	Company         *string
	Industry        *string
	Country         *string
	DiscoveryDate   *time.Time
	RecordsAffected *int64
	BreachMethod    *string
	AttackVector    *AttackVector
	DataCompromised []string
	Severity        *Severity
	CVEReferences   []string
	MITRETechniques []string
	Summary         string
	LessonsLearned  *string
}

// Stored is a persisted breach as seen by the update resolver.
type Stored struct {
	ID          uuid.UUID
	Record      Record
	SourceURL   string
	SourceTitle string
	CreatedAt   time.Time
	UpdateCount int
}

// UpdateDecision says whether an article updates a known breach.
type UpdateDecision struct {
	IsUpdate        bool
	RelatedBreachID *uuid.UUID
	UpdateType      *UpdateType
	Confidence      float64
	Reasoning       string
}

// Update is an event appended to an existing breach.
type Update struct {
	ID          int64
	BreachID    uuid.UUID
	UpdateType  UpdateType
	SourceURL   string
	SourceTitle string
	Description string
	Confidence  float64
	CreatedAt   time.Time
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// FormatDate renders an optional date, or "unknown".
func FormatDate(d *time.Time) string {
	if d == nil {
		return "unknown"
	}
	return d.Format(DateLayout)
}

// Deref returns the string value or fallback when nil.
func Deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
