package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/llm"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	i := len(m.prompts) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newResolver(t *testing.T, responses ...string) (*Resolver, *mockProvider) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	p := &mockProvider{responses: responses}
	client := llm.NewClient(p, llm.ClientConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	return NewResolver(client, cfg), p
}

func ptr(s string) *string { return &s }

var (
	acmeID   = uuid.MustParse("0b8f6a0e-4c1d-4b7a-9d55-1f1c2f7f0a11")
	globexID = uuid.MustParse("5d7c2b8e-0f3a-4e8b-b1a4-6a2d9e3c4f22")
	article  = breach.Article{ID: "a9", URL: "https://example.com/fine", Title: "Regulator fines Acme Health $2M", Summary: "The fine follows January's breach."}
)

func window() []breach.Stored {
	d := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	sev := breach.SeverityHigh
	return []breach.Stored{
		{ID: acmeID, Record: breach.Record{Company: ptr("Acme Health"), DiscoveryDate: &d, Severity: &sev,
			Summary: "Ransomware operators stole patient records from Acme Health."}},
		{ID: globexID, Record: breach.Record{Company: ptr("Globex"), Summary: "Globex exposed an S3 bucket."}, UpdateCount: 2},
	}
}

func TestResolveEmptyWindowSkipsBackend(t *testing.T) {
	r, p := newResolver(t, `{"is_update": true}`)

	d, err := r.Resolve(context.Background(), article, nil)
	require.NoError(t, err)
	assert.False(t, d.IsUpdate)
	assert.Empty(t, p.prompts)
}

func TestResolveUpdate(t *testing.T) {
	r, p := newResolver(t, fmt.Sprintf(
		`{"is_update": true, "related_breach_id": "%s", "update_type": "regulatory_fine", "confidence": 0.9, "reasoning": "Same company and incident."}`, acmeID))

	d, err := r.Resolve(context.Background(), article, window())
	require.NoError(t, err)
	assert.True(t, d.IsUpdate)
	require.NotNil(t, d.RelatedBreachID)
	assert.Equal(t, acmeID, *d.RelatedBreachID)
	assert.Equal(t, breach.UpdateRegulatoryFine, *d.UpdateType)

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], acmeID.String())
	assert.Contains(t, p.prompts[0], "Company: Acme Health | Date: 2026-01-15 | Severity: high")
	assert.Contains(t, p.prompts[0], "last 90 days")
	assert.NotContains(t, p.prompts[0], "{existing_breaches}")
}

func TestResolveLowConfidenceDowngraded(t *testing.T) {
	r, _ := newResolver(t, fmt.Sprintf(
		`{"is_update": true, "related_breach_id": "%s", "update_type": "new_info", "confidence": 0.6, "reasoning": "Maybe."}`, acmeID))

	d, err := r.Resolve(context.Background(), article, window())
	require.NoError(t, err)
	assert.False(t, d.IsUpdate)
	assert.Nil(t, d.RelatedBreachID)
	assert.Nil(t, d.UpdateType)
	assert.True(t, strings.Contains(d.Reasoning, "new incident"))
}

func TestResolveLowConfidenceSkipsIDChecks(t *testing.T) {
	cases := map[string]string{
		"null id":       `{"is_update": true, "related_breach_id": null, "update_type": null, "confidence": 0.3, "reasoning": "Unsure."}`,
		"id outside":    fmt.Sprintf(`{"is_update": true, "related_breach_id": "%s", "update_type": "new_info", "confidence": 0.4}`, uuid.New()),
		"id not a uuid": `{"is_update": true, "related_breach_id": "breach-42", "update_type": "lawsuit", "confidence": 0.5}`,
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			r, p := newResolver(t, resp)
			d, err := r.Resolve(context.Background(), article, window())
			require.NoError(t, err)
			assert.False(t, d.IsUpdate)
			assert.Nil(t, d.RelatedBreachID)
			assert.Nil(t, d.UpdateType)
			assert.Len(t, p.prompts, 1)
		})
	}
}

func TestResolveNewIncidentClearsFields(t *testing.T) {
	r, _ := newResolver(t, `{"is_update": false, "related_breach_id": "not-an-id", "update_type": "lawsuit", "confidence": 0.8, "reasoning": "Different company."}`)

	d, err := r.Resolve(context.Background(), article, window())
	require.NoError(t, err)
	assert.False(t, d.IsUpdate)
	assert.Nil(t, d.RelatedBreachID)
	assert.Nil(t, d.UpdateType)
}

func TestResolveMissingUpdateTypeDefaultsToNewInfo(t *testing.T) {
	r, _ := newResolver(t, fmt.Sprintf(`{"is_update": true, "related_breach_id": "%s", "update_type": null, "confidence": 0.95}`, globexID))

	d, err := r.Resolve(context.Background(), article, window())
	require.NoError(t, err)
	assert.Equal(t, breach.UpdateNewInfo, *d.UpdateType)
}

func TestResolveNeverInventsIDs(t *testing.T) {
	stranger := uuid.New()
	cases := map[string]string{
		"id outside window": fmt.Sprintf(`{"is_update": true, "related_breach_id": "%s", "update_type": "new_info", "confidence": 0.9}`, stranger),
		"id not a uuid":     `{"is_update": true, "related_breach_id": "breach-42", "update_type": "new_info", "confidence": 0.9}`,
		"id missing":        `{"is_update": true, "related_breach_id": null, "update_type": "new_info", "confidence": 0.9}`,
		"bad update type":   fmt.Sprintf(`{"is_update": true, "related_breach_id": "%s", "update_type": "lawsuit", "confidence": 0.9}`, acmeID),
		"confidence range":  `{"is_update": false, "confidence": 2}`,
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			r, p := newResolver(t, resp)
			d, err := r.Resolve(context.Background(), article, window())
			assert.Nil(t, d)
			assert.ErrorIs(t, err, llm.ErrExhausted)
			assert.ErrorIs(t, err, breach.ErrValidation)
			assert.Len(t, p.prompts, 3)
		})
	}
}

func TestFormatWindow(t *testing.T) {
	out := FormatWindow(window())
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Company: Globex | Date: unknown | Severity: unknown | Updates: 2")
}
