package classify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

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
	maxTokens int
}

func (m *mockProvider) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.maxTokens = maxTokens
	i := len(m.prompts) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newClassifier(t *testing.T, responses ...string) (*Classifier, *mockProvider) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	p := &mockProvider{responses: responses}
	client := llm.NewClient(p, llm.ClientConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	return NewClassifier(client, cfg), p
}

func TestClassifyBreach(t *testing.T) {
	c, p := newClassifier(t, `{"is_breach": true, "confidence": 0.93, "reasoning": "Named victim confirmed exfiltration."}`)

	r, err := c.Classify(context.Background(), "Acme confirms customer data stolen", "Acme said attackers accessed 2M records.")
	require.NoError(t, err)
	assert.True(t, r.IsBreach)
	assert.InDelta(t, 0.93, r.Confidence, 1e-9)
	assert.True(t, Passes(r, c.Threshold()))

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "Acme confirms customer data stolen")
	assert.Contains(t, p.prompts[0], "Acme said attackers accessed 2M records.")
	assert.NotContains(t, p.prompts[0], "{title}")
	assert.Equal(t, 300, p.maxTokens)
}

func TestClassifyBelowThresholdDoesNotPass(t *testing.T) {
	c, _ := newClassifier(t, `{"is_breach": true, "confidence": 0.55, "reasoning": "Unclear victim."}`)

	r, err := c.Classify(context.Background(), "Possible leak at unnamed firm", "Researchers saw a dump.")
	require.NoError(t, err)
	assert.False(t, Passes(r, 0.6))
}

func TestClassifyNotBreach(t *testing.T) {
	c, _ := newClassifier(t, "```json\n{\"is_breach\": false, \"confidence\": 0.97, \"reasoning\": \"Vulnerability advisory only.\"}\n```")

	r, err := c.Classify(context.Background(), "Patch Tuesday fixes 60 flaws", "Microsoft released fixes.")
	require.NoError(t, err)
	assert.False(t, r.IsBreach)
	assert.False(t, Passes(r, 0.6))
}

func TestClassifyRetriesMalformedResponse(t *testing.T) {
	c, p := newClassifier(t,
		"Yes, this is a breach.",
		`{"is_breach": true, "confidence": 1.7}`,
		`{"is_breach": true, "confidence": 0.8, "reasoning": "ok"}`,
	)

	r, err := c.Classify(context.Background(), "t", "s")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
	assert.Len(t, p.prompts, 3)
}

func TestClassifyHardFailureAfterRetries(t *testing.T) {
	c, p := newClassifier(t, `{"confidence": 0.9}`)

	r, err := c.Classify(context.Background(), "t", "s")
	assert.Nil(t, r)
	assert.ErrorIs(t, err, llm.ErrExhausted)
	assert.ErrorIs(t, err, breach.ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "is_breach"))
	assert.Len(t, p.prompts, 3)
}

func TestPasses(t *testing.T) {
	assert.True(t, Passes(&breach.Classification{IsBreach: true, Confidence: 0.6}, 0.6))
	assert.False(t, Passes(&breach.Classification{IsBreach: false, Confidence: 0.99}, 0.6))
	assert.False(t, Passes(nil, 0.6))
}
