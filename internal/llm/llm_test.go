package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breachwatch/scraper/internal/breach"
)

type payload struct {
	Key string `json:"key"`
	Num int    `json:"num"`
}

func TestParseJSONResponsePlain(t *testing.T) {
	var p payload
	require.NoError(t, ParseJSONResponse(`{"key": "value", "num": 42}`, &p))
	assert.Equal(t, "value", p.Key)
	assert.Equal(t, 42, p.Num)
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	var p payload
	require.NoError(t, ParseJSONResponse("```json\n{\"key\": \"value\"}\n```", &p))
	assert.Equal(t, "value", p.Key)
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	var p payload
	require.NoError(t, ParseJSONResponse("```\n{\"key\": \"value\"}\n```", &p))
	assert.Equal(t, "value", p.Key)
}

func TestParseJSONResponseWithChatter(t *testing.T) {
	var p payload
	require.NoError(t, ParseJSONResponse("Sure! Here is the result:\n{\"key\": \"value\"}\nLet me know.", &p))
	assert.Equal(t, "value", p.Key)
}

func TestParseJSONResponseInvalid(t *testing.T) {
	for _, text := range []string{"not json at all", "", "   \n ", "{\"key\": ", `{"num": "many"}`} {
		var p payload
		assert.ErrorIs(t, ParseJSONResponse(text, &p), breach.ErrValidation, "text %q", text)
	}
}

func TestRenderPrompt(t *testing.T) {
	tpl := `Title: {title}
Summary: {summary}
Respond: {"is_breach": true, "confidence": 0.0}`
	got := RenderPrompt(tpl, map[string]string{"title": "Acme breached", "summary": "{title} stays literal"})
	assert.Contains(t, got, "Title: Acme breached")
	assert.Contains(t, got, "Summary: {title} stays literal")
	assert.Contains(t, got, `{"is_breach": true, "confidence": 0.0}`)
}

// scriptedProvider returns responses in order, repeating the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	maxTokens []int
}

func (s *scriptedProvider) Generate(_ context.Context, _ string, maxTokens int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.maxTokens = append(s.maxTokens, maxTokens)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedProvider) IsConfigured() bool { return true }

func fastClient(p Provider, attempts int) *Client {
	return NewClient(p, ClientConfig{MaxRetries: attempts, RetryDelay: time.Millisecond, RequestTimeout: time.Second})
}

func decodePayload(out *payload) func(string) error {
	return func(text string) error {
		if err := ParseJSONResponse(text, out); err != nil {
			return err
		}
		if out.Key == "" {
			return breach.ErrValidation
		}
		return nil
	}
}

func TestClientRetriesTransportThenSucceeds(t *testing.T) {
	p := &scriptedProvider{
		errs:      []error{errors.New("connection reset"), errors.New("status 429: Too Many Requests")},
		responses: []string{"", "", `{"key":"ok"}`},
	}
	var out payload
	err := fastClient(p, 3).Do(context.Background(), Request{Stage: "classification", MaxTokens: 300}, decodePayload(&out))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Key)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int{300, 300, 300}, p.maxTokens)
}

func TestClientRetriesValidationFailure(t *testing.T) {
	p := &scriptedProvider{responses: []string{"I think it is a breach", `{"key":"ok"}`}}
	var out payload
	require.NoError(t, fastClient(p, 3).Do(context.Background(), Request{Stage: "extraction"}, decodePayload(&out)))
	assert.Equal(t, 2, p.calls)
}

func TestClientExhausted(t *testing.T) {
	p := &scriptedProvider{responses: []string{"nope"}}
	var out payload
	err := fastClient(p, 3).Do(context.Background(), Request{Stage: "extraction"}, decodePayload(&out))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, breach.ErrValidation)
	assert.Equal(t, 3, p.calls)
}

func TestClientExhaustedRateLimited(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		errors.New("429 too many requests"),
		errors.New("429 too many requests"),
	}}
	var out payload
	err := fastClient(p, 2).Do(context.Background(), Request{Stage: "update_detection"}, decodePayload(&out))
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClientStopsOnCancel(t *testing.T) {
	p := &scriptedProvider{responses: []string{"bad"}}
	c := NewClient(p, ClientConfig{MaxRetries: 5, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		var out payload
		done <- c.Do(ctx, Request{Stage: "classification"}, decodePayload(&out))
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	assert.Equal(t, 1, p.calls)
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient(nil, ClientConfig{})
	err := c.Do(context.Background(), Request{Stage: "classification"}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClassifyTransport(t *testing.T) {
	assert.ErrorIs(t, classifyTransport(errors.New("HTTP 429")), ErrRateLimited)
	assert.ErrorIs(t, classifyTransport(errors.New("dial tcp: refused")), ErrTransport)
	assert.NotErrorIs(t, classifyTransport(errors.New("dial tcp: refused")), ErrRateLimited)
	assert.ErrorIs(t, classifyTransport(context.DeadlineExceeded), context.DeadlineExceeded)
}

// fakeChatModel records what the provider sends to eino.
type fakeChatModel struct {
	reply    *schema.Message
	err      error
	messages []*schema.Message
	options  *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.messages = input
	f.options = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestChatProviderGenerate(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage(`{"key":"value"}`, nil)}
	p := NewChatProvider(fake, "deepseek-chat")

	text, err := p.Generate(context.Background(), "classify this", 300)
	require.NoError(t, err)
	assert.Equal(t, `{"key":"value"}`, text)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, schema.System, fake.messages[0].Role)
	assert.Equal(t, schema.User, fake.messages[1].Role)
	assert.Equal(t, "classify this", fake.messages[1].Content)
	require.NotNil(t, fake.options.MaxTokens)
	assert.Equal(t, 300, *fake.options.MaxTokens)
}

func TestChatProviderRateLimited(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("error, status code: 429, message: Too Many Requests")}
	_, err := NewChatProvider(fake, "deepseek-chat").Generate(context.Background(), "x", 10)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(context.Background(), "https://api.deepseek.com/v1", "", "deepseek-chat", time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
