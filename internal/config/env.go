package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides layers environment variables over the file values.
// Malformed numbers are configuration errors rather than silent defaults.
func (c *Config) applyEnvOverrides() error {
	var errs []error

	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "DEEPSEEK_API_KEY"
	}
	if v := os.Getenv(c.LLM.APIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DEEPSEEK_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DEEPSEEK_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BREACHWATCH_DATA_DIR"); v != "" {
		c.Output.DataDir = v
	}

	envSeconds(&errs, "DEEPSEEK_TIMEOUT", &c.LLM.Timeout)
	envInt(&errs, "DEEPSEEK_MAX_TOKENS", &c.LLM.MaxTokens)
	envInt(&errs, "REQUESTS_PER_MINUTE", &c.LLM.RequestsPerMinute)
	envInt(&errs, "ARTICLE_LOOKBACK_HOURS", &c.Scraper.LookbackHours)
	envInt(&errs, "MAX_RETRIES", &c.Scraper.MaxRetries)
	envSeconds(&errs, "RETRY_DELAY", &c.Scraper.RetryDelay)
	envSeconds(&errs, "REQUEST_TIMEOUT", &c.Scraper.RequestTimeout)
	envBool("ENABLE_CLASSIFICATION", &c.Classification.Enabled)
	envFloat(&errs, "CLASSIFICATION_CONFIDENCE_THRESHOLD", &c.Classification.ConfidenceThreshold)
	envInt(&errs, "CLASSIFICATION_MAX_TOKENS", &c.Classification.MaxTokens)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func envInt(errs *[]error, name string, dst *int) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q is not an integer", name, v))
		return
	}
	*dst = n
}

func envSeconds(errs *[]error, name string, dst *time.Duration) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q is not a number of seconds", name, v))
		return
	}
	*dst = time.Duration(n) * time.Second
}

func envFloat(errs *[]error, name string, dst *float64) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q is not a number", name, v))
		return
	}
	*dst = f
}

// envBool accepts true/1/yes as true; anything else is false.
func envBool(name string, dst *bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		*dst = true
	default:
		*dst = false
	}
}
