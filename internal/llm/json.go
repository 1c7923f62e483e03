package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/breachwatch/scraper/internal/breach"
)

// ParseJSONResponse decodes a JSON object from an LLM reply into v, handling
// markdown code fences and chatter around the object. Anything that does not
// decode is a validation failure so the caller retries.
func ParseJSONResponse(text string, v any) error {
	body := extractJSONObject(text)
	if body == "" {
		return fmt.Errorf("%w: response contains no JSON object", breach.ErrValidation)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: decoding response: %v", breach.ErrValidation, err)
	}
	return nil
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
