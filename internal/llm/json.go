package llm

import (
	"encoding/json"
	"log"
	"strings"
)

// ParseJSONArray parses a JSON array response from the extraction model,
// handling markdown code fences. Returns nil on empty or invalid output.
func ParseJSONArray(text string) []map[string]any {
	text = StripCodeFence(text)
	if text == "" {
		return nil
	}

	var result []map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		log.Printf("Failed to parse model response as JSON array: %v", err)
		return nil
	}

	return result
}

// StripCodeFence removes a wrapping markdown code fence, if present.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
