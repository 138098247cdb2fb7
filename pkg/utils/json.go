package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse parses a model response as a JSON object. Code fences
// around the object are stripped first since models frequently add them.
func ParseJSONResponse(response string) (map[string]interface{}, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return result, nil
}
