package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalModelJSON decodes a JSON object produced by a generative
// model. Models wrap JSON in prose or emit slightly broken syntax, so
// the raw text is narrowed to its outermost object and repaired before
// giving up.
func unmarshalModelJSON(raw string, out any) error {
	block := extractJSONBlock(raw)
	if block == "" {
		return fmt.Errorf("no json object in model output")
	}

	firstErr := json.Unmarshal([]byte(block), out)
	if firstErr == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(block)
	if repairErr != nil {
		return fmt.Errorf("unmarshal model json: %w", firstErr)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal repaired model json: %w", err)
	}
	return nil
}

func extractJSONBlock(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}
