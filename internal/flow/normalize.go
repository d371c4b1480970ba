package flow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize flattens the flow service's response into at most limit
// recommendations. The service's output shape varies with the flow's
// configuration, so several layouts are sniffed in order:
//
//   - the chat output envelope: outputs[0].outputs[0].results.message.text
//   - a top-level "result" value
//   - result as a JSON array, an object with a "recommendations" key, or
//     plain newline-separated text
func Normalize(payload map[string]any, limit int) []Recommendation {
	if limit <= 0 {
		limit = 5
	}

	result := extractResult(payload)
	items := resultItems(result)

	recs := make([]Recommendation, 0, len(items))
	for i, item := range items {
		if len(recs) == limit {
			break
		}
		recs = append(recs, structureItem(item, i))
	}
	return recs
}

// extractResult digs the meaningful result value out of the response envelope.
func extractResult(payload map[string]any) any {
	if payload == nil {
		return nil
	}

	// Chat envelope: outputs -> outputs -> results -> message -> text.
	if outputs, ok := payload["outputs"].([]any); ok && len(outputs) > 0 {
		if outer, ok := outputs[0].(map[string]any); ok {
			if inner, ok := outer["outputs"].([]any); ok && len(inner) > 0 {
				if run, ok := inner[0].(map[string]any); ok {
					if results, ok := run["results"].(map[string]any); ok {
						if message, ok := results["message"].(map[string]any); ok {
							if text, ok := message["text"].(string); ok {
								return text
							}
						}
					}
				}
			}
		}
	}

	if result, ok := payload["result"]; ok {
		return result
	}
	return nil
}

// resultItems converts the extracted result into a flat list of raw items.
func resultItems(result any) []any {
	switch v := result.(type) {
	case nil:
		return nil
	case []any:
		return v
	case map[string]any:
		if recs, ok := v["recommendations"].([]any); ok {
			return recs
		}
		return nil
	case string:
		return textItems(v)
	}
	return nil
}

// textItems handles a string result: JSON first, then plain text lines.
func textItems(text string) []any {
	trimmed := strings.TrimSpace(text)

	// Flows often wrap JSON output in a markdown code fence.
	if after, found := strings.CutPrefix(trimmed, "```json"); found {
		trimmed = strings.TrimSuffix(strings.TrimSpace(after), "```")
	} else if after, found := strings.CutPrefix(trimmed, "```"); found {
		trimmed = strings.TrimSuffix(strings.TrimSpace(after), "```")
	}
	trimmed = strings.TrimSpace(trimmed)

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		switch v := parsed.(type) {
		case []any:
			return v
		case map[string]any:
			if recs, ok := v["recommendations"].([]any); ok {
				return recs
			}
		}
	}

	// Not JSON: treat each non-empty line as a recommendation name.
	var items []any
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	return items
}

// structureItem coerces a raw item into the fixed Recommendation schema.
func structureItem(item any, index int) Recommendation {
	switch v := item.(type) {
	case string:
		return Recommendation{Name: v}
	case map[string]any:
		rec := Recommendation{
			Name:            stringField(v, "name"),
			Description:     stringField(v, "description"),
			Preparation:     stringField(v, "preparation"),
			NutritionalInfo: stringField(v, "nutritional_info"),
			CuisineType:     stringField(v, "cuisine_type"),
			Ingredients:     stringSliceField(v, "ingredients"),
			DietaryTags:     stringSliceField(v, "dietary_tags"),
		}
		if score, ok := v["confidence_score"].(float64); ok {
			rec.ConfidenceScore = &score
		}
		if rec.Name == "" {
			rec.Name = fmt.Sprintf("Recommendation %d", index+1)
		}
		return rec
	default:
		return Recommendation{Name: fmt.Sprintf("Recommendation %d", index+1)}
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
