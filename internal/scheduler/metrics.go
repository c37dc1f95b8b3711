package scheduler

import "encoding/json"

// toJSONB marshals a metrics map for storage in a jsonb column, falling
// back to an empty object if metrics is nil or marshaling fails.
func toJSONB(metrics map[string]any) string {
	if metrics == nil {
		return "{}"
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return "{}"
	}
	return string(b)
}
