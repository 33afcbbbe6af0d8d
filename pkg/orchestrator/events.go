package orchestrator

import "strings"

// buildEvent assembles a client-visible event record: a type discriminator,
// the owning turn_id, plus whatever fields the caller supplies.
func buildEvent(turnID, eventType string, fields map[string]any) map[string]any {
	ev := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		ev[k] = v
	}
	ev["type"] = eventType
	ev["turn_id"] = turnID
	return ev
}

func isTerminalEventType(ev map[string]any) bool {
	t, _ := ev["type"].(string)
	return t == "stream_end" || t == "error"
}

// ResultClassifier decides whether a tool's raw result string represents
// success or failure, for the tool_result log line's status field.
type ResultClassifier func(result string) string

// defaultClassify resolves the open question of how to tell a successful
// tool result from a failed one when the agent stream carries only a raw
// result string: a literal "error" key or leading "Error" marks failure,
// everything else counts as success.
func defaultClassify(result string) string {
	trimmed := strings.TrimSpace(result)
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, `"error"`) || strings.HasPrefix(lower, "error") {
		return "error"
	}
	return "success"
}
