// Package metrics holds the prometheus collectors exported on /metrics.
// Every constructor accepts a nil registerer and returns a no-op recorder.
package metrics

const namespace = "loyalty"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
