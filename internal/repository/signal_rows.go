package repository

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"AlphaNebula/internal/domain/models"
)

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{"raw": s}
	}
	return m
}

// orderBy sorts oldest first, or newest first when the query keeps the latest events.
func orderBy(q models.SignalQuery) string {
	if q.Newest {
		return " ORDER BY created_at DESC, signal_id DESC"
	}
	return " ORDER BY created_at, signal_id"
}

// oldestFirst puts a newest-first page back in created_at order.
func oldestFirst(q models.SignalQuery, out []models.SignalEvent) []models.SignalEvent {
	if q.Newest {
		slices.Reverse(out)
	}
	return out
}

// typeFilter renders "AND signal_type IN (?, ?)" with its arguments.
func typeFilter(types []models.SignalType) (string, []any) {
	if len(types) == 0 {
		return "", nil
	}
	marks := make([]string, len(types))
	args := make([]any, len(types))
	for i, t := range types {
		marks[i] = "?"
		args[i] = string(t)
	}
	return " AND signal_type IN (" + strings.Join(marks, ", ") + ")", args
}
