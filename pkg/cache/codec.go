package cache

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxPart bounds a single key segment. Longer segments are replaced by their
// xxhash so Redis keys stay short for pathological mention names.
const maxPart = 96

// Part returns the key segment used for s. Key and glob patterns built by
// callers must both go through it.
func Part(s string) string {
	if s == "" {
		return "_"
	}
	if len(s) <= maxPart {
		return s
	}
	return "h" + strconv.FormatUint(xxhash.Sum64String(s), 16)
}

// Key joins segments with ':'.
func Key(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(Part(p))
	}
	return b.String()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
	case *[]byte:
		*d = append((*d)[:0], data...)
	case *json.RawMessage:
		*d = append((*d)[:0], data...)
	default:
		return json.Unmarshal(data, dest)
	}
	return nil
}
