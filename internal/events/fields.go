package events

import (
	"sort"

	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/validate"
)

// MaxCustomFields caps how many caller-supplied fields survive cleaning.
const MaxCustomFields = 50

const maxCustomFieldValueLength = 256

// CleanCustomFields filters caller-supplied custom fields down to the
// accepted shape: keys matching the field-key charset, values that are
// numbers or non-empty strings of at most 256 characters. At most
// MaxCustomFields survive; keys are considered in sorted order so the
// surviving subset is deterministic. Invalid entries are dropped one by one
// with a log line, never failing the whole event.
func CleanCustomFields(fields map[string]any, log *logging.Logger) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cleaned := make(map[string]any)
	for _, key := range keys {
		if len(cleaned) >= MaxCustomFields {
			log.Warningf("CleanCustomFields: entry with key=%s has been omitted because it exceeds the max number of custom fields (%d)", key, MaxCustomFields)
			continue
		}
		if !validate.CustomFieldKey(key) {
			log.Warningf("CleanCustomFields: entry with key=%s has been omitted because its key contains illegal characters, is empty or exceeds the max length", key)
			continue
		}

		value := fields[key]
		switch v := value.(type) {
		case string:
			if len(v) == 0 || len(v) > maxCustomFieldValueLength {
				log.Warningf("CleanCustomFields: entry with key=%s has been omitted because its value is an empty string or exceeds the max length", key)
				continue
			}
			cleaned[key] = v
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			cleaned[key] = v
		default:
			log.Warningf("CleanCustomFields: entry with key=%s has been omitted because its value is not a string or number", key)
		}
	}
	return cleaned
}
