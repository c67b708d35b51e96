// Package validate holds the pure predicate rules events must pass before
// they are accepted. Every function is side-effect free; callers log and
// reject on failure. The rules (lengths, character classes, whitelists) are
// fixed by the collector's server-side validation and must not drift.
package validate

import "regexp"

var (
	currencyRe      = regexp.MustCompile(`^[A-Z]{3}$`)
	eventPartRe     = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}$`)
	eventIDRe       = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}(:[A-Za-z0-9\s\-_.()!?]{1,64}){0,4}$`)
	customFieldKey  = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
	gameKeyRe       = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
	gameSecretRe    = regexp.MustCompile(`^[A-Za-z0-9]{40}$`)
	currencyNameRe  = regexp.MustCompile(`^[A-Za-z]+$`)
	connectionRe    = regexp.MustCompile(`^(wwan|wifi|lan|offline)$`)
	engineVersionRe = regexp.MustCompile(`^(unreal|corona|cocos2d|lumberyard|gamemaker|defold) [0-9]{0,5}(\.[0-9]{0,5}){0,2}$`)
	wrapperRe       = regexp.MustCompile(`^(unreal|corona|cocos2d|lumberyard|air|gamemaker|defold) [0-9]{0,5}(\.[0-9]{0,5}){0,2}$`)
	storeRe         = regexp.MustCompile(`^(apple|google_play)$`)
)

// Keys reports whether the game key and secret have the collector's expected
// shapes (32 and 40 alphanumerics).
func Keys(gameKey, gameSecret string) bool {
	return gameKeyRe.MatchString(gameKey) && gameSecretRe.MatchString(gameSecret)
}

// Currency accepts exactly three uppercase letters (ISO 4217 style).
func Currency(currency string) bool {
	return currencyRe.MatchString(currency)
}

// ShortString accepts strings of at most 32 characters.
func ShortString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 32
}

// String accepts strings of at most 64 characters.
func String(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 64
}

// LongString accepts strings of at most 8192 characters. Used for error
// event messages.
func LongString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 8192
}

// EventPartLength accepts a single event-id segment of 1..64 characters.
func EventPartLength(part string, allowEmpty bool) bool {
	if part == "" {
		return allowEmpty
	}
	return len(part) <= 64
}

// EventPartCharacters accepts the collector's event-part character class.
func EventPartCharacters(part string) bool {
	return eventPartRe.MatchString(part)
}

// EventID accepts a composite event id of up to five colon-separated parts,
// each matching the event-part character class.
func EventID(eventID string) bool {
	return eventIDRe.MatchString(eventID)
}

// CustomFieldKey accepts custom-field keys: 1..64 of [A-Za-z0-9_].
func CustomFieldKey(key string) bool {
	return customFieldKey.MatchString(key)
}

// ConnectionType accepts the collector's known connection type strings.
func ConnectionType(connectionType string) bool {
	return connectionRe.MatchString(connectionType)
}

// EngineVersion accepts "<engine> <version>" for the known engines.
func EngineVersion(engineVersion string) bool {
	return engineVersionRe.MatchString(engineVersion)
}

// SdkWrapperVersion accepts "<wrapper> <version>" for the known wrappers.
func SdkWrapperVersion(wrapperVersion string) bool {
	return wrapperRe.MatchString(wrapperVersion)
}

// AppStore accepts the known store identifiers.
func AppStore(store string) bool {
	return storeRe.MatchString(store)
}

// Build accepts a non-empty build string of at most 32 characters.
func Build(build string) bool {
	return ShortString(build, false)
}

// FacebookID accepts a non-empty id of at most 64 characters.
func FacebookID(facebookID string) bool {
	return String(facebookID, false)
}

// BirthYear accepts years in 0..9999.
func BirthYear(birthYear int) bool {
	return birthYear >= 0 && birthYear <= 9999
}

// ClientTS accepts adjusted client timestamps the collector will take:
// ten-digit unix seconds.
func ClientTS(clientTS int64) bool {
	return clientTS >= 1000000000 && clientTS <= 9999999999
}

// UserID accepts any non-empty id.
func UserID(userID string) bool {
	return userID != ""
}

// ProgressionParts enforces the contiguous-prefix rule: progressions are
// valid as 01, 01+02 or 01+02+03. Gaps (02 without 01, 03 without 02) are
// rejected. Each present part must satisfy the event-part rules.
func ProgressionParts(p1, p2, p3 string) bool {
	if p1 == "" {
		return false
	}
	if p3 != "" && p2 == "" {
		return false
	}
	if !EventPartLength(p1, false) || !EventPartCharacters(p1) {
		return false
	}
	if p2 != "" && (!EventPartLength(p2, false) || !EventPartCharacters(p2)) {
		return false
	}
	if p3 != "" && (!EventPartLength(p3, false) || !EventPartCharacters(p3)) {
		return false
	}
	return true
}

// StringList checks a whitelist candidate list: non-empty, at most maxCount
// entries, each entry non-empty and at most maxLength characters.
func StringList(values []string, maxCount, maxLength int) bool {
	if len(values) == 0 || len(values) > maxCount {
		return false
	}
	for _, v := range values {
		if v == "" || len(v) > maxLength {
			return false
		}
	}
	return true
}

// CustomDimensions checks a custom-dimension whitelist: at most 20 values of
// at most 32 characters.
func CustomDimensions(values []string) bool {
	return StringList(values, 20, 32)
}

// ResourceCurrencies checks a resource-currency whitelist: at most 20 values
// of at most 64 characters, letters only.
func ResourceCurrencies(values []string) bool {
	if !StringList(values, 20, 64) {
		return false
	}
	for _, v := range values {
		if !currencyNameRe.MatchString(v) {
			return false
		}
	}
	return true
}

// ResourceItemTypes checks a resource item-type whitelist: at most 20 values
// of at most 32 characters in the event-part character class.
func ResourceItemTypes(values []string) bool {
	if !StringList(values, 20, 32) {
		return false
	}
	for _, v := range values {
		if !EventPartCharacters(v) {
			return false
		}
	}
	return true
}

// Contains reports whitelist membership. An empty whitelist admits nothing.
func Contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// DimensionAllowed reports whether a selected dimension value is acceptable:
// empty clears the slot, otherwise the value must be whitelisted.
func DimensionAllowed(list []string, value string) bool {
	if value == "" {
		return true
	}
	return Contains(list, value)
}
