// Package state is the single source of truth for session identity, counters,
// identity resolution, dimension whitelists and the remote-config cache.
//
// Every field is single-writer: mutations happen only on the SDK's worker
// goroutine. The one exception is the remote-config snapshot, which host
// threads read synchronously; it is published through an atomic pointer so
// readers never take a lock.
package state

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/gamesignals/beacon/internal/device"
	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/store"
	"github.com/gamesignals/beacon/internal/validate"
)

// CategorySdkError is the wire category of the internal self-error event.
const CategorySdkError = "sdk_error"

// State holds the SDK's mutable session and configuration state.
type State struct {
	log    *logging.Logger
	store  *store.Store
	device *device.Info

	gameKey    string
	gameSecret string

	userID        string
	defaultUserID string
	identifier    string

	initialized bool

	sessionID      string
	sessionStart   int64
	sessionNum     int64
	transactionNum int64

	build      string
	facebookID string
	gender     string
	birthYear  int

	enabledEventSubmission bool
	manualSessionHandling  bool
	initAuthorized         bool
	clientServerTimeOffset int64

	availableDimensions01       []string
	availableDimensions02       []string
	availableDimensions03       []string
	availableResourceCurrencies []string
	availableResourceItemTypes  []string

	currentDimension01 string
	currentDimension02 string
	currentDimension03 string

	progressionTries map[string]int

	sdkConfig        map[string]any
	sdkConfigCached  map[string]any
	sdkConfigDefault map[string]any

	remote *remoteConfig

	now func() int64
}

// New returns an empty State bound to its device info. The store is attached
// later, once Initialize has resolved the writable path; persistence calls
// before that are silently skipped.
func New(dev *device.Info, log *logging.Logger) *State {
	return &State{
		log:                    log,
		device:                 dev,
		enabledEventSubmission: true,
		progressionTries:       make(map[string]int),
		sdkConfigDefault:       map[string]any{},
		remote:                 newRemoteConfig(),
		now:                    unixNow,
	}
}

// AttachStore binds the opened datastore so subsequent mutations persist.
func (s *State) AttachStore(st *store.Store) { s.store = st }

// persistState writes one ga_state key when a store is attached.
func (s *State) persistState(key, value string) {
	if s.store != nil {
		s.store.SetState(key, value)
	}
}

// SetKeys records the game key pair.
func (s *State) SetKeys(gameKey, gameSecret string) {
	s.gameKey = gameKey
	s.gameSecret = gameSecret
}

// GameKey returns the configured game key.
func (s *State) GameKey() string { return s.gameKey }

// GameSecret returns the configured game secret.
func (s *State) GameSecret() string { return s.gameSecret }

// SetUserID sets the explicit host-provided user id, which takes precedence
// over every other identity source.
func (s *State) SetUserID(id string) {
	s.userID = id
	s.cacheIdentifier()
}

// SetDefaultUserID sets the SDK-generated fallback id.
func (s *State) SetDefaultUserID(id string) {
	s.defaultUserID = id
	s.cacheIdentifier()
}

// Identifier returns the resolved user identity.
func (s *State) Identifier() string { return s.identifier }

// cacheIdentifier resolves identity by fixed precedence: explicit user id,
// then the persisted SDK-generated default.
func (s *State) cacheIdentifier() {
	switch {
	case s.userID != "":
		s.identifier = s.userID
	case s.defaultUserID != "":
		s.identifier = s.defaultUserID
	}
	s.log.Debugf("identifier, {clean:%s}", s.identifier)
}

// Initialized reports whether Initialize has completed.
func (s *State) Initialized() bool { return s.initialized }

// SetInitialized marks initialization complete.
func (s *State) SetInitialized() { s.initialized = true }

// SessionID returns the current (or, after session end, the last) session id.
// Deliberately not cleared on session end so abandoned-session recovery can
// exclude it.
func (s *State) SessionID() string { return s.sessionID }

// SessionStart returns the session start timestamp; zero means no session is
// running.
func (s *State) SessionStart() int64 { return s.sessionStart }

// SessionIsStarted reports whether a session is running.
func (s *State) SessionIsStarted() bool { return s.sessionStart != 0 }

// BeginSession installs a fresh lowercase session id and stamps the start
// time.
func (s *State) BeginSession() {
	s.sessionID = uuid.NewString()
	s.sessionStart = s.ClientTsAdjusted()
}

// EndSession resets the start stamp. The session id survives until the next
// BeginSession.
func (s *State) EndSession() { s.sessionStart = 0 }

// SessionNum returns the persisted session counter.
func (s *State) SessionNum() int64 { return s.sessionNum }

// IncrementSessionNum bumps the session counter; the caller persists it.
func (s *State) IncrementSessionNum() { s.sessionNum++ }

// TransactionNum returns the persisted business-transaction counter.
func (s *State) TransactionNum() int64 { return s.transactionNum }

// IncrementTransactionNum bumps the transaction counter; the caller persists
// it.
func (s *State) IncrementTransactionNum() { s.transactionNum++ }

// SetBuild records the host build string.
func (s *State) SetBuild(build string) {
	s.build = build
	s.log.Infof("Set build: %s", build)
}

// Build returns the host build string.
func (s *State) Build() string { return s.build }

// SetFacebookID persists the optional facebook id annotation.
func (s *State) SetFacebookID(id string) {
	s.facebookID = id
	s.persistState("facebook_id", id)
	s.log.Infof("Set facebook id: %s", id)
}

// SetGender persists the optional gender annotation.
func (s *State) SetGender(gender string) {
	s.gender = gender
	s.persistState("gender", gender)
	s.log.Infof("Set gender: %s", gender)
}

// SetBirthYear persists the optional birth-year annotation.
func (s *State) SetBirthYear(year int) {
	s.birthYear = year
	s.persistState("birth_year", strconv.Itoa(year))
	s.log.Infof("Set birth year: %d", year)
}

// SetEnabledEventSubmission is the local kill switch.
func (s *State) SetEnabledEventSubmission(enabled bool) {
	s.enabledEventSubmission = enabled
}

// EventSubmissionEnabled reports the local kill switch.
func (s *State) EventSubmissionEnabled() bool { return s.enabledEventSubmission }

// SetManualSessionHandling toggles automatic session start/end on
// resume/suspend.
func (s *State) SetManualSessionHandling(flag bool) {
	s.manualSessionHandling = flag
	s.log.Infof("Use manual session handling: %t", flag)
}

// UseManualSessionHandling reports the manual-session flag.
func (s *State) UseManualSessionHandling() bool { return s.manualSessionHandling }

// SetAvailableCustomDimensions01 replaces the slot-1 whitelist and
// re-validates the current selection against it.
func (s *State) SetAvailableCustomDimensions01(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.availableDimensions01 = values
	s.ValidateAndFixCurrentDimensions()
	s.log.Infof("Set available custom01 dimension values: %v", values)
}

// SetAvailableCustomDimensions02 replaces the slot-2 whitelist and
// re-validates the current selection against it.
func (s *State) SetAvailableCustomDimensions02(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.availableDimensions02 = values
	s.ValidateAndFixCurrentDimensions()
	s.log.Infof("Set available custom02 dimension values: %v", values)
}

// SetAvailableCustomDimensions03 replaces the slot-3 whitelist and
// re-validates the current selection against it.
func (s *State) SetAvailableCustomDimensions03(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.availableDimensions03 = values
	s.ValidateAndFixCurrentDimensions()
	s.log.Infof("Set available custom03 dimension values: %v", values)
}

// SetAvailableResourceCurrencies replaces the resource-currency whitelist.
func (s *State) SetAvailableResourceCurrencies(values []string) {
	if !validate.ResourceCurrencies(values) {
		return
	}
	s.availableResourceCurrencies = values
	s.log.Infof("Set available resource currencies: %v", values)
}

// SetAvailableResourceItemTypes replaces the resource item-type whitelist.
func (s *State) SetAvailableResourceItemTypes(values []string) {
	if !validate.ResourceItemTypes(values) {
		return
	}
	s.availableResourceItemTypes = values
	s.log.Infof("Set available resource item types: %v", values)
}

// HasResourceCurrency reports resource-currency whitelist membership.
func (s *State) HasResourceCurrency(currency string) bool {
	return validate.Contains(s.availableResourceCurrencies, currency)
}

// HasResourceItemType reports resource item-type whitelist membership.
func (s *State) HasResourceItemType(itemType string) bool {
	return validate.Contains(s.availableResourceItemTypes, itemType)
}

// SetCustomDimension01 selects the slot-1 dimension value and persists it.
func (s *State) SetCustomDimension01(dimension string) {
	s.currentDimension01 = dimension
	s.persistState("dimension01", dimension)
	s.log.Infof("Set custom01 dimension value: %s", dimension)
}

// SetCustomDimension02 selects the slot-2 dimension value and persists it.
func (s *State) SetCustomDimension02(dimension string) {
	s.currentDimension02 = dimension
	s.persistState("dimension02", dimension)
	s.log.Infof("Set custom02 dimension value: %s", dimension)
}

// SetCustomDimension03 selects the slot-3 dimension value and persists it.
func (s *State) SetCustomDimension03(dimension string) {
	s.currentDimension03 = dimension
	s.persistState("dimension03", dimension)
	s.log.Infof("Set custom03 dimension value: %s", dimension)
}

// CurrentDimension01 returns the selected slot-1 value.
func (s *State) CurrentDimension01() string { return s.currentDimension01 }

// CurrentDimension02 returns the selected slot-2 value.
func (s *State) CurrentDimension02() string { return s.currentDimension02 }

// CurrentDimension03 returns the selected slot-3 value.
func (s *State) CurrentDimension03() string { return s.currentDimension03 }

// DimensionAllowed01 reports whether a value may be selected for slot 1.
func (s *State) DimensionAllowed01(v string) bool {
	return validate.DimensionAllowed(s.availableDimensions01, v)
}

// DimensionAllowed02 reports whether a value may be selected for slot 2.
func (s *State) DimensionAllowed02(v string) bool {
	return validate.DimensionAllowed(s.availableDimensions02, v)
}

// DimensionAllowed03 reports whether a value may be selected for slot 3.
func (s *State) DimensionAllowed03(v string) bool {
	return validate.DimensionAllowed(s.availableDimensions03, v)
}

// ValidateAndFixCurrentDimensions clears any selected dimension no longer in
// its whitelist. Runs after every whitelist change and once per session
// start.
func (s *State) ValidateAndFixCurrentDimensions() {
	if !s.DimensionAllowed01(s.currentDimension01) {
		s.log.Debugf("Invalid dimension01 found in variable. Setting to nil. Invalid dimension: %s", s.currentDimension01)
		s.SetCustomDimension01("")
	}
	if !s.DimensionAllowed02(s.currentDimension02) {
		s.log.Debugf("Invalid dimension02 found in variable. Setting to nil. Invalid dimension: %s", s.currentDimension02)
		s.SetCustomDimension02("")
	}
	if !s.DimensionAllowed03(s.currentDimension03) {
		s.log.Debugf("Invalid dimension03 found in variable. Setting to nil. Invalid dimension: %s", s.currentDimension03)
		s.SetCustomDimension03("")
	}
}

// IncrementProgressionTries bumps and persists the attempt counter for a
// progression funnel.
func (s *State) IncrementProgressionTries(progression string) {
	tries := s.ProgressionTries(progression) + 1
	s.progressionTries[progression] = tries
	if s.store != nil {
		_, _ = s.store.Execute("INSERT OR REPLACE INTO ga_progression (progression, tries) VALUES(?, ?);",
			progression, strconv.Itoa(tries))
	}
}

// ProgressionTries returns the attempt counter for a progression funnel.
func (s *State) ProgressionTries(progression string) int {
	return s.progressionTries[progression]
}

// ClearProgressionTries deletes the attempt counter for a completed funnel.
func (s *State) ClearProgressionTries(progression string) {
	delete(s.progressionTries, progression)
	if s.store != nil {
		_, _ = s.store.Execute("DELETE FROM ga_progression WHERE progression = ?;", progression)
	}
}

// EnsurePersistedStates loads all cross-session values from the store:
// default user id (generated and persisted on first run), counters,
// demographics, dimension selections, cached init config and progression
// tries.
func (s *State) EnsurePersistedStates() {
	stateDict := make(map[string]string)
	if rows, err := s.store.Execute("SELECT * FROM ga_state;"); err == nil {
		for _, row := range rows {
			key, _ := row["key"].(string)
			value, _ := row["value"].(string)
			stateDict[key] = value
		}
	}

	if id := stateDict["default_user_id"]; id != "" {
		s.SetDefaultUserID(id)
	} else {
		s.SetDefaultUserID(uuid.NewString())
	}

	s.sessionNum = parseInt64(stateDict["session_num"])
	s.transactionNum = parseInt64(stateDict["transaction_num"])

	s.facebookID = stateDict["facebook_id"]
	if s.facebookID != "" {
		s.log.Debugf("facebook id found in DB: %s", s.facebookID)
	}
	s.gender = stateDict["gender"]
	if s.gender != "" {
		s.log.Debugf("gender found in DB: %s", s.gender)
	}
	s.birthYear = int(parseInt64(stateDict["birth_year"]))
	if s.birthYear != 0 {
		s.log.Debugf("birth year found in DB: %d", s.birthYear)
	}

	s.currentDimension01 = stateDict["dimension01"]
	if s.currentDimension01 != "" {
		s.log.Debugf("Dimension01 found in cache: %s", s.currentDimension01)
	}
	s.currentDimension02 = stateDict["dimension02"]
	if s.currentDimension02 != "" {
		s.log.Debugf("Dimension02 found in cache: %s", s.currentDimension02)
	}
	s.currentDimension03 = stateDict["dimension03"]
	if s.currentDimension03 != "" {
		s.log.Debugf("Dimension03 found in cache: %s", s.currentDimension03)
	}

	s.loadCachedConfig(stateDict["sdk_config_cached"])

	if rows, err := s.store.Execute("SELECT * FROM ga_progression;"); err == nil {
		for _, row := range rows {
			progression, _ := row["progression"].(string)
			tries, _ := row["tries"].(string)
			s.progressionTries[progression] = int(parseInt64(tries))
		}
	}
}

// PersistDefaultUserID writes the resolved default id back so it survives
// restarts.
func (s *State) PersistDefaultUserID() {
	s.persistState("default_user_id", s.defaultUserID)
}

func parseInt64(v string) int64 {
	if v == "" {
		return 0
	}
	// Some legacy writers stored counters as floats.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}
