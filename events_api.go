package beacon

import (
	"github.com/gamesignals/beacon/internal/events"
	"github.com/gamesignals/beacon/internal/validate"
)

// ResourceFlowType distinguishes resource gains from spends.
type ResourceFlowType = events.ResourceFlowType

// Resource flow types.
const (
	FlowSource = events.FlowSource
	FlowSink   = events.FlowSink
)

// ProgressionStatus tags progression funnel transitions.
type ProgressionStatus = events.ProgressionStatus

// Progression statuses.
const (
	ProgressionStart    = events.ProgressionStart
	ProgressionComplete = events.ProgressionComplete
	ProgressionFail     = events.ProgressionFail
)

// ErrorSeverity grades error events.
type ErrorSeverity = events.ErrorSeverity

// Error severities.
const (
	SeverityDebug    = events.SeverityDebug
	SeverityInfo     = events.SeverityInfo
	SeverityWarning  = events.SeverityWarning
	SeverityError    = events.SeverityError
	SeverityCritical = events.SeverityCritical
)

// withEvents runs a task on the worker once event recording is possible.
func (s *SDK) withEvents(task func(d *events.Dispatcher)) {
	s.sched.Post(func() {
		if s.events == nil {
			s.log.Warning("Could not add event: SDK is not initialized")
			return
		}
		task(s.events)
	})
}

// AddBusinessEvent records a real-money purchase. amount is in cents;
// currency is an ISO 4217 code; cartType is an optional purchase-location
// tag. fields carries optional custom fields and may be nil.
func (s *SDK) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddBusinessEvent(currency, amount, itemType, itemID, cartType, fields)
	})
}

// AddResourceEvent records a virtual-currency flow. The currency and item
// type must be whitelisted via the Configure* calls; amount must be positive
// regardless of flow direction.
func (s *SDK) AddResourceEvent(flowType ResourceFlowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddResourceEvent(flowType, currency, amount, itemType, itemID, fields)
	})
}

// AddProgressionEvent records a progression funnel transition of up to three
// hierarchy parts; later parts require earlier ones.
func (s *SDK) AddProgressionEvent(status ProgressionStatus, progression01, progression02, progression03 string, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddProgressionEvent(status, progression01, progression02, progression03, 0, false, fields)
	})
}

// AddProgressionEventWithScore is AddProgressionEvent with a score attached
// to Complete and Fail transitions.
func (s *SDK) AddProgressionEventWithScore(status ProgressionStatus, progression01, progression02, progression03 string, score float64, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddProgressionEvent(status, progression01, progression02, progression03, score, true, fields)
	})
}

// AddDesignEvent records a freeform event id of up to five colon-separated
// parts.
func (s *SDK) AddDesignEvent(eventID string, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddDesignEvent(eventID, 0, false, fields)
	})
}

// AddDesignEventWithValue is AddDesignEvent with a numeric value attached.
func (s *SDK) AddDesignEventWithValue(eventID string, value float64, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddDesignEvent(eventID, value, true, fields)
	})
}

// AddErrorEvent records an error report of up to 8192 characters.
func (s *SDK) AddErrorEvent(severity ErrorSeverity, message string, fields map[string]any) {
	s.withEvents(func(d *events.Dispatcher) {
		d.AddErrorEvent(severity, message, fields)
	})
}

// SetCustomDimension01 selects the slot-1 dimension attached to subsequent
// events. Must be whitelisted; empty clears the selection.
func (s *SDK) SetCustomDimension01(dimension string) {
	s.sched.Post(func() {
		if !s.state.DimensionAllowed01(dimension) {
			s.log.Warningf("Validation fail - set custom dimension01: Not found in list of pre-defined available dimension01. String: %s", dimension)
			return
		}
		s.state.SetCustomDimension01(dimension)
	})
}

// SetCustomDimension02 selects the slot-2 dimension attached to subsequent
// events.
func (s *SDK) SetCustomDimension02(dimension string) {
	s.sched.Post(func() {
		if !s.state.DimensionAllowed02(dimension) {
			s.log.Warningf("Validation fail - set custom dimension02: Not found in list of pre-defined available dimension02. String: %s", dimension)
			return
		}
		s.state.SetCustomDimension02(dimension)
	})
}

// SetCustomDimension03 selects the slot-3 dimension attached to subsequent
// events.
func (s *SDK) SetCustomDimension03(dimension string) {
	s.sched.Post(func() {
		if !s.state.DimensionAllowed03(dimension) {
			s.log.Warningf("Validation fail - set custom dimension03: Not found in list of pre-defined available dimension03. String: %s", dimension)
			return
		}
		s.state.SetCustomDimension03(dimension)
	})
}

// SetFacebookID attaches a facebook id annotation to subsequent events.
func (s *SDK) SetFacebookID(id string) {
	s.sched.Post(func() {
		if !validate.FacebookID(id) {
			s.log.Warningf("Validation fail - set facebook id: Cannot be (null), empty or above 64 characters. String: %s", id)
			return
		}
		s.state.SetFacebookID(id)
	})
}

// SetGender attaches a gender annotation ("male" or "female") to subsequent
// events.
func (s *SDK) SetGender(gender string) {
	s.sched.Post(func() {
		if gender != "male" && gender != "female" {
			s.log.Warningf("Validation fail - set gender: Has to be 'male' or 'female'. Was: %s", gender)
			return
		}
		s.state.SetGender(gender)
	})
}

// SetBirthYear attaches a birth-year annotation to subsequent events.
func (s *SDK) SetBirthYear(year int) {
	s.sched.Post(func() {
		if !validate.BirthYear(year) {
			s.log.Warningf("Validation fail - set birth year: Cannot be negative or above 9999. Was: %d", year)
			return
		}
		s.state.SetBirthYear(year)
	})
}

// GetRemoteConfigValueAsString returns the active remote-config value for
// key, or defaultValue when the key is inactive or unknown. Synchronous and
// safe from any goroutine.
func (s *SDK) GetRemoteConfigValueAsString(key, defaultValue string) string {
	return s.state.RemoteConfigValue(key, defaultValue)
}

// IsRemoteConfigReady reports whether remote config has been populated this
// run (from the collector or the cached init response).
func (s *SDK) IsRemoteConfigReady() bool {
	return s.state.RemoteConfigReady()
}

// AddRemoteConfigListener registers a callback fired after every remote
// config (re)population. The callback runs on the worker goroutine and must
// not block.
func (s *SDK) AddRemoteConfigListener(fn func()) {
	s.state.AddRemoteConfigListener(fn)
}
