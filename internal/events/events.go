// Package events turns validated host calls into durable outbox rows and
// durable rows into collector batches. It owns the event categories, the
// default-annotation merge, the custom-field cleaning rules and the
// claim/putback outbox protocol.
//
// Everything here runs on the SDK's worker goroutine; only the SDK-error
// side channel detaches.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gamesignals/beacon/internal/httpapi"
	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/scheduler"
	"github.com/gamesignals/beacon/internal/state"
	"github.com/gamesignals/beacon/internal/store"
	"github.com/gamesignals/beacon/internal/telemetry"
	"github.com/gamesignals/beacon/internal/validate"
)

// Event categories on the wire.
const (
	CategorySessionStart = "user"
	CategorySessionEnd   = "session_end"
	CategoryDesign       = "design"
	CategoryBusiness     = "business"
	CategoryProgression  = "progression"
	CategoryResource     = "resource"
	CategoryError        = "error"
)

// ResourceFlowType distinguishes resource gains from spends.
type ResourceFlowType int

// Resource flow types.
const (
	FlowSource ResourceFlowType = iota + 1
	FlowSink
)

// String returns the wire value.
func (t ResourceFlowType) String() string {
	switch t {
	case FlowSource:
		return "Source"
	case FlowSink:
		return "Sink"
	}
	return ""
}

// ProgressionStatus tags progression funnel transitions.
type ProgressionStatus int

// Progression statuses.
const (
	ProgressionStart ProgressionStatus = iota + 1
	ProgressionComplete
	ProgressionFail
)

// String returns the wire value.
func (s ProgressionStatus) String() string {
	switch s {
	case ProgressionStart:
		return "Start"
	case ProgressionComplete:
		return "Complete"
	case ProgressionFail:
		return "Fail"
	}
	return ""
}

// ErrorSeverity grades error events.
type ErrorSeverity int

// Error severities.
const (
	SeverityDebug ErrorSeverity = iota + 1
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the wire value.
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	}
	return ""
}

// Transport is the collector capability the dispatcher consumes. Implemented
// by httpapi.Client; tests substitute stubs.
type Transport interface {
	RequestInit(annotations map[string]any) (httpapi.Response, map[string]any)
	SendEvents(events []json.RawMessage) (httpapi.Response, []any)
	SendSdkError(annotations map[string]any, t httpapi.ErrorType)
}

// Dispatcher is the event batcher: it validates and stores events, runs the
// periodic flush timer, and reconciles outbox rows with network outcomes.
type Dispatcher struct {
	log       *logging.Logger
	store     *store.Store
	state     *state.State
	sched     *scheduler.Scheduler
	transport Transport
	metrics   *telemetry.Metrics

	// Flush-timer flags, touched only on the worker goroutine.
	isRunning   bool
	keepRunning bool
}

// New wires a Dispatcher. metrics may be nil.
func New(st *store.Store, ses *state.State, sched *scheduler.Scheduler, tr Transport, m *telemetry.Metrics, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		log:       log,
		store:     st,
		state:     ses,
		sched:     sched,
		transport: tr,
		metrics:   m,
	}
}

// AddSessionStartEvent records the "user" event opening a session, persists
// the bumped session counter, and flushes the category immediately.
func (d *Dispatcher) AddSessionStartEvent() {
	event := map[string]any{"category": CategorySessionStart}

	d.state.IncrementSessionNum()
	_, _ = d.store.Execute("INSERT OR REPLACE INTO ga_state (key, value) VALUES(?, ?);",
		"session_num", strconv.FormatInt(d.state.SessionNum(), 10))

	d.addDimensions(event)
	d.addEventToStore(event)

	d.log.Info("Add SESSION START event")

	d.ProcessEvents(CategorySessionStart, false)
}

// AddSessionEndEvent records the closing event with the session's length.
// Negative lengths (device clock alterations) clamp to zero.
func (d *Dispatcher) AddSessionEndEvent() {
	length := d.state.ClientTsAdjusted() - d.state.SessionStart()
	if length < 0 {
		d.log.Warning("Session length was calculated to be less than 0. Should not be possible. Resetting to 0.")
		length = 0
	}

	event := map[string]any{
		"category": CategorySessionEnd,
		"length":   length,
	}
	d.addDimensions(event)
	d.addEventToStore(event)

	d.log.Info("Add SESSION END event.")

	d.ProcessEvents("", false)
}

// AddBusinessEvent records a real-money purchase. fields carries optional
// custom fields.
func (d *Dispatcher) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	if !d.validateBusinessEvent(currency, cartType, itemType, itemID) {
		d.rejectEvent()
		return
	}

	d.state.IncrementTransactionNum()
	_, _ = d.store.Execute("INSERT OR REPLACE INTO ga_state (key, value) VALUES(?, ?);",
		"transaction_num", strconv.FormatInt(d.state.TransactionNum(), 10))

	event := map[string]any{
		"event_id":        itemType + ":" + itemID,
		"category":        CategoryBusiness,
		"currency":        currency,
		"amount":          amount,
		"transaction_num": d.state.TransactionNum(),
	}
	if cartType != "" {
		event["cart_type"] = cartType
	}
	d.addDimensions(event)
	d.addCustomFields(event, fields)

	d.log.Infof("Add BUSINESS event: {currency:%s, amount:%d, itemType:%s, itemId:%s, cartType:%s}",
		currency, amount, itemType, itemID, cartType)

	d.addEventToStore(event)
}

// AddResourceEvent records a virtual-currency flow. Sink amounts are
// positive at the API and sign-flipped here, never in the validator.
func (d *Dispatcher) AddResourceEvent(flowType ResourceFlowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	if !d.validateResourceEvent(flowType, currency, amount, itemType, itemID) {
		d.rejectEvent()
		return
	}

	if flowType == FlowSink {
		amount = -amount
	}

	event := map[string]any{
		"event_id": fmt.Sprintf("%s:%s:%s:%s", flowType, currency, itemType, itemID),
		"category": CategoryResource,
		"amount":   amount,
	}
	d.addDimensions(event)
	d.addCustomFields(event, fields)

	d.log.Infof("Add RESOURCE event: {currency:%s, amount:%v, itemType:%s, itemId:%s}",
		currency, amount, itemType, itemID)

	d.addEventToStore(event)
}

// AddProgressionEvent records a funnel transition and maintains the
// persisted attempt counter: Fail increments, Complete increments, attaches
// attempt_num and clears.
func (d *Dispatcher) AddProgressionEvent(status ProgressionStatus, p1, p2, p3 string, score float64, sendScore bool, fields map[string]any) {
	if status.String() == "" || !validate.ProgressionParts(p1, p2, p3) {
		d.log.Warningf("Validation fail - progression event: {status:%s, progression01:%s, progression02:%s, progression03:%s}",
			status, p1, p2, p3)
		d.rejectEvent()
		return
	}

	identifier := p1
	if p2 != "" {
		identifier += ":" + p2
	}
	if p3 != "" {
		identifier += ":" + p3
	}

	event := map[string]any{
		"category": CategoryProgression,
		"event_id": status.String() + ":" + identifier,
	}

	if sendScore && status != ProgressionStart {
		event["score"] = score
	}

	var attemptNum int
	switch status {
	case ProgressionFail:
		d.state.IncrementProgressionTries(identifier)
	case ProgressionComplete:
		d.state.IncrementProgressionTries(identifier)
		attemptNum = d.state.ProgressionTries(identifier)
		event["attempt_num"] = attemptNum
		d.state.ClearProgressionTries(identifier)
	}

	d.addDimensions(event)
	d.addCustomFields(event, fields)

	d.log.Infof("Add PROGRESSION event: {status:%s, progression01:%s, progression02:%s, progression03:%s, score:%v, attempt:%d}",
		status, p1, p2, p3, score, attemptNum)

	d.addEventToStore(event)
}

// AddDesignEvent records a freeform design event with an optional value.
func (d *Dispatcher) AddDesignEvent(eventID string, value float64, sendValue bool, fields map[string]any) {
	if !validate.EventID(eventID) {
		d.log.Warningf("Validation fail - design event - eventId: Cannot be (null) or empty. Only 5 event parts allowed seperated by :. Each part need to be 64 characters or less. String: %s", eventID)
		d.rejectEvent()
		return
	}

	event := map[string]any{
		"category": CategoryDesign,
		"event_id": eventID,
	}
	if sendValue {
		event["value"] = value
	}
	d.addDimensions(event)
	d.addCustomFields(event, fields)

	d.log.Infof("Add DESIGN event: {eventId:%s, value:%v}", eventID, value)

	d.addEventToStore(event)
}

// AddErrorEvent records an error report of up to 8192 characters.
func (d *Dispatcher) AddErrorEvent(severity ErrorSeverity, message string, fields map[string]any) {
	if severity.String() == "" {
		d.log.Warning("Validation fail - error event - severity: Severity was unsupported value.")
		d.rejectEvent()
		return
	}
	if !validate.LongString(message, true) {
		d.log.Warningf("Validation fail - error event - message: Message cannot be above 8192 characters.")
		d.rejectEvent()
		return
	}

	event := map[string]any{
		"category": CategoryError,
		"severity": severity.String(),
		"message":  message,
	}
	d.addDimensions(event)
	d.addCustomFields(event, fields)

	d.log.Infof("Add ERROR event: {severity:%s}", severity)

	d.addEventToStore(event)
}

// rejectEvent fires the capped internal self-error report on its detached
// path.
func (d *Dispatcher) rejectEvent() {
	d.metrics.EventDropped("validation")
	d.transport.SendSdkError(d.state.SdkErrorAnnotations(), httpapi.ErrorTypeRejected)
}

// addDimensions attaches the currently selected custom dimensions.
func (d *Dispatcher) addDimensions(event map[string]any) {
	if v := d.state.CurrentDimension01(); v != "" {
		event["custom_01"] = v
	}
	if v := d.state.CurrentDimension02(); v != "" {
		event["custom_02"] = v
	}
	if v := d.state.CurrentDimension03(); v != "" {
		event["custom_03"] = v
	}
}

// addCustomFields attaches the cleaned caller-supplied fields, if any
// survive.
func (d *Dispatcher) addCustomFields(event map[string]any, fields map[string]any) {
	cleaned := CleanCustomFields(fields, d.log)
	if len(cleaned) > 0 {
		event["custom_fields"] = cleaned
	}
}

// addEventToStore merges the event-specific data over the default
// annotations and appends the result to the outbox, maintaining the session
// liveness row. Guards: store readiness, SDK initialization, the local kill
// switch, and the disk-size ceiling (which only user/session_end/business
// may pass).
func (d *Dispatcher) addEventToStore(eventData map[string]any) {
	if !d.store.Ready() {
		d.log.Warning("Could not add event: SDK datastore error")
		return
	}
	if !d.state.Initialized() {
		d.log.Warning("Could not add event: SDK is not initialized")
		return
	}
	if !d.state.EventSubmissionEnabled() {
		d.log.Warning("Could not add event: event submission is disabled")
		d.metrics.EventDropped("disabled")
		return
	}
	// Remote enablement and init authorization gate the pipeline too: a
	// collector that answered enabled:false (or refused the key pair) must
	// not accumulate outbox rows.
	if !d.state.IsEnabled() {
		d.log.Warning("Could not add event: SDK is disabled")
		d.metrics.EventDropped("disabled")
		return
	}

	category, _ := eventData["category"].(string)
	if d.store.TooLargeForEvents() && !priorityCategory(category) {
		d.log.Warning("Database too large. Event has been blocked.")
		d.metrics.EventDropped("db_too_large")
		return
	}

	annotations := d.state.EventAnnotations()
	defaults, err := json.Marshal(annotations)
	if err != nil {
		d.log.Warningf("Could not add event: annotation encoding failed: %v", err)
		return
	}

	// Event-specific data wins over defaults. Synthesized session_end
	// events are full snapshots, so their original identity survives the
	// merge.
	merged := make(map[string]any, len(annotations)+len(eventData))
	for k, v := range annotations {
		merged[k] = v
	}
	for k, v := range eventData {
		merged[k] = v
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		d.log.Warningf("Could not add event: encoding failed: %v", err)
		return
	}

	d.log.Verbose("Event added to queue: " + string(payload))

	sessionID, _ := merged["session_id"].(string)
	clientTs := timestampString(merged["client_ts"])

	_, _ = d.store.Execute(
		"INSERT INTO ga_events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?);",
		"new", category, sessionID, clientTs, string(payload))
	d.metrics.EventAdded(category)

	if category == CategorySessionEnd {
		_, _ = d.store.Execute("DELETE FROM ga_session WHERE session_id = ?;", sessionID)
	} else {
		_, _ = d.store.Execute(
			"INSERT OR REPLACE INTO ga_session(session_id, timestamp, event) VALUES(?, ?, ?);",
			sessionID, strconv.FormatInt(d.state.SessionStart(), 10), string(defaults))
	}
}

func priorityCategory(category string) bool {
	switch category {
	case CategorySessionStart, CategorySessionEnd, CategoryBusiness:
		return true
	}
	return false
}

// timestampString renders whatever client_ts survived the merge (int64 from
// fresh annotations, float64 from decoded snapshots) as the stored text
// column.
func timestampString(v any) string {
	switch ts := v.(type) {
	case int64:
		return strconv.FormatInt(ts, 10)
	case float64:
		return strconv.FormatInt(int64(ts), 10)
	case string:
		return ts
	}
	return "0"
}
