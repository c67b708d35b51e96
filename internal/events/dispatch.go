package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gamesignals/beacon/internal/httpapi"
)

const (
	// ProcessEventsInterval is the periodic flush cadence.
	ProcessEventsInterval = 8 * time.Second

	// MaxEventCount caps how many events one dispatch batch may claim.
	MaxEventCount = 500
)

// EnsureQueueRunning starts the periodic flush if it is not already running.
// Idempotent; runs on the worker goroutine.
func (d *Dispatcher) EnsureQueueRunning() {
	d.keepRunning = true
	if !d.isRunning {
		d.isRunning = true
		d.scheduleTick()
	}
}

// StopQueue asks the periodic flush to stop at its next tick.
func (d *Dispatcher) StopQueue() {
	d.keepRunning = false
}

func (d *Dispatcher) scheduleTick() {
	d.sched.Schedule(ProcessEventsInterval, d.tick)
}

func (d *Dispatcher) tick() {
	if !d.keepRunning {
		d.isRunning = false
		return
	}
	d.ProcessEvents("", true)
	d.scheduleTick()
}

// ProcessEvents claims up to MaxEventCount queued rows (optionally restricted
// to one category), posts them to the collector and reconciles the rows with
// the outcome: delete on any definite answer, put back on silence. With
// performCleanup set it first recovers rows claimed by a crashed run and
// synthesizes session_end events for abandoned sessions.
func (d *Dispatcher) ProcessEvents(category string, performCleanup bool) {
	if !d.store.Ready() {
		return
	}

	var categoryFilter string
	if category != "" {
		categoryFilter = " AND category='" + category + "' "
	}

	if performCleanup {
		d.cleanupEvents()
		d.fixMissingSessionEndEvents()
	}

	selectSQL := "SELECT event FROM ga_events WHERE status = 'new' " + categoryFilter
	updateWhere := "WHERE status = 'new' " + categoryFilter

	// Oversized backlogs are drained oldest-first: bound the claim by the
	// client_ts of the MaxEventCount-th queued row.
	if counts, err := d.store.Execute("SELECT COUNT(*) AS cnt FROM ga_events WHERE status = 'new' " + categoryFilter + ";"); err == nil && len(counts) > 0 {
		if cnt := rowInt64(counts[0]["cnt"]); cnt > MaxEventCount {
			timestamps, err := d.store.Execute("SELECT client_ts FROM ga_events WHERE status = 'new' " + categoryFilter + " ORDER BY client_ts ASC LIMIT 0," + strconv.Itoa(MaxEventCount) + ";")
			if err != nil || len(timestamps) == 0 {
				return
			}
			lastTs, _ := timestamps[len(timestamps)-1]["client_ts"].(string)
			selectSQL += " AND client_ts<='" + lastTs + "'"
			updateWhere += " AND client_ts<='" + lastTs + "'"
		}
	}

	rows, err := d.store.Execute(selectSQL + ";")
	if err != nil || len(rows) == 0 {
		d.log.Info("Event queue: No events to send")
		d.updateSessionTime()
		return
	}

	// Claim the rows under a one-shot batch id so a crash between here and
	// the reconcile leaves them recoverable by the next cleanup.
	requestID := uuid.NewString()
	if _, err := d.store.ExecuteTx("UPDATE ga_events SET status = '" + requestID + "' " + updateWhere + ";"); err != nil {
		return
	}

	payload := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		raw, _ := row["event"].(string)
		if json.Valid([]byte(raw)) {
			payload = append(payload, json.RawMessage(raw))
		}
	}

	d.log.Infof("Event queue: Sending %d events.", len(payload))

	resp, body := d.transport.SendEvents(payload)
	d.metrics.BatchSent(len(payload), resp.String())

	switch resp {
	case httpapi.Ok:
		_, _ = d.store.ExecuteTx("DELETE FROM ga_events WHERE status = ?;", requestID)
		d.log.Infof("Event queue: %d events sent.", len(payload))

	case httpapi.NoResponse:
		d.log.Warning("Event queue: Failed to send events to collector - Retrying next time")
		_, _ = d.store.ExecuteTx("UPDATE ga_events SET status = 'new' WHERE status = ?;", requestID)

	default:
		if resp == httpapi.BadRequest && body != nil {
			d.log.Warningf("Event queue: %d events sent. %d events failed collector validation.", len(payload), len(body))
		} else {
			d.log.Warning("Event queue: Failed to send events.")
		}
		_, _ = d.store.ExecuteTx("DELETE FROM ga_events WHERE status = ?;", requestID)
	}

	d.updateSessionTime()
}

// updateSessionTime refreshes the running session's liveness snapshot so a
// later abandoned-session recovery sees the latest client_ts.
func (d *Dispatcher) updateSessionTime() {
	if !d.state.SessionIsStarted() {
		return
	}
	annotations, err := json.Marshal(d.state.EventAnnotations())
	if err != nil {
		return
	}
	_, _ = d.store.Execute(
		"INSERT OR REPLACE INTO ga_session(session_id, timestamp, event) VALUES(?, ?, ?);",
		d.state.SessionID(), strconv.FormatInt(d.state.SessionStart(), 10), string(annotations))
}

// cleanupEvents releases rows claimed by a run that never reconciled them.
func (d *Dispatcher) cleanupEvents() {
	_, _ = d.store.Execute("UPDATE ga_events SET status = 'new';")
}

// fixMissingSessionEndEvents synthesizes a session_end event for every
// session row left behind by a run that died before closing its session. The
// session length is reconstructed from the snapshot's client_ts and the
// recorded start; clock alterations can make it negative, which clamps to
// zero.
func (d *Dispatcher) fixMissingSessionEndEvents() {
	sessions, err := d.store.Execute("SELECT timestamp, event FROM ga_session WHERE session_id != ?;", d.state.SessionID())
	if err != nil || len(sessions) == 0 {
		return
	}

	d.log.Infof("%d session(s) located with missing session_end event.", len(sessions))

	for _, row := range sessions {
		raw, _ := row["event"].(string)
		var event map[string]any
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}

		startTs := rowInt64(row["timestamp"])
		endTs := rowInt64(event["client_ts"])
		length := endTs - startTs
		if length < 0 {
			d.log.Warning("Session length was calculated to be less than 0. Should not be possible. Resetting to 0.")
			length = 0
		}
		d.log.Debugf("fixMissingSessionEndEvents length calculated: %d", length)

		event["category"] = CategorySessionEnd
		event["length"] = length
		d.addEventToStore(event)
	}
}

func rowInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}
