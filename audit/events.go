// Package audit records blocked checks as security events and forwards the serious ones
// to outward notification services.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

const (
	// EventKeyPrefix prefixes each event key, followed by the event id
	EventKeyPrefix = "security:event:"
	// EventsListKey holds the ids of the most recent events, newest first
	EventsListKey = "security:events"
	// EventTTL is how long a single event is kept
	EventTTL = 24 * time.Hour
	// MaxRecent caps EventsListKey
	MaxRecent = 1000
)

// Event is one blocked check together with the request it was raised for.
type Event struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	IP        string         `json:"ip"`
	Method    string         `json:"method"`
	Path      string         `json:"path"`
	UserAgent string         `json:"userAgent"`
	Type      core.CheckType `json:"type"`
	Severity  core.Severity  `json:"severity"`
	RuleID    string         `json:"ruleId"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
	Mode      core.Mode      `json:"mode"`
}

// NewEvent builds an event for a blocked check.
func NewEvent(sc *core.SecurityContext, check *core.Check, mode core.Mode) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: sc.Timestamp,
		IP:        sc.IP,
		Method:    sc.Method,
		Path:      sc.Path,
		UserAgent: sc.UserAgent,
		Type:      check.Type,
		Severity:  check.Severity,
		RuleID:    check.RuleID,
		Reason:    check.Reason,
		Details:   check.Details,
		Mode:      mode,
	}
}

// Recorder writes events to the KV store.
type Recorder struct {
	kv  store.KV
	log logrus.FieldLogger
}

// NewRecorder creates a recorder over kv.
func NewRecorder(kv store.KV, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{kv: kv, log: log}
}

// Record stores ev and pushes its id onto the capped recent list.
func (r *Recorder) Record(ctx context.Context, ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.WithError(err).WithField("rule", ev.RuleID).Warn("failed to encode security event")
		return
	}
	r.kv.Set(ctx, EventKeyPrefix+ev.ID, string(data), EventTTL)
	r.kv.LPush(ctx, EventsListKey, ev.ID)
	r.kv.LTrim(ctx, EventsListKey, 0, MaxRecent-1)

	r.log.WithFields(logrus.Fields{
		"event":    ev.ID,
		"type":     ev.Type,
		"severity": ev.Severity,
		"rule":     ev.RuleID,
		"ip":       ev.IP,
		"path":     ev.Path,
	}).Info("security event")
}

// Get loads one event.
func (r *Recorder) Get(ctx context.Context, id string) (*Event, bool) {
	raw, ok := r.kv.Get(ctx, EventKeyPrefix+id)
	if !ok {
		return nil, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		r.log.WithError(err).WithField("event", id).Warn("unreadable security event")
		return nil, false
	}
	return &ev, true
}

// Recent returns up to limit of the newest events. Ids whose event has expired are skipped.
func (r *Recorder) Recent(ctx context.Context, limit int) []*Event {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	ids := r.kv.LRange(ctx, EventsListKey, 0, int64(limit-1))
	if len(ids) == 0 {
		return []*Event{}
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = EventKeyPrefix + id
	}

	events := make([]*Event, 0, len(ids))
	for i, raw := range r.kv.MGet(ctx, keys...) {
		if raw == nil {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(*raw), &ev); err != nil {
			r.log.WithError(err).WithField("event", ids[i]).Debug("skipping unreadable security event")
			continue
		}
		events = append(events, &ev)
	}
	return events
}
