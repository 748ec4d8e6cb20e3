// Package sink fans watch lifecycle and decision events out to durable
// stores. Sinks are append-only; consumers tail the file or query the DB.
package sink

import (
	"time"

	"github.com/google/uuid"

	"anchorwatch/internal/logger"
	"anchorwatch/internal/watcher"
)

type Type string

const (
	TypeWatchStarted   Type = "WATCH_STARTED"
	TypeDecision       Type = "DECISION"
	TypeTopUpSignal    Type = "TOP_UP_SIGNAL"
	TypeWatchCompleted Type = "WATCH_COMPLETED"
	TypeWatchExpired   Type = "WATCH_EXPIRED"
	TypeWatchAborted   Type = "WATCH_ABORTED"
)

// Event is one emitted record. Telemetry carries the decision's numeric
// context verbatim so downstream analysis never has to re-derive it.
type Event struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`

	Action     watcher.Action `json:"action,omitempty"`
	Reason     watcher.Reason `json:"reason,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	State      watcher.State  `json:"state,omitempty"`

	Telemetry map[string]any `json:"telemetry,omitempty"`
}

type Sink interface {
	Append(evt Event) error
	Close() error
}

func NewDecision(e *watcher.Entry, d watcher.Decision, at time.Time) Event {
	evtType := TypeDecision
	if d.Action == watcher.ActionEligible {
		evtType = TypeTopUpSignal
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       evtType,
		Symbol:     e.Symbol,
		At:         at,
		Action:     d.Action,
		Reason:     d.Reason,
		Reasoning:  d.Reasoning,
		Confidence: d.Confidence,
		State:      e.State,
		Telemetry:  d.Telemetry,
	}
}

func NewLifecycle(evtType Type, e *watcher.Entry, at time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   evtType,
		Symbol: e.Symbol,
		At:     at,
		State:  e.State,
	}
}

// Multi appends to every sink, logging and swallowing individual failures.
// Event emission must never stall a watch tick.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

func (m *Multi) Append(evt Event) error {
	for _, s := range m.sinks {
		if err := s.Append(evt); err != nil {
			logger.Errorf("event sink append failed (type=%s symbol=%s): %v", evt.Type, evt.Symbol, err)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
