// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package trace provides request-scoped trace collection for engine
// operations. A Collector accumulates structured events, counters and
// gauges while an operation runs and renders them into a stable v1
// result document on Finish. A nil *Collector is the disabled mode:
// every method is a no-op, so call sites never need to guard.
package trace

import (
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion identifies the result document layout.
const SchemaVersion = "v1"

// DefaultMaxEvents caps the event list per collector. Counters and
// gauges keep accumulating after the cap; only events are dropped.
const DefaultMaxEvents = 500

// Event is a single timestamped trace entry. TSMs is milliseconds
// since the collector was created, rounded to microsecond precision.
type Event struct {
	Stage  string         `json:"stage"`
	Name   string         `json:"name"`
	TSMs   float64        `json:"ts_ms"`
	Status string         `json:"status"`
	Attrs  map[string]any `json:"attrs"`
}

// TokenUsage aggregates LLM token counts across all calls made while
// the collector was bound.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// VectorStats summarises vector index activity.
type VectorStats struct {
	SearchCalls              int    `json:"search_calls"`
	CandidatesScored         int    `json:"candidates_scored"`
	CandidatesAfterThreshold int    `json:"candidates_after_threshold"`
	Returned                 int    `json:"returned"`
	VectorsScanned           int    `json:"vectors_scanned"`
	ScanUnavailableReason    string `json:"scan_unavailable_reason"`
}

// SemanticNodes reports pipeline progress for the touched subtree.
// Fields are pointers so an operation that never published them renders
// null rather than a misleading zero.
type SemanticNodes struct {
	TotalNodes      *int `json:"total_nodes"`
	DoneNodes       *int `json:"done_nodes"`
	PendingNodes    *int `json:"pending_nodes"`
	InProgressNodes *int `json:"in_progress_nodes"`
}

// MemoryStats reports session-distillation output.
type MemoryStats struct {
	MemoriesExtracted *int `json:"memories_extracted"`
}

// ErrorDetail carries the first-class error slot. Empty strings mean
// the operation finished without recording an error.
type ErrorDetail struct {
	ErrorStage string `json:"error_stage"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

// Summary is the normalised header of a trace result.
type Summary struct {
	TraceID         string        `json:"trace_id"`
	Operation       string        `json:"operation"`
	Status          string        `json:"status"`
	TotalDurationMS float64       `json:"total_duration_ms"`
	TokenUsage      TokenUsage    `json:"token_usage"`
	Vector          VectorStats   `json:"vector"`
	SemanticNodes   SemanticNodes `json:"semantic_nodes"`
	Memory          MemoryStats   `json:"memory"`
	Errors          ErrorDetail   `json:"errors"`
	EventsTruncated bool          `json:"events_truncated"`
	DroppedEvents   int           `json:"dropped_events"`
}

// Result is the finished trace document.
type Result struct {
	SchemaVersion string  `json:"schema_version"`
	Summary       Summary `json:"summary"`
	Events        []Event `json:"events"`
}

// Collector accumulates trace data for one operation. Safe for
// concurrent use. The zero value is not usable; construct with
// NewCollector. A nil Collector is valid and ignores all calls.
type Collector struct {
	operation string
	traceID   string
	maxEvents int
	start     time.Time

	mu       sync.Mutex
	events   []Event
	counters map[string]float64
	gauges   map[string]any
	dropped  int

	errStage   string
	errCode    string
	errMessage string
}

// NewCollector returns an enabled collector for the named operation
// with the default event cap.
func NewCollector(operation string) *Collector {
	return NewCollectorLimit(operation, DefaultMaxEvents)
}

// NewCollectorLimit is NewCollector with an explicit event cap.
func NewCollectorLimit(operation string, maxEvents int) *Collector {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Collector{
		operation: operation,
		traceID:   newTraceID(),
		maxEvents: maxEvents,
		start:     time.Now(),
		counters:  make(map[string]float64),
		gauges:    make(map[string]any),
	}
}

func newTraceID() string {
	id := uuid.New()
	return "tr_" + hex.EncodeToString(id[:])
}

// Enabled reports whether calls on this collector are recorded.
func (c *Collector) Enabled() bool { return c != nil }

// TraceID returns the collector's id, or "" for a nil collector.
func (c *Collector) TraceID() string {
	if c == nil {
		return ""
	}
	return c.traceID
}

// Event records an ok-status event.
func (c *Collector) Event(stage, name string, attrs map[string]any) {
	c.EventStatus(stage, name, "ok", attrs)
}

// EventStatus records an event with an explicit status. Once the event
// cap is reached further events are counted as dropped, not stored.
func (c *Collector) EventStatus(stage, name, status string, attrs map[string]any) {
	if c == nil {
		return
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	elapsed := time.Since(c.start)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.maxEvents {
		c.dropped++
		return
	}
	c.events = append(c.events, Event{
		Stage:  stage,
		Name:   name,
		TSMs:   roundMS(elapsed),
		Status: status,
		Attrs:  attrs,
	})
}

// Count adds delta to a namespaced counter such as
// "vector.search_calls".
func (c *Collector) Count(key string, delta float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

// Set publishes a gauge value, overwriting any previous one.
func (c *Collector) Set(key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gauges[key] = value
	c.mu.Unlock()
}

// AddTokenUsage accumulates LLM token counts. Negative inputs count as
// zero.
func (c *Collector) AddTokenUsage(inputTokens, outputTokens int) {
	if c == nil {
		return
	}
	in := max(inputTokens, 0)
	out := max(outputTokens, 0)
	c.Count("token.input_tokens", float64(in))
	c.Count("token.output_tokens", float64(out))
	c.Count("token.total_tokens", float64(in+out))
}

// SetError records the error slot. A later call overwrites an earlier
// one, so callers should record at the failure site.
func (c *Collector) SetError(stage, code, message string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.errStage = stage
	c.errCode = code
	c.errMessage = message
	c.mu.Unlock()
}

// Finish freezes the collector into a result document. Returns nil for
// a nil collector. The collector may be finished more than once; each
// call snapshots the current state.
func (c *Collector) Finish(status string) *Result {
	if c == nil {
		return nil
	}
	duration := time.Since(c.start)
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]Event, len(c.events))
	copy(events, c.events)

	summary := Summary{
		TraceID:         c.traceID,
		Operation:       c.operation,
		Status:          status,
		TotalDurationMS: roundMS(duration),
		TokenUsage: TokenUsage{
			InputTokens:  c.counterInt("token.input_tokens"),
			OutputTokens: c.counterInt("token.output_tokens"),
			TotalTokens:  c.counterInt("token.total_tokens"),
		},
		Vector: VectorStats{
			SearchCalls:              c.counterInt("vector.search_calls"),
			CandidatesScored:         c.counterInt("vector.candidates_scored"),
			CandidatesAfterThreshold: c.counterInt("vector.candidates_after_threshold"),
			Returned:                 c.gaugeOrCounter("vector.returned"),
			VectorsScanned:           c.gaugeOrCounter("vector.vectors_scanned"),
			ScanUnavailableReason:    c.gaugeString("vector.scan_unavailable_reason"),
		},
		SemanticNodes: SemanticNodes{
			TotalNodes:      c.gaugeIntPtr("semantic_nodes.total_nodes"),
			DoneNodes:       c.gaugeIntPtr("semantic_nodes.done_nodes"),
			PendingNodes:    c.gaugeIntPtr("semantic_nodes.pending_nodes"),
			InProgressNodes: c.gaugeIntPtr("semantic_nodes.in_progress_nodes"),
		},
		Memory: MemoryStats{
			MemoriesExtracted: c.memoriesExtracted(),
		},
		Errors: ErrorDetail{
			ErrorStage: c.errStage,
			ErrorCode:  c.errCode,
			Message:    c.errMessage,
		},
		EventsTruncated: c.dropped > 0,
		DroppedEvents:   c.dropped,
	}
	return &Result{SchemaVersion: SchemaVersion, Summary: summary, Events: events}
}

// counterInt reads a counter as a truncated int. Callers hold c.mu.
func (c *Collector) counterInt(key string) int {
	return int(c.counters[key])
}

// gaugeOrCounter prefers the gauge value, falling back to the counter.
func (c *Collector) gaugeOrCounter(key string) int {
	if v, ok := c.gauges[key]; ok {
		if n, ok := asInt(v); ok {
			return n
		}
	}
	return c.counterInt(key)
}

func (c *Collector) gaugeString(key string) string {
	if v, ok := c.gauges[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c *Collector) gaugeIntPtr(key string) *int {
	v, ok := c.gauges[key]
	if !ok {
		return nil
	}
	n, ok := asInt(v)
	if !ok {
		return nil
	}
	return &n
}

// memoriesExtracted prefers the gauge and falls back to the counter,
// staying null when neither was recorded.
func (c *Collector) memoriesExtracted() *int {
	if p := c.gaugeIntPtr("memory.memories_extracted"); p != nil {
		return p
	}
	if v, ok := c.counters["memory.memories_extracted"]; ok {
		n := int(v)
		return &n
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*1000) / 1000
}
