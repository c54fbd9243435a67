package models

import "time"

// Outcome is the terminal state of an orchestrated request.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// GenerationRecord tracks one orchestrated request. ID is assigned by the
// history store; RequestID is caller supplied and need not be unique.
type GenerationRecord struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	Topic       string    `json:"topic"`
	Colors      string    `json:"colors,omitempty"`
	StyleID     int       `json:"style_id"`
	Outcome     Outcome   `json:"outcome"`
	FailureKind string    `json:"failure_kind,omitempty"`
	CacheHit    bool      `json:"cache_hit"`
	IconCount   int       `json:"icon_count"`
	LatencyMs   int64     `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerationSummary aggregates records per style and outcome.
type GenerationSummary struct {
	StyleID      int     `json:"style_id"`
	Outcome      Outcome `json:"outcome"`
	RequestCount int     `json:"request_count"`
	CacheHits    int     `json:"cache_hits"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
