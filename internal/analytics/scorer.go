// Package analytics derives reliability snapshots and multiplexed account usage from raw counters.
package analytics

import (
	"math"

	"stellar-insights/internal/validation"
)

// Status is the health label of an anchor.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	healthyAbove  = 95.0
	degradedAbove = 80.0
)

// Counters are the raw inputs of a reliability score.
type Counters struct {
	Total           int64
	Successful      int64
	Failed          int64
	AvgSettlementMs *float64
}

// Validate rejects counters no real activity could produce.
func (c Counters) Validate() error {
	if err := validation.NonNegative("total", c.Total); err != nil {
		return err
	}
	if err := validation.NonNegative("successful", c.Successful); err != nil {
		return err
	}
	if err := validation.NonNegative("failed", c.Failed); err != nil {
		return err
	}
	if c.Successful+c.Failed > c.Total {
		return &validation.Error{Param: "successful", Reason: "successful plus failed exceeds total"}
	}
	if c.AvgSettlementMs != nil {
		if err := validation.Range("avg_settlement_ms", *c.AvgSettlementMs, 0, math.MaxFloat64); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is the derived reliability view of an anchor.
type Snapshot struct {
	Total            int64    `json:"total_transactions"`
	Successful       int64    `json:"successful_transactions"`
	Failed           int64    `json:"failed_transactions"`
	AvgSettlementMs  *float64 `json:"avg_settlement_time_ms,omitempty"`
	SuccessRate      float64  `json:"success_rate"`
	FailureRate      float64  `json:"failure_rate"`
	ReliabilityScore float64  `json:"reliability_score"`
	Status           Status   `json:"status"`
}

// Scorer turns counters into a snapshot.
type Scorer interface {
	Score(c Counters) Snapshot
}

// WeightedScorer blends success rate with settlement speed.
type WeightedScorer struct {
	SuccessWeight      float64
	SettlementWeight   float64
	TargetSettlementMs float64
}

// DefaultScorer returns the stock weighting.
func DefaultScorer() WeightedScorer {
	return WeightedScorer{SuccessWeight: 0.8, SettlementWeight: 0.2, TargetSettlementMs: 5000}
}

// Score is a pure function of c; the score stays within [0, 100].
func (w WeightedScorer) Score(c Counters) Snapshot {
	snap := Snapshot{
		Total:           c.Total,
		Successful:      c.Successful,
		Failed:          c.Failed,
		AvgSettlementMs: c.AvgSettlementMs,
	}
	if c.Total > 0 {
		snap.SuccessRate = float64(c.Successful) / float64(c.Total) * 100
		snap.FailureRate = float64(c.Failed) / float64(c.Total) * 100
	}

	score := snap.SuccessRate
	weights := w.SuccessWeight + w.SettlementWeight
	if c.AvgSettlementMs != nil && weights > 0 && w.TargetSettlementMs > 0 {
		t := math.Max(*c.AvgSettlementMs, 0)
		speed := 100 * w.TargetSettlementMs / (w.TargetSettlementMs + t)
		score = (w.SuccessWeight*snap.SuccessRate + w.SettlementWeight*speed) / weights
	}
	snap.ReliabilityScore = clamp(score, 0, 100)
	snap.Status = StatusFor(snap.ReliabilityScore)
	return snap
}

// StatusFor maps a score to its status; boundary values take the lower status.
func StatusFor(score float64) Status {
	switch {
	case score > healthyAbove:
		return StatusHealthy
	case score > degradedAbove:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

var _ Scorer = WeightedScorer{}
