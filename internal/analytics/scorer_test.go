package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-insights/internal/validation"
)

func ms(v float64) *float64 { return &v }

func TestScoreWithoutSettlementEqualsSuccessRate(t *testing.T) {
	snap := DefaultScorer().Score(Counters{Total: 200, Successful: 190, Failed: 10})
	assert.InDelta(t, 95, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 5, snap.FailureRate, 1e-9)
	assert.InDelta(t, 95, snap.ReliabilityScore, 1e-9)
	assert.Equal(t, StatusDegraded, snap.Status, "exactly 95 is not healthy")
}

func TestScoreZeroTotal(t *testing.T) {
	snap := DefaultScorer().Score(Counters{})
	assert.Zero(t, snap.SuccessRate)
	assert.Zero(t, snap.FailureRate)
	assert.Zero(t, snap.ReliabilityScore)
	assert.Equal(t, StatusUnhealthy, snap.Status)
}

func TestScoreBlendsSettlement(t *testing.T) {
	s := DefaultScorer()
	snap := s.Score(Counters{Total: 100, Successful: 100, AvgSettlementMs: ms(5000)})
	// 0.8*100 + 0.2*50
	assert.InDelta(t, 90, snap.ReliabilityScore, 1e-9)
	assert.Equal(t, StatusDegraded, snap.Status)

	instant := s.Score(Counters{Total: 100, Successful: 100, AvgSettlementMs: ms(0)})
	assert.InDelta(t, 100, instant.ReliabilityScore, 1e-9)
	assert.Equal(t, StatusHealthy, instant.Status)
}

func TestScoreMonotonicity(t *testing.T) {
	s := DefaultScorer()
	prev := -1.0
	for successful := int64(0); successful <= 100; successful += 5 {
		score := s.Score(Counters{Total: 100, Successful: successful, Failed: 100 - successful, AvgSettlementMs: ms(2000)}).ReliabilityScore
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}

	prev = math.Inf(1)
	for _, settlement := range []float64{0, 100, 1000, 5000, 60000, 1e9} {
		score := s.Score(Counters{Total: 10, Successful: 9, Failed: 1, AvgSettlementMs: ms(settlement)}).ReliabilityScore
		assert.LessOrEqual(t, score, prev)
		prev = score
	}
}

func TestScoreBounds(t *testing.T) {
	scorers := []WeightedScorer{
		DefaultScorer(),
		{SuccessWeight: 1, SettlementWeight: 0, TargetSettlementMs: 1},
		{SuccessWeight: 0, SettlementWeight: 3, TargetSettlementMs: 10},
	}
	inputs := []Counters{
		{Total: 1, Successful: 1},
		{Total: 1, Failed: 1, AvgSettlementMs: ms(1e12)},
		{Total: 5, Successful: 5, AvgSettlementMs: ms(-50)},
	}
	for _, s := range scorers {
		for _, c := range inputs {
			score := s.Score(c).ReliabilityScore
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
		}
	}
}

func TestStatusBoundaries(t *testing.T) {
	assert.Equal(t, StatusHealthy, StatusFor(95.0001))
	assert.Equal(t, StatusDegraded, StatusFor(95))
	assert.Equal(t, StatusDegraded, StatusFor(80.0001))
	assert.Equal(t, StatusUnhealthy, StatusFor(80))
	assert.Equal(t, StatusUnhealthy, StatusFor(0))
}

func TestCountersValidate(t *testing.T) {
	require.NoError(t, Counters{Total: 3, Successful: 2, Failed: 1, AvgSettlementMs: ms(10)}.Validate())

	bad := []Counters{
		{Total: -1},
		{Total: 1, Successful: -1},
		{Total: 1, Successful: 1, Failed: 1},
		{Total: 1, AvgSettlementMs: ms(math.NaN())},
		{Total: 1, AvgSettlementMs: ms(math.Inf(1))},
	}
	for i, c := range bad {
		var verr *validation.Error
		assert.True(t, errors.As(c.Validate(), &verr), "case %d", i)
	}
}
