package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	cases := []struct {
		wire string
		want Decision
	}{
		{"approve", DecisionReadyForLive},
		{"APPROVE", DecisionReadyForLive},
		{"ready_for_live", DecisionReadyForLive},
		{"modify", DecisionNeedsModification},
		{"Modify", DecisionNeedsModification},
		{"needs_modification", DecisionNeedsModification},
		{"archive", DecisionArchive},
		{"ARCHIVE", DecisionArchive},
	}
	for _, c := range cases {
		got, ok := ParseDecision(c.wire)
		require.True(t, ok, "wire=%q", c.wire)
		assert.Equal(t, c.want, got)
	}
}

func TestParseDecisionRejectsUnknown(t *testing.T) {
	_, ok := ParseDecision("do_something_else")
	assert.False(t, ok)
}

func TestSharpeOrMinusInf(t *testing.T) {
	finite := BacktestResult{SharpeRatio: 1.25}
	assert.Equal(t, 1.25, finite.SharpeOrMinusInf())

	nan := BacktestResult{SharpeRatio: math.NaN()}
	assert.Less(t, nan.SharpeOrMinusInf(), -1e300)

	zero := BacktestResult{}
	assert.Equal(t, 0.0, zero.SharpeOrMinusInf())
}

func TestRunStatusIsTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "status=%s", s)
	}
	nonTerminal := []RunStatus{RunStatusPending, RunStatusRunning, RunStatusPaused}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "status=%s", s)
	}
}
