package phases

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/ingestor/internal/model"
)

// TestStepAccumulatorDedupsPointsOfInterestAcrossWindows covers the case
// of a multi-window step where the same point of interest surfaces in
// every window: the merged entry must contain it exactly once, not once
// per window.
func TestStepAccumulatorDedupsPointsOfInterestAcrossWindows(t *testing.T) {
	acc := newStepAccumulator(3)
	for i := 0; i < 4; i++ {
		acc.merge(model.Finding{
			Summary:          "summary",
			PointsOfInterest: []string{"mechanic A", "  Mechanic A  "},
		}, "insight", 0.6)
	}

	entry := acc.finalize()
	assert.Equal(t, 3, entry.StepID)
	assert.Equal(t, []string{"mechanic A"}, entry.Findings.PointsOfInterest)
}

// TestStepAccumulatorKeepsDistinctPointsOfInterest asserts genuinely
// distinct points across windows all survive.
func TestStepAccumulatorKeepsDistinctPointsOfInterest(t *testing.T) {
	acc := newStepAccumulator(1)
	acc.merge(model.Finding{PointsOfInterest: []string{"a"}}, "i1", 0.3)
	acc.merge(model.Finding{PointsOfInterest: []string{"b"}}, "i2", 0.8)

	entry := acc.finalize()
	assert.ElementsMatch(t, []string{"a", "b"}, entry.Findings.PointsOfInterest)
	assert.Equal(t, 0.8, entry.Confidence, "confidence should track the highest seen across windows")
}
