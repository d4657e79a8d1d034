package loadtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePatternSteadyReturnsBase(t *testing.T) {
	assert.Equal(t, 100, GeneratePattern(PatternSteady, 100, 0.5))
}

func TestGeneratePatternPeakAddsAmplitude(t *testing.T) {
	assert.Equal(t, 150, GeneratePattern(PatternPeak, 100, 0.5))
}

func TestGeneratePatternValleySubtractsAmplitude(t *testing.T) {
	assert.Equal(t, 50, GeneratePattern(PatternValley, 100, 0.5))
}

func TestGeneratePatternSpikeStaysWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := GeneratePattern(PatternSpike, 100, 0.5)
		assert.True(t, v == 100 || v == 200)
	}
}

func TestGeneratePatternGradualStaysNearBase(t *testing.T) {
	v := GeneratePattern(PatternGradual, 100, 0.5)
	assert.InDelta(t, 100, v, 50)
}
