package loadtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileEmpty(t *testing.T) {
	assert.Equal(t, float64(0), percentile(nil, 95))
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, float64(42), percentile([]float64{42}, 50))
}

func TestPercentileInterpolatesBetweenRanks(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	assert.Equal(t, float64(30), percentile(values, 50))
	assert.InDelta(t, 46, percentile(values, 90), 0.1)
}

func TestPercentileUnsortedInputIsSorted(t *testing.T) {
	values := []float64{50, 10, 30, 20, 40}
	assert.Equal(t, float64(30), percentile(values, 50))
}
