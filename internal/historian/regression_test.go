package historian

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearRegressionPerfectFit(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{10, 12, 14, 16}

	slope, intercept, rSquared := linearRegression(xs, ys)
	assert.InDelta(t, 2.0, slope, 0.001)
	assert.InDelta(t, 10.0, intercept, 0.001)
	assert.InDelta(t, 1.0, rSquared, 0.001)
}

func TestLinearRegressionNoisyFitLowConfidence(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{10, 30, 5, 25, 15}

	_, _, rSquared := linearRegression(xs, ys)
	assert.Less(t, rSquared, 0.3)
}

func TestLinearRegressionInsufficientPoints(t *testing.T) {
	slope, intercept, rSquared := linearRegression([]float64{1}, []float64{1})
	assert.Zero(t, slope)
	assert.Zero(t, intercept)
	assert.Zero(t, rSquared)
}
