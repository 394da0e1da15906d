package historian

// linearRegression fits y = slope*x + intercept over (xs, ys) by ordinary
// least squares and reports R-squared as a goodness-of-fit confidence: a
// two-sample trend (first reading vs. latest) is sensitive to a single
// noisy sample at either end, so every multi-sample trend here is fit
// across the whole window instead.
func linearRegression(xs, ys []float64) (slope, intercept, rSquared float64) {
	n := float64(len(xs))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i := range xs {
		predicted := slope*xs[i] + intercept
		diff := ys[i] - meanY
		ssTot += diff * diff
		res := ys[i] - predicted
		ssRes += res * res
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	rSquared = 1 - (ssRes / ssTot)
	return slope, intercept, rSquared
}
