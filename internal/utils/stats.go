package utils

import "math"

// RoundFloat rounds val to precision decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// ErrorStats returns the mean absolute error and root mean squared error between predicted
// and actual. Extra elements of the longer slice are ignored.
func ErrorStats(predicted, actual []float64) (float64, float64) {
	n := len(predicted)
	if len(actual) < n {
		n = len(actual)
	}
	if n == 0 {
		return 0, 0
	}

	absSum := 0.0
	sqSum := 0.0
	for i := 0; i < n; i++ {
		d := predicted[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	return RoundFloat(absSum/float64(n), 4), RoundFloat(math.Sqrt(sqSum/float64(n)), 4)
}
