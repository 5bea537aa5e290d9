package metrics

import "math"

// WelfordState accumulates a running mean and variance with Welford's online
// algorithm: O(1) per observation, no stored samples, numerically stable.
type WelfordState struct {
	Count int
	Mean  float64
	M2    float64 // sum of squared differences from the running mean
}

// ResumeWelford rebuilds a state from persisted statistics so learning can
// continue across restarts. M2 comes back from stddev^2 * n.
func ResumeWelford(mean, stddev float64, count int) *WelfordState {
	if count == 0 {
		return &WelfordState{}
	}
	return &WelfordState{
		Count: count,
		Mean:  mean,
		M2:    stddev * stddev * float64(count),
	}
}

// Update folds one observation into the running statistics.
func (w *WelfordState) Update(value float64) {
	w.Count++
	delta := value - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (value - w.Mean)
}

// StdDev returns the population standard deviation, or 0 with fewer than
// two observations.
func (w *WelfordState) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}
