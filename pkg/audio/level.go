package audio

import "math"

// LevelOf computes the RMS energy of samples and maps it onto [0, 100] for
// visual feedback. The mapping is logarithmic over a 60 dB range so quiet
// speech still moves the meter: -60 dBFS or below is 0, full scale is 100.
func LevelOf(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if v != v {
			continue
		}
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	level := (db + 60) / 60 * 100
	return min(max(level, 0), 100)
}
