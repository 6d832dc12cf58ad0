package audio

import "math"

const fullScale = 32768.0

// Peak returns the largest absolute sample normalized to 0..1.
func Peak(pcm []int16) float64 {
	var peak float64
	for _, s := range pcm {
		v := math.Abs(float64(s)) / fullScale
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root mean square level normalized to 0..1.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// Meter keeps a smoothed level for a speaking indicator. Rises are taken
// immediately and falls decay by Release per frame.
type Meter struct {
	Release float64
	level   float64
}

// NewMeter returns a meter with a release suited to 20ms frames.
func NewMeter() *Meter {
	return &Meter{Release: 0.15}
}

// Update feeds one frame and returns the smoothed level.
func (m *Meter) Update(pcm []int16) float64 {
	peak := Peak(pcm)
	if peak >= m.level {
		m.level = peak
	} else {
		m.level = math.Max(peak, m.level-m.Release)
	}
	return m.level
}

// Level returns the current smoothed level.
func (m *Meter) Level() float64 {
	return m.level
}

// ApplyGain scales samples in place, clipping at full scale.
func ApplyGain(pcm []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range pcm {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		pcm[i] = int16(v)
	}
}
