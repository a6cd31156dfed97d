package pitch

import "math"

const (
	// NoiseFloor is the default RMS level below which a frame is treated as
	// silence.
	NoiseFloor = 0.01

	// goodCorrelation is the similarity a lag must exceed to count as a
	// periodicity candidate.
	goodCorrelation = 0.9

	// minCorrelation is the weakest best-candidate accepted when the
	// correlation is still rising at the end of the search range.
	minCorrelation = 0.01

	// interpolationScale weights the neighbour-difference refinement of the
	// winning lag.
	interpolationScale = 8
)

// Estimator estimates the fundamental frequency of a frame by time-domain
// autocorrelation. It reuses its correlation buffer between calls and is
// therefore not safe for concurrent use.
type Estimator struct {
	noiseFloor   float64
	correlations []float64
}

// NewEstimator returns an Estimator that treats frames quieter than
// noiseFloor (RMS) as silence. A non-positive noiseFloor selects
// [NoiseFloor].
func NewEstimator(noiseFloor float64) *Estimator {
	if noiseFloor <= 0 {
		noiseFloor = NoiseFloor
	}
	return &Estimator{noiseFloor: noiseFloor}
}

// AutoCorrelate estimates the pitch of buf with the default noise floor. It
// allocates; use an [Estimator] in loops.
func AutoCorrelate(buf []float32, sampleRate float64) (float64, bool) {
	return NewEstimator(NoiseFloor).Estimate(buf, sampleRate)
}

// Estimate returns the frequency in Hz of the dominant periodicity in buf,
// or false when the frame is too quiet or no lag correlates well enough.
//
// Lags are searched over [0, len(buf)/2). The similarity at each lag is one
// minus the mean absolute difference between the frame and its shifted copy.
// The search stops at the first lag after a run of strong, rising
// similarities; that peak is refined by the difference of its neighbours.
// The returned value is always positive and finite when ok is true.
func (e *Estimator) Estimate(buf []float32, sampleRate float64) (float64, bool) {
	size := len(buf)
	maxSamples := size / 2
	if maxSamples < 2 || sampleRate <= 0 {
		return 0, false
	}

	var rms float64
	for _, v := range buf {
		rms += float64(v) * float64(v)
	}
	rms = math.Sqrt(rms / float64(size))
	if rms < e.noiseFloor {
		return 0, false
	}

	if cap(e.correlations) < maxSamples {
		e.correlations = make([]float64, maxSamples)
	}
	corr := e.correlations[:maxSamples]
	clear(corr)

	bestOffset := -1
	bestCorrelation := 0.0
	lastCorrelation := 1.0
	foundGood := false

	for offset := range maxSamples {
		var diff float64
		for i := range maxSamples {
			diff += math.Abs(float64(buf[i]) - float64(buf[i+offset]))
		}
		c := 1 - diff/float64(maxSamples)
		corr[offset] = c

		if c > goodCorrelation && c > lastCorrelation {
			foundGood = true
			if c > bestCorrelation {
				bestCorrelation = c
				bestOffset = offset
			}
		} else if foundGood {
			shift := (corr[bestOffset+1] - corr[bestOffset-1]) / corr[bestOffset]
			return valid(sampleRate / (float64(bestOffset) + interpolationScale*shift))
		}
		lastCorrelation = c
	}

	if bestCorrelation > minCorrelation && bestOffset > 0 {
		return valid(sampleRate / float64(bestOffset))
	}
	return 0, false
}

func valid(freq float64) (float64, bool) {
	if freq <= 0 || math.IsInf(freq, 0) || math.IsNaN(freq) {
		return 0, false
	}
	return freq, true
}
