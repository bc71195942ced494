package audio

import "math"

// TargetSampleRate is the default rate signals are resampled to before extraction.
const TargetSampleRate = 8000

// Normalize scales samples in place so the loudest one has magnitude 1.
// Silent input is left untouched.
func Normalize(samples []float64) {
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(s))
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

// Resample converts samples from rate `from` to rate `to` by linear interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// Preprocess normalizes a mono signal and resamples it from rate to target.
func Preprocess(samples []float64, rate, target int) []float64 {
	Normalize(samples)
	return Resample(samples, rate, target)
}
