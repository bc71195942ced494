package fingerprint

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	FreqMin = 32.0
	FreqMax = 4096.0

	freqNeighbour = 3
	timeNeighbour = 1
	minDbAboveAvg = 3.0
	// magnitudes below this are treated as silence
	minMagnitude = 1e-6
)

type Peak struct {
	TimeIdx int
	FreqIdx int
	MagDB   float64
}

// bands splits [lo, hi) into one linear band followed by octave bands.
func bands(lo, hi int) [][2]int {
	if lo >= hi {
		return nil
	}
	first := min(lo+10, hi)
	out := [][2]int{{lo, first}}
	for start := first; start < hi; start *= 2 {
		end := min(start*2, hi)
		out = append(out, [2]int{start, end})
	}
	return out
}

// binRange maps the FreqMin..FreqMax window onto spectrum bin indices.
func binRange(nBins, sampleRate int) (int, int) {
	res := float64(sampleRate) / float64(WindowSize)
	lo := int(math.Ceil(FreqMin / res))
	hi := int(math.Floor(FreqMax/res)) + 1
	if lo < 1 {
		lo = 1
	}
	return lo, min(hi, nBins)
}

// ExtractPeaks picks the strongest bin of each band per frame and keeps it if
// it stands above the frame's band average and is a local maximum.
func ExtractPeaks(spec [][]float64, sampleRate int) []Peak {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return nil
	}
	nFrames := len(spec)
	nBins := len(spec[0])
	lo, hi := binRange(nBins, sampleRate)
	bs := bands(lo, hi)
	if len(bs) == 0 {
		return nil
	}

	peaks := make([]Peak, 0, nFrames*2)
	bandMag := make([]float64, len(bs))
	bandIdx := make([]int, len(bs))

	for t, frame := range spec {
		var sumDb float64
		for bi, b := range bs {
			idx := b[0] + floats.MaxIdx(frame[b[0]:b[1]])
			bandIdx[bi] = idx
			bandMag[bi] = frame[idx]
			sumDb += toDB(frame[idx])
		}
		avgDb := sumDb / float64(len(bs))

		for bi, mag := range bandMag {
			if mag < minMagnitude {
				continue
			}
			magDb := toDB(mag)
			if magDb < avgDb+minDbAboveAvg {
				continue
			}
			bin := bandIdx[bi]
			if !isLocalMax(spec, t, bin, mag) {
				continue
			}
			peaks = append(peaks, Peak{TimeIdx: t, FreqIdx: bin, MagDB: magDb})
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].TimeIdx == peaks[j].TimeIdx {
			return peaks[i].FreqIdx < peaks[j].FreqIdx
		}
		return peaks[i].TimeIdx < peaks[j].TimeIdx
	})
	return peaks
}

func toDB(mag float64) float64 {
	return 20.0 * math.Log10(mag+1e-10)
}

func isLocalMax(spec [][]float64, t, bin int, mag float64) bool {
	for dt := -timeNeighbour; dt <= timeNeighbour; dt++ {
		ti := t + dt
		if ti < 0 || ti >= len(spec) {
			continue
		}
		for df := -freqNeighbour; df <= freqNeighbour; df++ {
			fi := bin + df
			if fi < 0 || fi >= len(spec[ti]) || (dt == 0 && df == 0) {
				continue
			}
			if spec[ti][fi] > mag {
				return false
			}
		}
	}
	return true
}
