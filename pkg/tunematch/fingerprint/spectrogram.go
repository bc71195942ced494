package fingerprint

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	WindowSize = 1024
	HopSize    = 512
)

var (
	errShortInput   = errors.New("input shorter than window size")
	errWindowLength = errors.New("window length must equal windowSize")
)

// Hamming returns a Hamming window of n points.
func Hamming(n int) []float64 {
	return window.Hamming(n)
}

// MagnitudeSpectrum keeps the non-negative frequency half of a spectrum.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT returns one magnitude frame per hop. Partial trailing frames are dropped.
func STFT(samples []float64, windowSize, hopSize int, win []float64) ([][]float64, error) {
	if len(win) != windowSize {
		return nil, errWindowLength
	}
	if len(samples) < windowSize {
		return nil, errShortInput
	}

	frames := make([][]float64, 0, (len(samples)-windowSize)/hopSize+1)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for i := range frame {
			frame[i] *= win[i]
		}
		frames = append(frames, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return frames, nil
}

// Spectrogram runs the STFT with the package window and hop sizes.
func Spectrogram(samples []float64) ([][]float64, error) {
	return STFT(samples, WindowSize, HopSize, Hamming(WindowSize))
}
