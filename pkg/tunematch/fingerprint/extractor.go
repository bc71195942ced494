// Package fingerprint turns mono PCM samples into constellation hash
// fingerprints: Hamming STFT, band-max peak picking, fan-out pairing.
package fingerprint

import (
	"context"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/models"
)

// Extractor is the default fingerprint extractor.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract fingerprints a mono signal. Offsets are STFT frame indices, so
// catalog and query audio must share a sample rate. Input shorter than one
// window yields no fingerprints.
func (e *Extractor) Extract(ctx context.Context, samples []float64, sampleRate int) ([]models.Fingerprint, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(samples) < WindowSize {
		return nil, nil
	}
	spec, err := Spectrogram(samples)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Pair(ExtractPeaks(spec, sampleRate)), nil
}
