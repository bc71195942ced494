// Package audio turns audio files into mono PCM at a fixed sample rate.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Decoder reads WAV files directly and shells out to ffmpeg for everything else.
type Decoder struct {
	TempDir    string
	SampleRate int
}

func NewDecoder(tempDir string, sampleRate int) *Decoder {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	return &Decoder{TempDir: tempDir, SampleRate: sampleRate}
}

// Decode returns normalized mono samples at d.SampleRate.
func (d *Decoder) Decode(ctx context.Context, path string) ([]float64, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, 0, err
	}

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		converted, err := ConvertToMonoWAV(ctx, path, d.TempDir, ConvertWAVConfig{SampleRate: d.SampleRate})
		if err != nil {
			return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	samples, rate, err := ReadWavAsFloat64(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV file: %w", err)
	}
	return Preprocess(samples, rate, d.SampleRate), d.SampleRate, nil
}
