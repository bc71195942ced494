package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errInvalidWAV = errors.New("not a valid WAV file")

// ReadWavAsFloat64 reads a PCM WAV file and returns mono samples in [-1, 1]
// and the sample rate. Multi-channel input is averaged down to mono.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, errInvalidWAV)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding PCM samples: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, errInvalidWAV)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return toMono(buf, bitDepth), buf.Format.SampleRate, nil
}

func toMono(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	chans := buf.Format.NumChannels
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(buf.Data) / chans
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < chans; c++ {
			sum += float64(buf.Data[i*chans+c])
		}
		out[i] = sum / float64(chans) * scale
	}
	return out
}
