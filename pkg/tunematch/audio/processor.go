package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/himanishpuri/tunematch/pkg/utils"
)

// DefaultConvertTimeout bounds one ffmpeg run when ctx has no deadline.
const DefaultConvertTimeout = 2 * time.Minute

type ConvertWAVConfig struct {
	SampleRate int
	Timeout    time.Duration
}

// ConvertToMonoWAV runs ffmpeg to turn any input it understands into a 16-bit
// mono WAV file in outputDir. The caller owns (and removes) the returned file.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = TargetSampleRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConvertTimeout
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	outputPath := utils.TempPath(outputDir, ".wav")
	tmpPath := outputPath + ".part"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}
