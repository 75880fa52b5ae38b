// Package audioconv shells out to ffmpeg to normalize an arbitrary input
// audio file into the mono PCM WAV that internal/wav expects, so the CLI
// can accept mp3/m4a/etc. captures directly instead of requiring a
// pre-converted WAV.
package audioconv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ConvertConfig controls the ffmpeg conversion target. SampleRate should
// normally be set to the decoder's params.Params.MarkSampleRate so a
// converted capture lines up with the watermark's frequency bands without
// a second resample later.
type ConvertConfig struct {
	SampleRate int
}

// ToMonoWAV converts inputPath to a mono, pcm_s16le WAV file under
// outputDir and returns its path. The source format is whatever ffmpeg
// can demux; the caller does not need to know it ahead of time. ffmpeg
// writes to a staging path first so a failed or interrupted conversion
// never leaves a partially-written file at outputPath for a subsequent
// wav.Read to trip over.
func ToMonoWAV(ctx context.Context, inputPath string, outputDir string, cfg ConvertConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir %q: %w", outputDir, err)
	}

	baseName := filepath.Base(inputPath)
	outputPath := filepath.Join(outputDir, baseName+".wav")
	stagingPath := outputPath + ".tmp.wav"
	defer os.Remove(stagingPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		stagingPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := os.Rename(stagingPath, outputPath); err != nil {
		return "", fmt.Errorf("publish converted wav %q: %w", outputPath, err)
	}

	return outputPath, nil
}

// NeedsConversion reports whether path's extension suggests it is not
// already a WAV file ffmpeg would pass through unchanged.
func NeedsConversion(path string) bool {
	ext := filepath.Ext(path)
	return ext != ".wav" && ext != ".WAV"
}
