package speeddetect

import (
	"github.com/himanishpuri/audiowm/internal/signal"
	"gonum.org/v1/gonum/interp"
)

// resampleRatioTruncate resamples data from its source sample rate to
// targetRate, truncating the result to at most truncateSeconds — the
// get_speed_clip + downsample step wmspeed.cc performs before building a
// magnitude matrix at half the canonical frame rate. It uses gonum's
// piecewise-linear interpolator rather than a dedicated resampling
// library: the speed detector is only ever fed a short clip and all it
// needs is a faithful rational resample, not a high-order filter.
func resampleRatioTruncate(data signal.Data, targetRate int, truncateSeconds float64) (signal.Data, error) {
	if data.SampleRate == targetRate {
		out := data
		if truncateSeconds > 0 {
			maxFrames := int(truncateSeconds * float64(targetRate))
			out = out.Slice(0, maxFrames)
		}
		return out, nil
	}

	ratio := float64(targetRate) / float64(data.SampleRate)
	srcFrames := data.NumFrames()
	dstFrames := int(float64(srcFrames) * ratio)
	if truncateSeconds > 0 {
		maxFrames := int(truncateSeconds * float64(targetRate))
		if dstFrames > maxFrames {
			dstFrames = maxFrames
		}
	}

	out := signal.Data{SampleRate: targetRate, Channels: data.Channels, BitDepth: data.BitDepth, Samples: make([]float64, dstFrames*data.Channels)}
	for ch := 0; ch < data.Channels; ch++ {
		src, _ := data.Channel(ch)
		xs := make([]float64, len(src))
		for i := range xs {
			xs[i] = float64(i)
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, src); err != nil {
			return signal.Data{}, err
		}
		for i := 0; i < dstFrames; i++ {
			srcPos := float64(i) / ratio
			if srcPos > float64(srcFrames-1) {
				srcPos = float64(srcFrames - 1)
			}
			out.Samples[i*data.Channels+ch] = pl.Predict(srcPos)
		}
	}
	return out, nil
}
