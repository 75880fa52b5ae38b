package audiowm

import (
	"context"
	"math"
	"testing"

	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/interp"
)

// timeScale resamples data so its duration changes by factor without
// changing the SampleRate tag, the same technique internal/speeddetect's
// resampleRatioTruncate uses to simulate a clip captured at the wrong
// playback speed: factor > 1 compresses the timeline (the clip now sounds
// like it plays faster than it was encoded), factor < 1 stretches it back
// out.
func timeScale(data signal.Data, factor float64) signal.Data {
	srcFrames := data.NumFrames()
	dstFrames := int(float64(srcFrames) / factor)

	out := signal.Data{SampleRate: data.SampleRate, Channels: data.Channels, Samples: make([]float64, dstFrames*data.Channels)}
	for ch := 0; ch < data.Channels; ch++ {
		src, _ := data.Channel(ch)
		xs := make([]float64, len(src))
		for i := range xs {
			xs[i] = float64(i)
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, src); err != nil {
			panic(err)
		}
		for i := 0; i < dstFrames; i++ {
			srcPos := float64(i) * factor
			if srcPos > float64(srcFrames-1) {
				srcPos = float64(srcFrames - 1)
			}
			out.Samples[i*data.Channels+ch] = pl.Predict(srcPos)
		}
	}
	return out
}

// TestSearchClipModeFindsEmbeddedBlockPair covers scenario S2: a clip
// cropped out of the middle of an encoded signal, decoded in CLIP mode,
// must still surface at least one candidate above SyncThreshold2.
func TestSearchClipModeFindsEmbeddedBlockPair(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	p := params.Default()
	data := noiseSignal(p, 3, 3)
	watermarked, err := svc.Add(context.Background(), data, "alice")
	require.NoError(t, err)

	pairFrames := 2 * p.BlockFrameCount()
	start := p.FramesPadStart * p.FrameSize
	end := start + pairFrames*p.FrameSize
	clip := watermarked.Slice(start, end)

	result, err := svc.Search(context.Background(), clip, []string{"alice"}, "clip")
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)
	require.Greater(t, result.Candidates[0].Quality, p.SyncThreshold2)
}

// TestGetWithoutSpeedCorrectionMissesDriftedSignal and
// TestDetectSpeedThenCorrectionRecoversDriftedSignal together cover
// scenario S3: a signal sped up by 10% defeats a plain BLOCK-mode search,
// but DetectSpeed locates the drift and resampling by the detected factor
// restores decodability.
func TestGetWithoutSpeedCorrectionMissesDriftedSignal(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	p := params.Default()
	data := noiseSignal(p, 4, 4)
	watermarked, err := svc.Add(context.Background(), data, "alice")
	require.NoError(t, err)

	drifted := timeScale(watermarked, 1.10)

	result, err := svc.Get(context.Background(), drifted, []string{"alice"})
	require.NoError(t, err)
	for _, c := range result.Candidates {
		require.LessOrEqual(t, c.Quality, p.SyncThreshold2,
			"a speed drift of 10 percent should defeat sync search that never corrects for it")
	}
}

func TestDetectSpeedThenCorrectionRecoversDriftedSignal(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	p := params.Default()
	data := noiseSignal(p, 4, 4)
	watermarked, err := svc.Add(context.Background(), data, "alice")
	require.NoError(t, err)

	const driftFactor = 1.10
	drifted := timeScale(watermarked, driftFactor)

	results, err := svc.DetectSpeed(context.Background(), drifted, []string{"alice"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.InDelta(t, driftFactor, results[0].Speed, 0.2)

	corrected := timeScale(drifted, 1/results[0].Speed)
	result, err := svc.Get(context.Background(), corrected, []string{"alice"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)
	require.Greater(t, result.Candidates[0].Quality, p.SyncThreshold2)
}

func TestTimeScalePreservesApproxDuration(t *testing.T) {
	data := signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 44100)}
	scaled := timeScale(data, 1.10)
	wantFrames := int(float64(data.NumFrames()) / 1.10)
	require.InDelta(t, wantFrames, scaled.NumFrames(), 1)
	require.True(t, math.Abs(scaled.Duration()-data.Duration()/1.10) < 0.01)
}
