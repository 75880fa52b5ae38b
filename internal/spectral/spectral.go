// Package spectral is the decoder's FFT kernel: windowing, the one FFT
// primitive shared by the sync finder and the speed detector, dB
// conversion, and the bit-quality scoring functions both of them reduce
// their magnitude data down to. Adapted from the STFT helpers the teacher
// used for spectrogram generation, generalized from a fixed Hamming window
// over mono audio to a normalized, per-channel window suitable for
// watermark band extraction.
package spectral

import (
	"math"
	"math/cmplx"

	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/workpool"
	"github.com/mjibson/go-dsp/fft"
)

// MinDB is the magnitude floor applied by DBFromComplex, matching the
// -96dB floor the original implementation uses to keep near-silent bins
// from dominating a sum.
const MinDB = -96.0

// NormalizedWindow returns a raised-cosine (Hann) window of length n,
// scaled so that its average value is 1 — multiplying a constant-amplitude
// signal by this window and taking its FFT preserves bin magnitude, which
// is what lets bit_quality compare umag/dmag across frames without
// renormalizing each time.
func NormalizedWindow(n int) []float64 {
	w := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
		sum += w[i]
	}
	mean := sum / float64(n)
	if mean == 0 {
		return w
	}
	for i := range w {
		w[i] /= mean
	}
	return w
}

// FFTReal runs a real-input FFT over frame, returning the full complex
// spectrum (frame must be pre-windowed by the caller).
func FFTReal(frame []float64) []complex128 {
	return fft.FFTReal(frame)
}

// DBFromComplex converts a complex FFT bin to dB magnitude, floored at
// MinDB so silent bins don't produce -Inf.
func DBFromComplex(c complex128) float64 {
	mag := cmplx.Abs(c)
	if mag <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(mag)
	if db < MinDB {
		return MinDB
	}
	return db
}

// FrameFFT extracts the sample frame starting at the given frame index
// (frame units, i.e. multiplied by frameSize internally) for a single
// channel, windows it, and adds the dB magnitude of bands
// [minBand, maxBand] inclusive into out. It reports ok=false without
// touching out when the frame falls outside the channel's bounds.
//
// Accumulating dB values (rather than linear magnitude) across channels
// is what the original implementation does — odd on paper, but it is the
// exact quantity bit_quality was tuned against, so multi-channel decoding
// replicates it rather than "fixing" it.
func FrameFFT(channel []float64, window []float64, frameIndex, frameSize, minBand, maxBand int, out []float64) bool {
	start := frameIndex * frameSize
	if start < 0 || start+frameSize > len(channel) {
		return false
	}
	frame := make([]float64, frameSize)
	for i := 0; i < frameSize; i++ {
		frame[i] = channel[start+i] * window[i]
	}
	spectrum := FFTReal(frame)
	for b := minBand; b <= maxBand; b++ {
		out[b-minBand] += DBFromComplex(spectrum[b])
	}
	return true
}

// FrameDB holds the per-band dB magnitude of one frame, summed across
// channels.
type FrameDB struct {
	Have  bool
	Bands []float64 // Bands[band-minBand]
}

// FrameFFTAll computes FrameFFT for every frame in [0, frameCount),
// summed across all channels of data, in parallel across pool's workers,
// skipping frames for which want is non-nil and want[frame] is false. The
// result slice has length frameCount; frames that fall outside data's
// bounds, or are skipped by want, have Have=false and a nil Bands.
//
// This is the parallel "sync_fft_parallel" shape from the original
// implementation: work is split into chunks and each chunk computed by one
// worker job, with no shared mutable state between workers.
func FrameFFTAll(pool *workpool.Pool, data signal.Data, window []float64, frameSize, minBand, maxBand, frameCount int, want []bool) []FrameDB {
	result := make([]FrameDB, frameCount)
	if frameCount == 0 {
		return result
	}

	channels := make([][]float64, data.Channels)
	for ch := 0; ch < data.Channels; ch++ {
		channels[ch], _ = data.Channel(ch)
	}

	const chunkSize = 256
	for chunkStart := 0; chunkStart < frameCount; chunkStart += chunkSize {
		chunkStart := chunkStart
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > frameCount {
			chunkEnd = frameCount
		}
		pool.AddJob(func() {
			for f := chunkStart; f < chunkEnd; f++ {
				if want != nil && !want[f] {
					continue
				}
				bandOut := make([]float64, maxBand-minBand+1)
				ok := true
				for ch := 0; ch < data.Channels; ch++ {
					if !FrameFFT(channels[ch], window, f, frameSize, minBand, maxBand, bandOut) {
						ok = false
						break
					}
				}
				if ok {
					result[f] = FrameDB{Have: true, Bands: bandOut}
				}
			}
		})
	}
	pool.WaitAll()
	return result
}

// NormalizeSyncQuality rescales a raw bit-quality sum into the
// [-1,1]-ish range the sync finder's thresholds are tuned against. It
// divides out the expected per-frame amplitude (capped at 0.080, the
// original implementation's empirical ceiling) and a fixed gain factor.
func NormalizeSyncQuality(raw, waterDelta float64) float64 {
	delta := waterDelta
	if delta > 0.080 {
		delta = 0.080
	}
	return raw / delta / 2.9
}

// BitQuality scores how well a measured (umag, dmag) band-magnitude pair
// matches the expected polarity of a sync bit. expectDataBit is bit&1 in
// the original: even bits expect umag>dmag, odd bits expect dmag>umag.
// The sign of the result flips when the measured polarity disagrees with
// what was expected, so summing bit_quality across many frames pushes the
// total towards +something for a correctly-aligned block and towards
// -something (or near 0) for noise.
func BitQuality(umag, dmag float64, bit int) float64 {
	expectDataBit := bit&1 == 1

	var raw float64
	switch {
	case umag == 0 || dmag == 0:
		raw = 0
	case umag < dmag:
		raw = 1 - umag/dmag
	default:
		raw = dmag/umag - 1
	}

	if expectDataBit {
		return raw
	}
	return -raw
}
