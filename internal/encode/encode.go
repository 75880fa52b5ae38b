// Package encode implements the minimal reference watermark embedder
// described in SPEC_FULL.md §5: a plain per-band amplitude nudge with no
// forward error correction, no perceptual shaping and no loudness
// limiting. It exists only so the decoder core and its tests have a real
// watermarked signal to decode — it is not a tuned encoder.
package encode

import (
	"math"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/syncpattern"
)

// Encoder embeds a repeating watermark block sync pattern into a clean
// signal by additively nudging the per-band sinusoid amplitude implied by
// each FrameBit's up/down assignment. Payload bits are out of scope: only
// the sync section is written, enough for the sync finder to lock on.
type Encoder struct {
	Params params.Params
}

// New returns an Encoder using p for frame sizing and watermark strength.
func New(p params.Params) Encoder {
	return Encoder{Params: p}
}

// Add tiles watermark blocks into data every BlockFrameCount frames,
// starting at params.FramesPadStart, for as many blocks as fit — the same
// layout fakeSync assumes the real encoder produces. Blocks alternate
// polarity: odd-indexed blocks swap each FrameBit's up/down band sets, the
// same swap GetSyncBits applies to CLIP mode's second block, so a real
// BLOCK-mode search sees alternating A/B candidates rather than a single
// block. data is left unmodified.
func (e Encoder) Add(data signal.Data, k key.Key) signal.Data {
	p := e.Params
	bits := syncpattern.GetSyncBits(k, p, params.ModeBlock)

	out := signal.Data{
		SampleRate: data.SampleRate,
		Channels:   data.Channels,
		BitDepth:   data.BitDepth,
		Samples:    append([]float64(nil), data.Samples...),
	}

	blockFrames := p.BlockFrameCount()
	if blockFrames <= 0 {
		return out
	}
	totalAnalysisFrames := out.NumFrames() / p.FrameSize
	available := totalAnalysisFrames - p.FramesPadStart
	blockCount := available / blockFrames

	for blockIdx := 0; blockIdx < blockCount; blockIdx++ {
		swap := blockIdx&1 == 1
		blockStart := p.FramesPadStart + blockIdx*blockFrames

		for _, fb := range bits {
			frameStart := (blockStart + fb.Frame) * p.FrameSize
			if frameStart < 0 || frameStart+p.FrameSize > out.NumFrames() {
				continue
			}

			upAmp, downAmp := e.amplitudesFor(fb.Bit)
			up, down := fb.Up, fb.Down
			if swap {
				up, down = down, up
			}

			for ch := 0; ch < out.Channels; ch++ {
				for i := 0; i < p.FrameSize; i++ {
					idx := (frameStart+i)*out.Channels + ch
					t := float64(i) / float64(p.FrameSize)
					for _, band := range up {
						freq := float64(p.MinBand + band)
						out.Samples[idx] += upAmp * math.Cos(2*math.Pi*freq*t)
					}
					for _, band := range down {
						freq := float64(p.MinBand + band)
						out.Samples[idx] += downAmp * math.Cos(2*math.Pi*freq*t)
					}
				}
			}
		}
	}

	return out
}

// amplitudesFor returns the (up, down) sinusoid amplitude to add for a
// sync bit, chosen so a decoder's BitQuality scores the result towards
// the bit's expected polarity: odd bits get their down bands boosted,
// even bits get their up bands boosted.
func (e Encoder) amplitudesFor(bit int) (up, down float64) {
	delta := e.Params.WaterDelta
	if bit&1 == 1 {
		return 0, delta
	}
	return delta, 0
}
