// Package signal defines the in-memory representation of decoded audio
// that flows between the WAV/S3 readers and the decoder core.
package signal

import "fmt"

// Data is raw PCM audio normalized to float64, interleaved by channel,
// the "Signal" collaborator spec.md's external interfaces describe.
type Data struct {
	SampleRate int
	Channels   int
	BitDepth   int // source bit depth, kept for diagnostics only
	Samples    []float64
}

// NumFrames returns the number of multi-channel sample frames.
func (d Data) NumFrames() int {
	if d.Channels == 0 {
		return 0
	}
	return len(d.Samples) / d.Channels
}

// Duration returns the clip length in seconds.
func (d Data) Duration() float64 {
	if d.SampleRate == 0 {
		return 0
	}
	return float64(d.NumFrames()) / float64(d.SampleRate)
}

// Channel extracts a single channel's samples.
func (d Data) Channel(ch int) ([]float64, error) {
	if ch < 0 || ch >= d.Channels {
		return nil, fmt.Errorf("signal: channel %d out of range [0,%d)", ch, d.Channels)
	}
	n := d.NumFrames()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = d.Samples[i*d.Channels+ch]
	}
	return out, nil
}

// Slice returns the frames in [start, end) as a new Data, clamped to the
// signal's bounds. start/end are frame indices, not sample indices.
func (d Data) Slice(start, end int) Data {
	n := d.NumFrames()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	out := Data{SampleRate: d.SampleRate, Channels: d.Channels, BitDepth: d.BitDepth}
	out.Samples = append(out.Samples, d.Samples[start*d.Channels:end*d.Channels]...)
	return out
}

// Energy returns the sum of squared samples across all channels, used to
// pick the highest-energy candidate clip location during speed detection.
func (d Data) Energy() float64 {
	var sum float64
	for _, s := range d.Samples {
		sum += s * s
	}
	return sum
}
