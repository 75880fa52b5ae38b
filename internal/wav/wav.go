// Package wav reads and writes the WAV signal data the decoder core and
// the reference encoder operate on, using the teacher's own go-audio/wav
// and go-audio/audio dependencies instead of hand-rolling RIFF chunk
// parsing.
package wav

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/himanishpuri/audiowm/internal/signal"
)

// Read decodes a WAV stream into interleaved float64 samples in [-1, 1],
// preserving the source channel count and bit depth.
func Read(r io.Reader) (signal.Data, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return signal.Data{}, fmt.Errorf("wav: reader must support Seek")
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return signal.Data{}, fmt.Errorf("wav: not a valid WAV stream")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return signal.Data{}, fmt.Errorf("wav: decode: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}

	return signal.Data{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   bitDepth,
		Samples:    samples,
	}, nil
}

// Write encodes a signal.Data to w as 16-bit PCM WAV, the format the
// reference encoder and CLI round-trip through.
func Write(w io.WriteSeeker, d signal.Data) error {
	enc := wav.NewEncoder(w, d.SampleRate, 16, d.Channels, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: d.Channels, SampleRate: d.SampleRate},
		Data:           make([]int, len(d.Samples)),
		SourceBitDepth: 16,
	}
	const scale = float64(int64(1) << 15)
	for i, s := range d.Samples {
		v := int(math.Round(s * scale))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		buf.Data[i] = v
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	return enc.Close()
}
