// Package params holds the process-wide immutable configuration that every
// decoder-core package (spectral, syncpattern, syncfinder, speeddetect)
// reads from. It is populated once at startup and never mutated afterwards.
package params

import "fmt"

// Mode selects whether the sync finder looks for a single aligned block
// (BLOCK) or an arbitrary, possibly silence-padded clip (CLIP).
type Mode int

const (
	ModeBlock Mode = iota
	ModeClip
)

func (m Mode) String() string {
	if m == ModeClip {
		return "clip"
	}
	return "block"
}

// BlockType distinguishes the two polarities of watermark block: B blocks
// invert the up/down band assignment used by A blocks.
type BlockType int

const (
	BlockA BlockType = iota
	BlockB
)

func (t BlockType) String() string {
	if t == BlockB {
		return "B"
	}
	return "A"
}

// Params is the full set of tunables shared by the decoder core. All
// fields are read-only after Validate/MustValidate has run.
type Params struct {
	MarkSampleRate int // canonical sample rate the watermark was encoded at

	FrameSize       int // samples per analysis frame (canonical 1024)
	SyncSearchStep  int // coarse stepping in samples (256)
	SyncSearchFine  int // fine stepping in samples (8)
	FramesPadStart  int // frames of silence the encoder pads before the first block

	MinBand int // first FFT bin carrying watermark bits
	MaxBand int // last FFT bin carrying watermark bits (inclusive)

	SyncBits          int // number of redundant sync bits per block
	SyncFramesPerBit  int // repetitions of each sync bit
	DataFrameCount    int // frames reserved for the (out-of-scope) payload

	SyncThreshold2 float64 // primary quality threshold
	WaterDelta     float64 // watermark strength used to normalize sync quality
	GetNBest       int     // minimum number of sync candidates to keep

	DetectSpeedPatient bool // select the slower, more accurate speed sweep

	TestNoSync  bool    // testing hook: fake_sync shortcut
	TestSpeed   float64 // testing hook: known ground-truth speed, <=0 disables
}

// SyncThreshold1 is the coarse-search threshold, 75% of the fine threshold.
func (p Params) SyncThreshold1() float64 {
	return p.SyncThreshold2 * 0.75
}

// MarkSyncFrameCount is the number of frames occupied by one block's sync
// section: each of SyncBits sync bits repeats SyncFramesPerBit times.
func (p Params) MarkSyncFrameCount() int {
	return p.SyncBits * p.SyncFramesPerBit
}

// MarkDataFrameCount is the number of frames occupied by one block's data
// section (payload decoding itself is out of scope for this core).
func (p Params) MarkDataFrameCount() int {
	return p.DataFrameCount
}

// NBands is the number of FFT bins spanned by [MinBand, MaxBand].
func (p Params) NBands() int {
	return p.MaxBand - p.MinBand + 1
}

// BlockFrameCount is the number of frames in a full block (sync + data).
func (p Params) BlockFrameCount() int {
	return p.MarkSyncFrameCount() + p.MarkDataFrameCount()
}

// Default returns the library's default parameter set. It is intentionally
// conservative: divisibility and range invariants hold by construction, and
// every numeric default sits inside the ranges spec.md documents.
func Default() Params {
	return Params{
		MarkSampleRate: 44100,

		FrameSize:      1024,
		SyncSearchStep: 256,
		SyncSearchFine: 8,
		FramesPadStart: 250,

		MinBand: 20,
		MaxBand: 110,

		SyncBits:         6,
		SyncFramesPerBit: 20,
		DataFrameCount:   300,

		SyncThreshold2: 0.5,
		WaterDelta:     0.015,
		GetNBest:       3,

		DetectSpeedPatient: false,
	}
}

// Validate checks the parameter-inconsistency invariants spec.md §7 treats
// as fatal configuration errors (as opposed to degraded-input conditions,
// which the decode pipeline handles by returning empty results).
func (p Params) Validate() error {
	if p.FrameSize <= 0 || p.SyncSearchStep <= 0 || p.SyncSearchFine <= 0 {
		return fmt.Errorf("params: frame_size, sync_search_step and sync_search_fine must be positive")
	}
	if p.FrameSize%p.SyncSearchStep != 0 {
		return fmt.Errorf("params: frame_size (%d) must be divisible by sync_search_step (%d)", p.FrameSize, p.SyncSearchStep)
	}
	if p.SyncSearchStep%p.SyncSearchFine != 0 {
		return fmt.Errorf("params: sync_search_step (%d) must be divisible by sync_search_fine (%d)", p.SyncSearchStep, p.SyncSearchFine)
	}
	if p.MinBand < 0 || p.MaxBand <= p.MinBand {
		return fmt.Errorf("params: require 0 <= min_band < max_band, got [%d,%d]", p.MinBand, p.MaxBand)
	}
	if p.MaxBand >= p.FrameSize/2 {
		return fmt.Errorf("params: max_band (%d) must stay below the Nyquist bin (%d)", p.MaxBand, p.FrameSize/2)
	}
	if p.SyncBits <= 0 || p.SyncFramesPerBit <= 0 {
		return fmt.Errorf("params: sync_bits and sync_frames_per_bit must be positive")
	}
	if p.GetNBest <= 0 {
		return fmt.Errorf("params: get_n_best must be positive")
	}
	if p.WaterDelta <= 0 {
		return fmt.Errorf("params: water_delta must be positive")
	}
	return nil
}

// MustValidate panics on a parameter-inconsistent configuration. It is the
// only place in the decode pipeline allowed to abort the process: every
// other failure mode downgrades to an empty result (spec.md §7).
func (p Params) MustValidate() Params {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return p
}
