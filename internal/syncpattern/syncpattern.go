// Package syncpattern builds the deterministic band assignment used to
// locate a watermark block: for a given key and mode it derives, once, the
// list of (frame, up-bands, down-bands) triples every sync bit is encoded
// across. The sync finder and the speed detector both consume this list
// rather than deriving it themselves, so the two always agree on layout.
package syncpattern

import (
	"sort"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
)

// FrameBit is one sync bit's placement: which frame it lives in, and which
// FFT bands (already shifted down by MinBand) carry its "up" and "down"
// energy.
type FrameBit struct {
	Bit   int
	Frame int
	Up    []int
	Down  []int
}

// upDownGen draws the up/down band split for one (bit, frame) position,
// rooted at the sync_up_down stream so it is fully determined by the key.
type upDownGen struct {
	rng     *key.Random
	nBands  int
}

func newUpDownGen(k key.Key, nBands int) *upDownGen {
	return &upDownGen{rng: key.NewRandom(k, key.StreamSyncUpDown), nBands: nBands}
}

// get draws a random permutation of [0,nBands) and splits it in half,
// reseeding the stream from position first, so every position gets its
// own independent permutation and different sync bits don't share band
// assignments.
func (g *upDownGen) get(position int) (up, down []int) {
	perm := make([]int, g.nBands)
	for i := range perm {
		perm[i] = i
	}
	// Fisher-Yates using the stream seeded by position: re-seeding per
	// position keeps this deterministic and stateless across calls made
	// out of order.
	g.rng.Reseed(uint64(position) + 1)
	for i := len(perm) - 1; i > 0; i-- {
		j := int(g.rng.UintN(uint64(i + 1)))
		perm[i], perm[j] = perm[j], perm[i]
	}
	half := len(perm) / 2
	up = append([]int(nil), perm[:half]...)
	down = append([]int(nil), perm[half:]...)
	sort.Ints(up)
	sort.Ints(down)
	return up, down
}

// syncFrame maps a sync position to the frame it occupies within the
// block. Position i maps to frame i, so each sync bit's SyncFramesPerBit
// repetitions occupy consecutive frames at the start of the block. The
// mapping does not depend on the key: the bit_pos stream is not used, and
// sync frames are not interleaved with data frames.
func syncFrame(p params.Params, i int) int {
	return i
}

// GetSyncBits builds the full FrameBit list for one block (BLOCK mode) or
// two blocks with the second block's polarity swapped (CLIP mode),
// matching get_sync_bits in the original implementation.
func GetSyncBits(k key.Key, p params.Params, mode params.Mode) []FrameBit {
	gen := newUpDownGen(k, p.NBands())
	blockCount := 1
	if mode == params.ModeClip {
		blockCount = 2
	}
	firstBlockEnd := p.MarkSyncFrameCount() + p.MarkDataFrameCount()

	var bits []FrameBit
	for block := 0; block < blockCount; block++ {
		for bit := 0; bit < p.SyncBits; bit++ {
			for f := 0; f < p.SyncFramesPerBit; f++ {
				position := f + bit*p.SyncFramesPerBit
				up, down := gen.get(position)
				if block == 1 {
					up, down = down, up
				}
				frame := syncFrame(p, position) + block*firstBlockEnd
				bits = append(bits, FrameBit{Bit: bit, Frame: frame, Up: up, Down: down})
			}
		}
	}

	sort.SliceStable(bits, func(i, j int) bool { return bits[i].Frame < bits[j].Frame })
	return bits
}
