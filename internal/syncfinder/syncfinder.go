// Package syncfinder locates watermark block boundaries in a decoded
// signal. It is the most algorithmically exacting package in the decoder
// core, ported frame-for-frame from SyncFinder::search and its helpers in
// the audiowmark reference implementation: a coarse approximate search
// over every sync_search_step-sized shift, local-maxima and false-positive
// masking over the resulting quality curve, then a sample-accurate refine
// pass around each surviving candidate.
package syncfinder

import (
	"fmt"
	"math"
	"sort"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/spectral"
	"github.com/himanishpuri/audiowm/internal/syncpattern"
	"github.com/himanishpuri/audiowm/internal/workpool"
)

// localMeanDistance is how far (in candidate-array positions) either side
// of a score the local noise floor is averaged over, excluding the
// immediate neighborhood of the peak itself.
const localMeanDistance = 20

// Score is one located watermark block candidate.
type Score struct {
	Index     int
	Quality   float64
	BlockType params.BlockType
}

// KeyResult pairs a key with the candidates found using it.
type KeyResult struct {
	Key    key.Key
	Scores []Score
}

// searchScore is the coarse/refine pipeline's working representation,
// carrying the raw decode quality and the local noise floor it will be
// compared against.
type searchScore struct {
	index      int
	rawQuality float64
	localMean  float64
}

func (s searchScore) absQuality() float64 { return math.Abs(s.rawQuality - s.localMean) }

// Finder runs the sync search for a fixed Params against a worker pool
// shared with the rest of the decoder core.
type Finder struct {
	Params params.Params
	Pool   *workpool.Pool
	window []float64
}

// New returns a Finder. p must already have passed Validate.
func New(p params.Params, pool *workpool.Pool) *Finder {
	return &Finder{Params: p, Pool: pool, window: spectral.NormalizedWindow(p.FrameSize)}
}

func (f *Finder) totalFrameCount(mode params.Mode) int {
	blocks := 1
	if mode == params.ModeClip {
		blocks = 2
	}
	return blocks * f.Params.BlockFrameCount()
}

// Search locates watermark blocks for every key in keys, returning one
// KeyResult per key (in the same order).
func (f *Finder) Search(keys []key.Key, data signal.Data, mode params.Mode) []KeyResult {
	if f.Params.TestNoSync && mode == params.ModeBlock {
		return f.fakeSync(keys, data)
	}

	search := data
	if mode == params.ModeClip {
		first, last := scanSilence(data)
		search = data.Slice(first, last)
	}

	states := make([]keyState, len(keys))
	for i, k := range keys {
		bits := syncpattern.GetSyncBits(k, f.Params, mode)
		states[i] = keyState{k: k, bits: bits, grouped: groupByBit(bits)}
	}

	raw := f.searchApprox(states, search, mode)

	results := make([]KeyResult, len(keys))
	for i, st := range states {
		scores := raw[i]
		scores = selectLocalMaxima(scores)
		scores = maskAvgFalsePositives(scores, f.Params.SyncSearchStep)
		scores = selectThresholdAndNBest(scores, f.Params.SyncThreshold1(), f.Params.GetNBest)
		if mode == params.ModeClip {
			n := f.Params.GetNBest
			if n < 5 {
				n = 5
			}
			scores = selectTruncateN(scores, n)
		}
		scores = f.searchRefine(st.grouped, search, scores, mode)
		scores = selectThresholdAndNBest(scores, f.Params.SyncThreshold2, f.Params.GetNBest)
		sort.Slice(scores, func(a, b int) bool { return scores[a].index < scores[b].index })

		out := make([]Score, len(scores))
		for j, s := range scores {
			q := s.rawQuality - s.localMean
			bt := params.BlockA
			if q <= 0 {
				bt = params.BlockB
			}
			out[j] = Score{Index: s.index, Quality: math.Abs(q), BlockType: bt}
		}
		results[i] = KeyResult{Key: st.k, Scores: out}
	}
	return results
}

// keyState bundles a key with its precomputed sync-bit layout for one
// search pass.
type keyState struct {
	k       key.Key
	bits    []syncpattern.FrameBit
	grouped map[int][]syncpattern.FrameBit
}

// searchApprox runs the coarse, sync_search_step-granular sweep across
// every key at once, reusing one FFT pass per shift for all of them, then
// computes each key's local quality mean.
func (f *Finder) searchApprox(states []keyState, data signal.Data, mode params.Mode) [][]searchScore {
	p := f.Params
	total := f.totalFrameCount(mode)
	result := make([][]searchScore, len(states))

	for syncShift := 0; syncShift < p.FrameSize; syncShift += p.SyncSearchStep {
		shifted := data.Slice(syncShift, data.NumFrames())
		frameCount := shifted.NumFrames() / p.FrameSize
		if frameCount <= 0 {
			continue
		}
		frames := spectral.FrameFFTAll(f.Pool, shifted, f.window, p.FrameSize, p.MinBand, p.MaxBand, frameCount, nil)

		for startFrame := 0; startFrame+total <= frameCount; startFrame++ {
			index := startFrame*p.FrameSize + syncShift
			for i, st := range states {
				q, ok := syncDecode(st.grouped, startFrame, frames)
				if !ok {
					continue
				}
				q = spectral.NormalizeSyncQuality(q, p.WaterDelta)
				result[i] = append(result[i], searchScore{index: index, rawQuality: q})
			}
		}
	}

	for i := range result {
		sort.Slice(result[i], func(a, b int) bool { return result[i][a].index < result[i][b].index })
		computeLocalMean(result[i])
	}
	return result
}

// searchRefine sweeps a sample-accurate window around each coarse
// candidate looking for the offset that maximizes |quality - local mean|.
func (f *Finder) searchRefine(grouped map[int][]syncpattern.FrameBit, data signal.Data, scores []searchScore, mode params.Mode) []searchScore {
	p := f.Params
	total := f.totalFrameCount(mode)
	out := make([]searchScore, 0, len(scores))

	for _, s := range scores {
		best := s
		bestAbs := s.absQuality()

		for fineIndex := s.index - p.SyncSearchStep; fineIndex <= s.index+p.SyncSearchStep; fineIndex += p.SyncSearchFine {
			if fineIndex < 0 {
				continue
			}
			shifted := data.Slice(fineIndex, data.NumFrames())
			frameCount := shifted.NumFrames() / p.FrameSize
			if frameCount < total {
				continue
			}
			if frameCount > total {
				frameCount = total
			}
			frames := spectral.FrameFFTAll(f.Pool, shifted, f.window, p.FrameSize, p.MinBand, p.MaxBand, frameCount, nil)
			q, ok := syncDecode(grouped, 0, frames)
			if !ok {
				continue
			}
			q = spectral.NormalizeSyncQuality(q, p.WaterDelta)
			cand := searchScore{index: fineIndex, rawQuality: q, localMean: s.localMean}
			if cand.absQuality() > bestAbs {
				bestAbs = cand.absQuality()
				best = cand
			}
		}
		out = append(out, best)
	}
	return out
}

// fakeSync is the "Params.TestNoSync" shortcut: it pretends every expected
// block boundary synced perfectly, for exercising the rest of the decode
// pipeline without a real watermark present. BLOCK mode only.
func (f *Finder) fakeSync(keys []key.Key, data signal.Data) []KeyResult {
	p := f.Params
	expect0 := p.FramesPadStart * p.FrameSize
	step := p.BlockFrameCount() * p.FrameSize
	blockSamples := p.BlockFrameCount() * p.FrameSize

	var scores []Score
	ab := 0
	for idx := expect0; idx+blockSamples <= data.NumFrames(); idx += step {
		bt := params.BlockA
		if ab&1 == 1 {
			bt = params.BlockB
		}
		scores = append(scores, Score{Index: idx, Quality: 1.0, BlockType: bt})
		ab++
	}

	results := make([]KeyResult, len(keys))
	for i, k := range keys {
		results[i] = KeyResult{Key: k, Scores: append([]Score(nil), scores...)}
	}
	return results
}

// DescribeOffset reports how far index is from the nearest expected block
// boundary, as "n:<block> offset:<samples>" — a debug aid ported from
// find_closest_sync. cmd/cli does not call it.
func (f *Finder) DescribeOffset(index int) string {
	p := f.Params
	wmLength := p.BlockFrameCount() * p.FrameSize
	wmOffset := p.FramesPadStart * p.FrameSize

	best, bestDist := 0, math.MaxInt64
	for i := 0; i < 100; i++ {
		start := wmOffset + i*wmLength
		d := index - start
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist, best = d, i
		}
	}
	return fmt.Sprintf("n:%d offset:%d", best, index-(wmOffset+best*wmLength))
}

// scanSilence finds the [first, last) frame range containing any non-zero
// sample, so CLIP-mode search can skip scanning silence padding.
func scanSilence(data signal.Data) (first, last int) {
	n := data.NumFrames()
	first, last = n, 0
	for i := 0; i < n; i++ {
		nonZero := false
		for ch := 0; ch < data.Channels; ch++ {
			if data.Samples[i*data.Channels+ch] != 0 {
				nonZero = true
				break
			}
		}
		if nonZero {
			if i < first {
				first = i
			}
			if i+1 > last {
				last = i + 1
			}
		}
	}
	if first >= last {
		return 0, n
	}
	return first, last
}

func groupByBit(bits []syncpattern.FrameBit) map[int][]syncpattern.FrameBit {
	g := make(map[int][]syncpattern.FrameBit)
	for _, fb := range bits {
		g[fb.Bit] = append(g[fb.Bit], fb)
	}
	return g
}

// syncDecode aggregates, per bit, the up/down band energy across all of
// that bit's frame repetitions available in frames, scores each bit once
// with BitQuality, and averages across bits weighted by how many
// repetitions actually contributed.
func syncDecode(grouped map[int][]syncpattern.FrameBit, startFrame int, frames []spectral.FrameDB) (float64, bool) {
	var totalWeighted float64
	var totalCount int

	for bit, group := range grouped {
		var umagSum, dmagSum float64
		var count int
		for _, fb := range group {
			frame := startFrame + fb.Frame
			if frame < 0 || frame >= len(frames) || !frames[frame].Have {
				continue
			}
			for _, b := range fb.Up {
				umagSum += frames[frame].Bands[b]
			}
			for _, b := range fb.Down {
				dmagSum += frames[frame].Bands[b]
			}
			count++
		}
		if count == 0 {
			continue
		}
		q := spectral.BitQuality(umagSum, dmagSum, bit)
		totalWeighted += q * float64(count)
		totalCount += count
	}

	if totalCount == 0 {
		return 0, false
	}
	return totalWeighted / float64(totalCount), true
}

func computeLocalMean(scores []searchScore) {
	for i := range scores {
		var sum float64
		var count int
		for j := -localMeanDistance; j <= localMeanDistance; j++ {
			if j >= -3 && j <= 3 {
				continue
			}
			idx := i + j
			if idx < 0 || idx >= len(scores) {
				continue
			}
			sum += scores[idx].rawQuality
			count++
		}
		if count > 0 {
			scores[i].localMean = sum / float64(count)
		}
	}
}

func selectLocalMaxima(scores []searchScore) []searchScore {
	var out []searchScore
	for i := 0; i < len(scores); i++ {
		q := scores[i].absQuality()
		qLast, qNext := math.Inf(-1), math.Inf(-1)
		if i > 0 {
			qLast = scores[i-1].absQuality()
		}
		if i < len(scores)-1 {
			qNext = scores[i+1].absQuality()
		}
		if q >= qLast && q >= qNext {
			out = append(out, scores[i])
			i++ // skip the index right after a peak
		}
	}
	return out
}

func maskAvgFalsePositives(scores []searchScore, syncSearchStep int) []searchScore {
	const maskDistance = localMeanDistance + 3
	const maskFactor = 3.0

	keep := make([]bool, len(scores))
	for i := range keep {
		keep[i] = true
	}
	sign := func(s searchScore) float64 { return s.rawQuality - s.localMean }

	for i := range scores {
		for j := range scores {
			if i == j {
				continue
			}
			if abs(i-j) > maskDistance {
				continue
			}
			sampleDist := abs(scores[i].index-scores[j].index) / max(syncSearchStep, 1)
			if sampleDist > maskDistance {
				continue
			}
			if scores[j].absQuality() > scores[i].absQuality()*maskFactor && sign(scores[j])*sign(scores[i]) < 0 {
				keep[i] = false
				break
			}
		}
	}

	var out []searchScore
	for i, s := range scores {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

func selectThresholdAndNBest(scores []searchScore, threshold float64, nBest int) []searchScore {
	sorted := append([]searchScore(nil), scores...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].absQuality() > sorted[b].absQuality() })

	var above []searchScore
	for _, s := range sorted {
		if s.absQuality() > threshold {
			above = append(above, s)
		}
	}
	if len(above) >= nBest {
		return above
	}
	if len(sorted) > nBest {
		return sorted[:nBest]
	}
	return sorted
}

func selectTruncateN(scores []searchScore, n int) []searchScore {
	sorted := append([]searchScore(nil), scores...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].absQuality() > sorted[b].absQuality() })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
