// Package speeddetect estimates the playback-speed drift of a decoded
// clip relative to the rate it was watermarked at. It is a port of
// SpeedSync/SpeedSearch/detect_speed from the audiowmark reference
// implementation: a multi-resolution coarse-to-fine sweep over candidate
// speed factors, scored by how well the sync pattern's bit_quality lines
// up once the clip is resampled as if it had been played at that speed.
package speeddetect

import (
	"math"
	"sort"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/spectral"
	"github.com/himanishpuri/audiowm/internal/syncpattern"
	"github.com/himanishpuri/audiowm/internal/workpool"
)

// Score is one (speed, quality) sample produced while sweeping candidate
// speeds.
type Score struct {
	Speed   float64
	Quality float64
}

// KeySpeed is a confirmed speed-drift estimate for one key.
type KeySpeed struct {
	Key   key.Key
	Speed float64
}

// SpeedScanParams controls one sweep pass: Seconds of clip analyzed,
// multiplicative Step between adjacent candidates, how many NSteps either
// side of each center speed to test, and how many NCenterSteps
// independently resampled center speeds to place either side of the pass's
// base speed, spaced 2*NSteps+1 steps apart.
type SpeedScanParams struct {
	Seconds      float64
	Step         float64
	NSteps       int
	NCenterSteps int
}

var (
	scan1Normal  = SpeedScanParams{Seconds: 25, Step: 1.0007, NSteps: 5, NCenterSteps: 28}
	scan1Patient = SpeedScanParams{Seconds: 50, Step: 1.00035, NSteps: 11, NCenterSteps: 28}
	scan2Normal  = SpeedScanParams{Seconds: 50, Step: 1.00035, NSteps: 1, NCenterSteps: 0}
	scan2Patient = SpeedScanParams{Seconds: 50, Step: 1.000175, NSteps: 1, NCenterSteps: 0}
	scan3        = SpeedScanParams{Seconds: 50, Step: 1.00005, NSteps: 40, NCenterSteps: 0}
)

const (
	scan3SmoothDistance  = 20
	speedSyncThreshold    = 0.4
)

// ScanRange reports the speed range a SpeedScanParams can possibly detect
// around a base speed of 1.0, as percentages (100 = no drift), ported from
// SpeedSearch::debug_range.
func ScanRange(p SpeedScanParams) (lo, hi float64) {
	bound := func(f float64) float64 {
		exp := f * float64(p.NCenterSteps*(p.NSteps*2+1)+p.NSteps)
		return 100 * math.Pow(p.Step, exp)
	}
	return bound(-1), bound(1)
}

// Mags is one matrix cell: accumulated up/down band energy for one sync
// bit position at one analysis row.
type Mags struct {
	Umag, Dmag float64
}

// MagMatrix is a column-major rows x cols matrix of Mags, mirroring the
// original's MagMatrix layout (row = analysis position, column = sync bit
// index).
type MagMatrix struct {
	rows, cols int
	data       []Mags
}

func newMagMatrix(rows, cols int) *MagMatrix {
	return &MagMatrix{rows: rows, cols: cols, data: make([]Mags, rows*cols)}
}

func (m *MagMatrix) at(row, col int) Mags { return m.data[col*m.rows+row] }
func (m *MagMatrix) set(row, col int, v Mags) { m.data[col*m.rows+row] = v }

// BitValue accumulates umag/dmag across every block and sync-bit
// repetition that voted for the same bit during one compare() pass.
type BitValue struct {
	Umag, Dmag float64
	Count      int
}

// speedSync owns one independently-resampled magnitude matrix and sweeps
// a small band of candidate speeds against it.
type speedSync struct {
	p        params.Params
	clip     signal.Data
	center   float64
	syncBits []syncpattern.FrameBit
	matrix   *MagMatrix
}

func newSpeedSync(k key.Key, p params.Params, data signal.Data, clipLocation, center, scanSeconds float64) *speedSync {
	clip := getSpeedClip(data, clipLocation, scanSeconds*1.3)
	return &speedSync{
		p:        p,
		clip:     clip,
		center:   center,
		syncBits: syncpattern.GetSyncBits(k, p, params.ModeBlock),
	}
}

// prepareMags resamples the clip as if it had been played at s.center
// speed and builds the sliding-window magnitude matrix used by compare.
func (s *speedSync) prepareMags(scan SpeedScanParams) error {
	p := s.p
	targetRate := int(float64(p.MarkSampleRate) / 2 * s.center)
	if targetRate <= 0 {
		targetRate = p.MarkSampleRate / 2
	}
	truncSeconds := scan.Seconds / s.center

	resampled, err := resampleRatioTruncate(s.clip, targetRate, truncSeconds)
	if err != nil {
		return err
	}

	subFrameSize := p.FrameSize / 2
	subStep := p.SyncSearchStep / 2
	if subFrameSize <= 0 || subStep <= 0 {
		return nil
	}
	window := spectral.NormalizedWindow(subFrameSize)

	nRows := 0
	for start := 0; start+subFrameSize <= resampled.NumFrames(); start += subStep {
		nRows++
	}

	matrix := newMagMatrix(nRows, len(s.syncBits))
	channels := make([][]float64, resampled.Channels)
	for ch := range channels {
		channels[ch], _ = resampled.Channel(ch)
	}

	row := 0
	bandsDB := make([]float64, p.NBands())
	for start := 0; start+subFrameSize <= resampled.NumFrames(); start += subStep {
		for i := range bandsDB {
			bandsDB[i] = 0
		}
		for _, channel := range channels {
			frame := make([]float64, subFrameSize)
			for i := 0; i < subFrameSize; i++ {
				frame[i] = channel[start+i] * window[i]
			}
			spectrum := spectral.FFTReal(frame)
			for b := p.MinBand; b <= p.MaxBand; b++ {
				bandsDB[b-p.MinBand] += spectral.DBFromComplex(spectrum[b])
			}
		}

		for mi, fb := range s.syncBits {
			var umag, dmag float64
			for _, b := range fb.Up {
				umag += bandsDB[b]
			}
			for _, b := range fb.Down {
				dmag += bandsDB[b]
			}
			matrix.set(row, mi, Mags{Umag: umag, Dmag: dmag})
		}
		row++
	}

	s.matrix = matrix
	return nil
}

// free drops the magnitude matrix, matching the original's explicit
// free_memory step between batches so peak memory stays bounded.
func (s *speedSync) free() {
	s.matrix = nil
}

// sweep scores pow(step, p)*speed for p in [-nSteps, nSteps], each value
// evaluated by compare against this instance's resampled matrix.
func (s *speedSync) sweep(nSteps int, step, speed float64) []Score {
	if s.matrix == nil {
		return nil
	}
	scores := make([]Score, 0, 2*nSteps+1)
	for p := -nSteps; p <= nSteps; p++ {
		relativeSpeed := math.Pow(step, float64(p)) * speed / s.center
		scores = append(scores, s.compare(relativeSpeed, speed, step, p))
	}
	return scores
}

// compare scans every row of the magnitude matrix for the alignment that
// best matches three consecutive watermark blocks under relativeSpeed,
// keeping the best. Three blocks are probed because a short (12-bit)
// payload's block can run longer than a single scan window, so the
// alignment search needs slack on either side of the first block.
func (s *speedSync) compare(relativeSpeed, speed, step float64, p int) Score {
	result := Score{Speed: math.Pow(step, float64(p)) * speed, Quality: 0}
	if s.matrix == nil || s.matrix.rows == 0 {
		return result
	}

	framesPerBlock := s.p.BlockFrameCount()
	stepsPerFrame := s.p.FrameSize / s.p.SyncSearchStep
	relativeSpeedInv := 1 / relativeSpeed

	for r := 0; r < s.matrix.rows; r++ {
		bitValues := make([]BitValue, s.p.SyncBits)
		for block := 0; block < 3; block++ {
			for mi, fb := range s.syncBits {
				frameOffset := int(math.Round(float64(block*framesPerBlock+fb.Frame) * float64(stepsPerFrame) * relativeSpeedInv))
				row := r + frameOffset
				if row < 0 || row >= s.matrix.rows {
					continue
				}
				mags := s.matrix.at(row, mi)
				umag, dmag := mags.Umag, mags.Dmag
				if block&1 == 1 {
					umag, dmag = dmag, umag
				}
				bv := &bitValues[fb.Bit]
				bv.Umag += umag
				bv.Dmag += dmag
				bv.Count++
			}
		}

		var weighted float64
		var count int
		for bit, bv := range bitValues {
			if bv.Count == 0 {
				continue
			}
			q := spectral.BitQuality(bv.Umag, bv.Dmag, bit)
			weighted += q * float64(bv.Count)
			count += bv.Count
		}
		if count == 0 {
			continue
		}
		quality := math.Abs(spectral.NormalizeSyncQuality(weighted/float64(count), s.p.WaterDelta))
		if quality > result.Quality {
			result.Quality = quality
		}
	}
	return result
}

// getSpeedClip extracts a seconds-long clip starting at a fraction
// (location, in [0,1)) of the way through data, clamped so the clip never
// runs past the end.
func getSpeedClip(data signal.Data, location, seconds float64) signal.Data {
	dur := data.Duration()
	start := location * (dur - seconds)
	if start < 0 {
		start = 0
	}
	startFrame := int(start * float64(data.SampleRate))
	endFrame := startFrame + int(seconds*float64(data.SampleRate))
	return data.Slice(startFrame, endFrame)
}

// GetClipLocations derives n candidate clip-start fractions from the key's
// speed_clip stream, folding a sparse sample of the signal itself into the
// seed so the same key picks different candidates for different audio.
func GetClipLocations(k key.Key, data signal.Data, n int) []float64 {
	rng := key.NewRandom(k, key.StreamSpeedClip)

	var xsamples []byte
	for i := 0; i < len(data.Samples); {
		xsamples = append(xsamples, float64Bytes(data.Samples[i])...)
		step := int(rng.UintN(1000)) + 1
		i += step
	}
	rng.Reseed(key.SeedFromHash(xsamples))

	locs := make([]float64, n)
	for i := range locs {
		locs[i] = rng.Float64()
	}
	return locs
}

func float64Bytes(f float64) []byte {
	bits := math.Float64bits(f)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	return b
}

// GetBestClipLocation tries candidates clip-start fractions and returns
// the one whose clip carries the most signal energy, avoiding silence.
func GetBestClipLocation(k key.Key, data signal.Data, seconds float64, candidates int) float64 {
	locs := GetClipLocations(k, data, candidates)
	best := 0.0
	bestEnergy := -1.0
	for _, loc := range locs {
		clip := getSpeedClip(data, loc, seconds)
		e := clip.Energy()
		if e > bestEnergy {
			bestEnergy = e
			best = loc
		}
	}
	return best
}

// SelectNBestScores keeps the n local-maxima of scores with the highest
// quality, sorted by speed beforehand so adjacency reflects the speed
// axis.
func SelectNBestScores(scores []Score, n int) []Score {
	sorted := append([]Score(nil), scores...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Speed < sorted[j].Speed })

	var maxima []Score
	for i := 0; i < len(sorted); i++ {
		q1, q2, q3 := math.Inf(-1), sorted[i].Quality, math.Inf(-1)
		if i > 0 {
			q1 = sorted[i-1].Quality
		}
		if i < len(sorted)-1 {
			q3 = sorted[i+1].Quality
		}
		if q1 <= q2 && q2 >= q3 {
			maxima = append(maxima, sorted[i])
			i++
		}
	}

	sort.Slice(maxima, func(i, j int) bool { return maxima[i].Quality > maxima[j].Quality })
	if len(maxima) > n {
		maxima = maxima[:n]
	}
	return maxima
}

// ScoreSmoothFindBest slides a raised-cosine window of width step*distance
// across scores (sorted by speed) and returns the speed whose
// weighted-smoothed quality is highest.
func ScoreSmoothFindBest(scores []Score, step float64, distance int) float64 {
	if len(scores) == 0 {
		return 1.0
	}
	sorted := append([]Score(nil), scores...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Speed < sorted[j].Speed })

	width := step * float64(distance)
	windowCos := func(x float64) float64 {
		if x < -1 || x > 1 {
			return 0
		}
		return 0.5 + 0.5*math.Cos(x*math.Pi)
	}

	bestSpeed := sorted[0].Speed
	bestQuality := math.Inf(-1)
	lo, hi := sorted[0].Speed, sorted[len(sorted)-1].Speed
	const increment = 0.000001
	for speed := lo; speed <= hi; speed += increment {
		var weighted, weight float64
		for _, s := range sorted {
			w := windowCos((s.Speed - speed) / width)
			weighted += w * s.Quality
			weight += w
		}
		if weight == 0 {
			continue
		}
		q := weighted / weight
		if q > bestQuality {
			bestQuality = q
			bestSpeed = speed
		}
	}
	return bestSpeed
}

// Detector runs the full multi-pass speed-detection pipeline.
type Detector struct {
	Params params.Params
	Pool   *workpool.Pool
}

// New returns a Detector sharing pool with the rest of the decoder core.
func New(p params.Params, pool *workpool.Pool) *Detector {
	return &Detector{Params: p, Pool: pool}
}

type keySearch struct {
	k            key.Key
	clipLocation float64
	scores       []Score
}

type speedJob struct {
	ks     *keySearch
	sync   *speedSync
	speed  float64
	result []Score
}

// DetectSpeed estimates playback-speed drift for every key, returning one
// KeySpeed per key whose best-quality speed estimate clears the
// confidence threshold and differs meaningfully from 1.0.
func (d *Detector) DetectSpeed(keys []key.Key, data signal.Data) []KeySpeed {
	if data.Duration() < 0.25 {
		return nil
	}

	scan1, scan2 := scan1Normal, scan2Normal
	nBest := 5
	if d.Params.DetectSpeedPatient {
		scan1, scan2 = scan1Patient, scan2Patient
		nBest = 15
	}
	const clipCandidates = 5

	searches := make([]*keySearch, len(keys))
	for i, k := range keys {
		loc := GetBestClipLocation(k, data, scan1.Seconds, clipCandidates)
		searches[i] = &keySearch{k: k, clipLocation: loc}
	}

	runSearch := func(scan SpeedScanParams, targets []*keySearch, speedsFor func(*keySearch) []float64) {
		var jobs []*speedJob
		for _, ks := range targets {
			for _, speed := range speedsFor(ks) {
				for c := -scan.NCenterSteps; c <= scan.NCenterSteps; c++ {
					cSpeed := speed * math.Pow(scan.Step, float64(c*(2*scan.NSteps+1)))
					sync := newSpeedSync(ks.k, d.Params, data, ks.clipLocation, cSpeed, scan.Seconds)
					jobs = append(jobs, &speedJob{ks: ks, sync: sync, speed: cSpeed})
				}
			}
		}

		batches := workpool.SplitJobs(len(jobs), d.Pool.NWorkers())
		idx := 0
		for _, batch := range batches {
			cur := jobs[idx : idx+batch]
			idx += batch

			for _, j := range cur {
				j := j
				d.Pool.AddJob(func() { j.sync.prepareMags(scan) })
			}
			d.Pool.WaitAll()

			for _, j := range cur {
				j := j
				d.Pool.AddJob(func() { j.result = j.sync.sweep(scan.NSteps, scan.Step, j.speed) })
			}
			d.Pool.WaitAll()

			for _, j := range cur {
				j.sync.free()
				j.ks.scores = append(j.ks.scores, j.result...)
			}
		}
	}

	runSearch(scan1, searches, func(*keySearch) []float64 { return []float64{1.0} })
	runSearch(scan2, searches, func(ks *keySearch) []float64 {
		best := SelectNBestScores(ks.scores, nBest)
		speeds := make([]float64, len(best))
		for i, s := range best {
			speeds[i] = s.Speed
		}
		if len(speeds) == 0 {
			speeds = []float64{1.0}
		}
		return speeds
	})

	var results []KeySpeed
	for _, ks := range searches {
		single := SelectNBestScores(ks.scores, 1)
		seed := 1.0
		if len(single) > 0 {
			seed = single[0].Speed
		}
		ks.scores = nil
		runSearch(scan3, []*keySearch{ks}, func(*keySearch) []float64 { return []float64{seed} })

		bestSpeed := ScoreSmoothFindBest(ks.scores, 1-scan3.Step, scan3SmoothDistance)
		bestQuality := 0.0
		for _, s := range ks.scores {
			if s.Quality > bestQuality {
				bestQuality = s.Quality
			}
		}
		if bestQuality > speedSyncThreshold && (bestSpeed < 0.9999 || bestSpeed > 1.0001) {
			results = append(results, KeySpeed{Key: ks.k, Speed: bestSpeed})
		}
	}
	return results
}
