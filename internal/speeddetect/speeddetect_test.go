package speeddetect

import (
	"testing"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/workpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) key.Key {
	t.Helper()
	k, err := key.FromBytes([]byte("0123456789abcdef"))
	require.NoError(t, err)
	return k
}

func TestScanRangeBracketsOneHundredPercent(t *testing.T) {
	lo, hi := ScanRange(scan1Normal)
	assert.Less(t, lo, 100.0)
	assert.Greater(t, hi, 100.0)
}

func TestGetClipLocationsIsDeterministic(t *testing.T) {
	data := signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 44100*5)}
	for i := range data.Samples {
		data.Samples[i] = float64(i%17) / 17
	}
	k := testKey(t)

	a := GetClipLocations(k, data, 5)
	b := GetClipLocations(k, data, 5)
	require.Equal(t, a, b)
	for _, loc := range a {
		assert.GreaterOrEqual(t, loc, 0.0)
		assert.Less(t, loc, 1.0)
	}
}

func TestSelectNBestScoresKeepsLocalMaxima(t *testing.T) {
	scores := []Score{
		{Speed: 1.0, Quality: 0.1},
		{Speed: 1.1, Quality: 0.9},
		{Speed: 1.2, Quality: 0.2},
		{Speed: 1.3, Quality: 0.05},
		{Speed: 1.4, Quality: 0.8},
		{Speed: 1.5, Quality: 0.1},
	}
	best := SelectNBestScores(scores, 1)
	require.Len(t, best, 1)
	assert.Equal(t, 1.1, best[0].Speed)
}

func TestScoreSmoothFindBestPicksThePeak(t *testing.T) {
	scores := []Score{
		{Speed: 0.98, Quality: 0.1},
		{Speed: 0.99, Quality: 0.3},
		{Speed: 1.00, Quality: 0.9},
		{Speed: 1.01, Quality: 0.3},
		{Speed: 1.02, Quality: 0.1},
	}
	best := ScoreSmoothFindBest(scores, 0.01, 2)
	assert.InDelta(t, 1.00, best, 0.01)
}

func TestDetectSpeedOnShortClipReturnsNothing(t *testing.T) {
	p := params.Default()
	pool := workpool.New(2)
	defer pool.Close()
	d := New(p, pool)

	data := signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 1000)}
	results := d.DetectSpeed([]key.Key{testKey(t)}, data)
	assert.Nil(t, results)
}
