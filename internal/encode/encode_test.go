package encode

import (
	"math/rand"
	"testing"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/syncfinder"
	"github.com/himanishpuri/audiowm/internal/workpool"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) key.Key {
	t.Helper()
	k, err := key.FromBytes([]byte("0123456789abcdef"))
	require.NoError(t, err)
	return k
}

func noiseSignal(p params.Params, blocks int, seed int64) signal.Data {
	rng := rand.New(rand.NewSource(seed))
	frames := p.FramesPadStart + blocks*p.BlockFrameCount() + 8
	samples := make([]float64, frames*p.FrameSize)
	for i := range samples {
		samples[i] = (rng.Float64()*2 - 1) * 0.005
	}
	return signal.Data{SampleRate: p.MarkSampleRate, Channels: 1, Samples: samples}
}

// TestAddTilesAlternatingBlocks confirms the reference encoder writes more
// than one block across a long signal, alternating polarity every other
// block, rather than a single fixed A-type block — the property
// scenario S1's "alternate A,B,A" assertion depends on.
func TestAddTilesAlternatingBlocks(t *testing.T) {
	p := params.Default()
	data := noiseSignal(p, 3, 9)
	k := testKey(t)

	out := New(p).Add(data, k)
	require.Equal(t, len(data.Samples), len(out.Samples))

	pool := workpool.New(2)
	defer pool.Close()
	finder := syncfinder.New(p, pool)
	results := finder.Search([]key.Key{k}, out, params.ModeBlock)
	require.Len(t, results, 1)

	scores := results[0].Scores
	require.GreaterOrEqual(t, len(scores), 3)
	for _, s := range scores[:3] {
		require.Greater(t, s.Quality, p.SyncThreshold2)
	}
	require.Equal(t, params.BlockA, scores[0].BlockType)
	require.Equal(t, params.BlockB, scores[1].BlockType)
	require.Equal(t, params.BlockA, scores[2].BlockType)
}

func TestAddOnSilenceStillPlacesFirstBlock(t *testing.T) {
	p := params.Default()
	frames := p.FramesPadStart + p.BlockFrameCount()
	data := signal.Data{SampleRate: p.MarkSampleRate, Channels: 1, Samples: make([]float64, frames*p.FrameSize)}

	out := New(p).Add(data, testKey(t))
	require.NotEqual(t, data.Samples, out.Samples)
}
