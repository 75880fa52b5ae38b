package syncfinder

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

func silentSignal(p params.Params, blocks int) signal.Data {
	n := p.FramesPadStart*p.FrameSize + blocks*p.BlockFrameCount()*p.FrameSize + p.FrameSize
	return signal.Data{SampleRate: p.MarkSampleRate, Channels: 1, BitDepth: 16, Samples: make([]float64, n)}
}

func TestFakeSyncProducesAlternatingBlockTypes(t *testing.T) {
	p := params.Default()
	p.TestNoSync = true
	pool := workpool.New(2)
	defer pool.Close()

	f := New(p, pool)
	data := silentSignal(p, 3)

	results := f.Search([]key.Key{testKey(t)}, data, params.ModeBlock)
	require.Len(t, results, 1)
	scores := results[0].Scores
	require.GreaterOrEqual(t, len(scores), 3)

	for i, s := range scores {
		wantType := params.BlockA
		if i%2 == 1 {
			wantType = params.BlockB
		}
		assert.Equal(t, wantType, s.BlockType)
		assert.Equal(t, p.FramesPadStart*p.FrameSize+i*p.BlockFrameCount()*p.FrameSize, s.Index)
	}
}

func TestFakeSyncIsKeyIndependent(t *testing.T) {
	p := params.Default()
	p.TestNoSync = true
	pool := workpool.New(2)
	defer pool.Close()

	f := New(p, pool)
	data := silentSignal(p, 2)

	k1, err := key.FromBytes([]byte("0000000000000000"))
	require.NoError(t, err)
	k2, err := key.FromBytes([]byte("ffffffffffffffff"))
	require.NoError(t, err)

	results := f.Search([]key.Key{k1, k2}, data, params.ModeBlock)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Scores, results[1].Scores)
}

func TestDescribeOffsetFindsNearestBlock(t *testing.T) {
	p := params.Default()
	pool := workpool.New(1)
	defer pool.Close()
	f := New(p, pool)

	wmLength := p.BlockFrameCount() * p.FrameSize
	wmOffset := p.FramesPadStart * p.FrameSize

	got := f.DescribeOffset(wmOffset + 3*wmLength + 7)
	assert.Equal(t, "n:3 offset:7", got)
}

func TestSearchOnSilenceFindsNoRealQuality(t *testing.T) {
	p := params.Default()
	pool := workpool.New(2)
	defer pool.Close()
	f := New(p, pool)

	data := silentSignal(p, 2)
	results := f.Search([]key.Key{testKey(t)}, data, params.ModeBlock)
	require.Len(t, results, 1)
	// On silence every band sits at the -96 dB floor, so each sync bit's
	// up/down sums have the same ratio and the even and odd bits' equal but
	// opposite bit_quality values cancel to 0 for every candidate: whatever
	// the threshold-and-n-best fallback returns, none of it can represent a
	// genuine sync lock.
	for _, s := range results[0].Scores {
		assert.Zero(t, s.Quality)
	}
}
