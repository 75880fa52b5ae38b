package syncpattern

import (
	"testing"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() key.Key {
	k, err := key.FromBytes([]byte("0123456789abcdef"))
	if err != nil {
		panic(err)
	}
	return k
}

func TestGetSyncBitsIsDeterministic(t *testing.T) {
	p := params.Default()
	k := testKey()

	a := GetSyncBits(k, p, params.ModeBlock)
	b := GetSyncBits(k, p, params.ModeBlock)

	require.Equal(t, a, b, "the same key and mode must produce the same layout every time")
}

func TestGetSyncBitsBlockVsClipCounts(t *testing.T) {
	p := params.Default()
	k := testKey()

	block := GetSyncBits(k, p, params.ModeBlock)
	clip := GetSyncBits(k, p, params.ModeClip)

	assert.Len(t, block, p.SyncBits*p.SyncFramesPerBit)
	assert.Len(t, clip, 2*p.SyncBits*p.SyncFramesPerBit)
}

func TestGetSyncBitsSortedByFrame(t *testing.T) {
	p := params.Default()
	bits := GetSyncBits(testKey(), p, params.ModeClip)

	for i := 1; i < len(bits); i++ {
		assert.LessOrEqual(t, bits[i-1].Frame, bits[i].Frame)
	}
}

func TestGetSyncBitsUpDownPartitionBands(t *testing.T) {
	p := params.Default()
	bits := GetSyncBits(testKey(), p, params.ModeBlock)

	for _, fb := range bits {
		seen := map[int]bool{}
		for _, b := range fb.Up {
			seen[b] = true
		}
		for _, b := range fb.Down {
			assert.False(t, seen[b], "a band must not appear in both up and down")
		}
		assert.Equal(t, p.NBands(), len(fb.Up)+len(fb.Down))
	}
}

func TestGetSyncBitsClipSwapsSecondBlockPolarity(t *testing.T) {
	p := params.Default()
	bits := GetSyncBits(testKey(), p, params.ModeClip)

	firstBlockEnd := p.MarkSyncFrameCount() + p.MarkDataFrameCount()
	byPos := map[int]FrameBit{}
	for _, fb := range bits {
		block := fb.Frame / firstBlockEnd
		pos := fb.Frame % firstBlockEnd
		if block == 0 {
			byPos[pos] = fb
		}
	}
	for _, fb := range bits {
		block := fb.Frame / firstBlockEnd
		pos := fb.Frame % firstBlockEnd
		if block == 1 {
			first, ok := byPos[pos]
			if ok {
				assert.Equal(t, first.Up, fb.Down)
				assert.Equal(t, first.Down, fb.Up)
			}
		}
	}
}
