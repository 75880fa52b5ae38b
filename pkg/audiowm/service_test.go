package audiowm

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/stretchr/testify/require"
)

// noiseSignal builds a broadband (not silent) test signal long enough to
// hold the given number of reference-encoder blocks, so a watermark search
// has real per-band energy to compete against rather than finding a clean
// bit pattern on top of digital silence. Deterministic for a fixed seed.
func noiseSignal(p params.Params, blocks int, seed int64) signal.Data {
	rng := rand.New(rand.NewSource(seed))
	// +8 frames of margin, not a full block, so exactly blocks blocks fit
	// and no partial trailing block sneaks into the search.
	frames := p.FramesPadStart + blocks*p.BlockFrameCount() + 8
	samples := make([]float64, frames*p.FrameSize)
	for i := range samples {
		samples[i] = (rng.Float64()*2 - 1) * 0.005
	}
	return signal.Data{SampleRate: p.MarkSampleRate, Channels: 1, Samples: samples}
}

// fakeStorage is an in-memory Storage for exercising the service without
// a real database, mirroring how the teacher's tests avoid sqlite.
type fakeStorage struct {
	keys     map[string]KeyRow
	sessions []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{keys: make(map[string]KeyRow)}
}

func (f *fakeStorage) RegisterKey(label string, k [16]byte) (string, error) {
	f.keys[label] = KeyRow{Label: label, HexKey: key.Key(k).String()}
	return label, nil
}

func (f *fakeStorage) GetKeyByLabel(label string) (KeyRow, error) {
	row, ok := f.keys[label]
	if !ok {
		return KeyRow{}, fmt.Errorf("key %q not registered", label)
	}
	return row, nil
}

func (f *fakeStorage) ListKeys() ([]KeyRow, error) {
	var rows []KeyRow
	for _, r := range f.keys {
		rows = append(rows, r)
	}
	return rows, nil
}

func (f *fakeStorage) DeleteKey(label string) error {
	delete(f.keys, label)
	return nil
}

func (f *fakeStorage) LogSession(operation, keyLabel string, scoreCount int, bestQuality, speedFactor float64, paramsFingerprint string) error {
	f.sessions = append(f.sessions, operation)
	return nil
}

func (f *fakeStorage) Close() error { return nil }

func testKey(t *testing.T) key.Key {
	t.Helper()
	k, err := key.FromBytes([]byte("0123456789abcdef"))
	require.NoError(t, err)
	return k
}

func newTestService(t *testing.T) (*decoderService, *fakeStorage) {
	t.Helper()
	stor := newFakeStorage()
	svc, err := NewService(WithStorage(stor), WithParams(params.Default()))
	require.NoError(t, err)
	return svc.(*decoderService), stor
}

func TestAddKeyAndListKeys(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	require.NoError(t, svc.AddKey("alice", testKey(t)))
	infos, err := svc.ListKeys()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "alice", infos[0].Label)
}

// TestAddThenGetFindsRegisteredKey covers the round-trip property: for a
// clean encoded signal, Get must return scores above SyncThreshold2 at
// each expected block boundary, with block types alternating A,B,A
// starting from the first block (scenario S1, scaled to this module's own
// BlockFrameCount rather than the literal 60s/1024-sample reference
// numbers, since DataFrameCount here was chosen independently — see
// DESIGN.md §3c).
func TestAddThenGetFindsRegisteredKey(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	require.NoError(t, svc.AddKey("alice", testKey(t)))

	p := params.Default()
	data := noiseSignal(p, 3, 1)

	watermarked, err := svc.Add(context.Background(), data, "alice")
	require.NoError(t, err)
	require.Equal(t, len(data.Samples), len(watermarked.Samples))

	result, err := svc.Get(context.Background(), watermarked, []string{"alice"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Candidates), 3)

	byIndex := append([]SyncCandidate(nil), result.Candidates...)
	sortByFrameIdx(byIndex)

	wantType := "A"
	for _, c := range byIndex[:3] {
		require.Greater(t, c.Quality, p.SyncThreshold2)
		require.Equal(t, wantType, c.BlockType)
		if wantType == "A" {
			wantType = "B"
		} else {
			wantType = "A"
		}
	}
}

func sortByFrameIdx(c []SyncCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].FrameIdx < c[j-1].FrameIdx; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func TestGetWithUnknownKeyLabelErrors(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	_, err := svc.Get(context.Background(), signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 1000)}, []string{"missing"})
	require.Error(t, err)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	data := signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 1000)}
	_, err := svc.Search(context.Background(), data, []string{"alice"}, "frame")
	require.Error(t, err)
}

func TestSearchDefaultModeMatchesGet(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	p := params.Default()
	data := noiseSignal(p, 2, 2)
	watermarked, err := svc.Add(context.Background(), data, "alice")
	require.NoError(t, err)

	viaSearch, err := svc.Search(context.Background(), watermarked, []string{"alice"}, "")
	require.NoError(t, err)
	viaGet, err := svc.Get(context.Background(), watermarked, []string{"alice"})
	require.NoError(t, err)
	require.Equal(t, len(viaGet.Candidates), len(viaSearch.Candidates))
	require.NotEmpty(t, viaSearch.Candidates)
	require.Greater(t, viaSearch.Candidates[0].Quality, p.SyncThreshold2,
		"best candidate from either path should clear the sync threshold for a clean encoded signal")
}

func TestDetectSpeedOnShortSignalReturnsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()
	require.NoError(t, svc.AddKey("alice", testKey(t)))

	data := signal.Data{SampleRate: 44100, Channels: 1, Samples: make([]float64, 1000)}
	results, err := svc.DetectSpeed(context.Background(), data, []string{"alice"})
	require.NoError(t, err)
	require.Empty(t, results)
}
