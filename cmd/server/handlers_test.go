package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/himanishpuri/audiowm/internal/key"
	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/wav"
	"github.com/himanishpuri/audiowm/pkg/audiowm"
	"github.com/stretchr/testify/require"
)

// memWriteSeeker is a minimal growable io.WriteSeeker, needed because the
// go-audio wav encoder seeks back to patch chunk sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (w *memWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + int64(len(p))
	if end > int64(len(w.buf)) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		w.pos = offset
	case 1:
		w.pos += offset
	case 2:
		w.pos = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	return w.pos, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDB := t.TempDir() + "/test.sqlite3"
	svc, err := audiowm.NewService(audiowm.WithDBPath(tmpDB))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return NewServer(svc, &ServerConfig{Port: 0, DBPath: tmpDB, AllowedOrigins: []string{"*"}})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleAddKeyThenListKeys(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(AddKeyRequest{Label: "alice", HexKey: "00112233445566778899aabbccddeeff"[:32]})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/keys", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleAddKey(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	listW := httptest.NewRecorder()
	s.handleListKeys(listW, listReq)
	require.Equal(t, http.StatusOK, listW.Code)

	var resp ListKeysResponse
	require.NoError(t, json.NewDecoder(listW.Body).Decode(&resp))
	require.Len(t, resp.Keys, 1)
	require.Equal(t, "alice", resp.Keys[0].Label)
}

func TestHandleAddKeyRejectsBadHex(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(AddKeyRequest{Label: "bob", HexKey: "not-hex"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/keys", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleAddKey(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleDecodeRoundTrip exercises scenario S1 end to end through the
// HTTP handler: a clean encoded (non-silent) capture must come back with
// sync candidates whose quality clears SyncThreshold2.
func TestHandleDecodeRoundTrip(t *testing.T) {
	s := newTestServer(t)

	k, err := key.FromBytes([]byte("0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, s.service.AddKey("alice", k))

	p := params.Default()
	frames := p.FramesPadStart + 3*p.BlockFrameCount() + p.BlockFrameCount()
	rng := rand.New(rand.NewSource(5))
	samples := make([]float64, frames*p.FrameSize)
	for i := range samples {
		samples[i] = (rng.Float64()*2 - 1) * 0.005
	}
	data := signal.Data{SampleRate: p.MarkSampleRate, Channels: 1, Samples: samples}

	watermarked, err := s.service.Add(context.Background(), data, "alice")
	require.NoError(t, err)

	out := &memWriteSeeker{}
	require.NoError(t, wav.Write(out, watermarked))

	body, err := json.Marshal(DecodeRequest{WAVBase64: base64.StdEncoding.EncodeToString(out.buf)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/decode", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleDecode(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp DecodeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.GreaterOrEqual(t, resp.Count, 3)
	require.Equal(t, len(resp.Candidates), resp.Count)
	for _, c := range resp.Candidates {
		require.Greater(t, c.Quality, p.SyncThreshold2)
		require.Contains(t, []string{"A", "B"}, c.BlockType)
	}
}

func TestHandleDecodeRejectsUnknownMode(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(DecodeRequest{WAVBase64: "aGVsbG8=", Mode: "frame"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/decode", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleDecode(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
