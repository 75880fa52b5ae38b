package storage

import (
	"testing"

	"github.com/himanishpuri/audiowm/internal/params"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DBClient {
	t.Helper()
	db, err := NewDBClientWithPath(t.TempDir() + "/test.sqlite3")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterKeyUpsertsByLabel(t *testing.T) {
	db := newTestDB(t)

	id1, err := db.RegisterKey("alice", [16]byte{1, 2, 3})
	require.NoError(t, err)

	id2, err := db.RegisterKey("alice", [16]byte{4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, id1, id2, "re-registering the same label should update, not duplicate")

	rec, err := db.GetKeyByLabel("alice")
	require.NoError(t, err)
	require.Equal(t, "040506", rec.HexKey[:6])
}

func TestListAndDeleteKeys(t *testing.T) {
	db := newTestDB(t)

	_, err := db.RegisterKey("alice", [16]byte{1})
	require.NoError(t, err)
	_, err = db.RegisterKey("bob", [16]byte{2})
	require.NoError(t, err)

	recs, err := db.ListKeys()
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, db.DeleteKey("alice"))
	recs, err = db.ListKeys()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "bob", recs[0].Label)
}

func TestLogSessionRecordsParamsFingerprint(t *testing.T) {
	db := newTestDB(t)

	fp := ParamsFingerprint(params.Default())
	require.NoError(t, db.LogSession("get", "alice", 3, 0.82, 0, fp))

	sessions, err := db.RecentSessions(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, fp, sessions[0].ParamsFingerprint)
	require.Equal(t, "get", sessions[0].Operation)
}

func TestParamsFingerprintDiffersWhenThresholdChanges(t *testing.T) {
	a := params.Default()
	b := params.Default()
	b.SyncThreshold2 = a.SyncThreshold2 + 0.1

	require.NotEqual(t, ParamsFingerprint(a), ParamsFingerprint(b))
}
