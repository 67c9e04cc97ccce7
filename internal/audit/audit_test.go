package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM audit_events`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecordInsertsRow(t *testing.T) {
	db := openTestDB(t)

	db.Record("127.0.0.1:9000/0", KindHandshake, "/meta/handshake", true, "")

	var (
		sessionID  string
		kind       string
		channel    string
		successful bool
		detail     string
	)
	err := db.QueryRow(
		`SELECT session_id, kind, channel, successful, detail FROM audit_events LIMIT 1`,
	).Scan(&sessionID, &kind, &channel, &successful, &detail)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000/0", sessionID)
	assert.Equal(t, string(KindHandshake), kind)
	assert.Equal(t, "/meta/handshake", channel)
	assert.True(t, successful)
	assert.Empty(t, detail)
}

func TestRecordMultipleEventsPreserveOrder(t *testing.T) {
	db := openTestDB(t)

	db.Record("client/0", KindSubscribe, "/foo/bar", true, "requested")
	db.Record("client/0", KindUnsubscribe, "/foo/bar", true, "requested")

	rows, err := db.Query(`SELECT kind FROM audit_events ORDER BY created_at, rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		require.NoError(t, rows.Scan(&kind))
		kinds = append(kinds, kind)
	}

	assert.Equal(t, []string{string(KindSubscribe), string(KindUnsubscribe)}, kinds)
}

func TestRecordSurvivesFailureWithoutPanicking(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	assert.NotPanics(t, func() {
		db.Record("client/0", KindPublish, "/foo", true, "")
	})
}
