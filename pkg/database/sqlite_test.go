package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "data", "radio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabaseRejectsEmptyPath(t *testing.T) {
	_, err := NewDatabase("  ")
	assert.ErrorIs(t, err, ErrInvalidDatabasePath)
}

func TestListStationsBuiltInsFirst(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	list, err := db.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(BuiltInStations))
	assert.Equal(t, "Radio R", list[0].Label)

	_, err = db.AddStation(ctx, "Jazz", "https://jazz.example.com/live.mp3", "u1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = db.AddStation(ctx, "Rock", "https://rock.example.com/hls/playlist.m3u8", "u2")
	require.NoError(t, err)

	list, err = db.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(BuiltInStations)+2)
	for i := range BuiltInStations {
		assert.True(t, list[i].BuiltIn)
	}
	assert.Equal(t, "Rock", list[len(BuiltInStations)].Label, "newest user station first")
	assert.Equal(t, "Jazz", list[len(BuiltInStations)+1].Label)
	assert.Equal(t, customEmoji, list[len(BuiltInStations)].Emoji)
	assert.Equal(t, "u2", list[len(BuiltInStations)].AddedBy)
}

func TestFindStationIgnoresCase(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	st, err := db.FindStation(ctx, "radio r")
	require.NoError(t, err)
	assert.Equal(t, "https://stream1.relaxfm.lt/rrb128.mp3", st.URL)

	st, err = db.FindStation(ctx, "авторадио (мск)")
	require.NoError(t, err)
	assert.Contains(t, st.URL, "playlist.m3u8")

	_, err = db.AddStation(ctx, "Лофи Ночь", "https://lofi.example.com/stream", "u1")
	require.NoError(t, err)
	st, err = db.FindStation(ctx, "ЛОФИ НОЧЬ")
	require.NoError(t, err)
	assert.Equal(t, "Лофи Ночь", st.Label)
	assert.False(t, st.BuiltIn)

	_, err = db.FindStation(ctx, "nothing here")
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestAddStationRejectsDuplicates(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.AddStation(ctx, "RADIO R", "https://other.example.com/a.mp3", "u1")
	assert.ErrorIs(t, err, ErrDuplicateStation)

	_, err = db.AddStation(ctx, "Jazz", "https://jazz.example.com/live.mp3", "u1")
	require.NoError(t, err)
	_, err = db.AddStation(ctx, "jazz", "https://jazz2.example.com/live.mp3", "u1")
	assert.ErrorIs(t, err, ErrDuplicateStation)

	_, err = db.AddStation(ctx, "", "https://x.example.com", "u1")
	assert.ErrorIs(t, err, ErrInvalidStation)
}

func TestRemoveStation(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	_, err := db.AddStation(ctx, "Jazz", "https://jazz.example.com/live.mp3", "u1")
	require.NoError(t, err)

	require.NoError(t, db.RemoveStation(ctx, "JAZZ"))
	assert.ErrorIs(t, db.RemoveStation(ctx, "Jazz"), ErrStationNotFound)
	assert.ErrorIs(t, db.RemoveStation(ctx, "Radio R"), ErrInvalidStation)
}

func TestStationsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio.db")
	ctx := context.Background()

	db, err := NewDatabase(path)
	require.NoError(t, err)
	_, err = db.AddStation(ctx, "Jazz", "https://jazz.example.com/live.mp3", "u1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	st, err := db.FindStation(ctx, "jazz")
	require.NoError(t, err)
	assert.Equal(t, "https://jazz.example.com/live.mp3", st.URL)
	assert.False(t, st.CreatedAt.IsZero())
}
