package journal

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, retain int) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true, Retain: retain})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j, err := Open(Config{Path: path})
	require.NoError(t, err)

	rec := NewRecord("on-disk", KindSync, "started")
	require.NoError(t, j.Put(rec))
	require.NoError(t, j.Close())

	j, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Get("on-disk")
	require.NoError(t, err)
	assert.Equal(t, KindSync, got.Kind)
}

func TestPut_UpdatesInPlace(t *testing.T) {
	j := openTestJournal(t, 0)

	rec := NewRecord("d1", KindDeploy, "idle")
	rec.Format = "zip"
	require.NoError(t, j.Put(rec))

	rec.Transition("persisted")
	rec.Finish("failed", errors.New("boom"))
	require.NoError(t, j.Put(rec))

	records, err := j.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "failed", got.State)
	assert.Equal(t, "boom", got.Error)
	assert.True(t, got.Done())
	assert.Equal(t, []string{"idle", "persisted", "failed"}, states(got))
}

func TestList_NewestFirst(t *testing.T) {
	j := openTestJournal(t, 0)

	for i := 0; i < 5; i++ {
		rec := NewRecord(fmt.Sprintf("r%d", i), KindSync, "started")
		rec.Started = time.Unix(int64(1000+i), 0).UTC()
		require.NoError(t, j.Put(rec))
	}

	records, err := j.List(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "r4", records[0].ID)
	assert.Equal(t, "r3", records[1].ID)
	assert.Equal(t, "r2", records[2].ID)
}

func TestList_Empty(t *testing.T) {
	j := openTestJournal(t, 0)

	records, err := j.List(10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestPut_PrunesBeyondRetention(t *testing.T) {
	j := openTestJournal(t, 2)

	for i := 0; i < 4; i++ {
		rec := NewRecord(fmt.Sprintf("r%d", i), KindSync, "started")
		rec.Started = time.Unix(int64(2000+i), 0).UTC()
		require.NoError(t, j.Put(rec))
	}

	records, err := j.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r3", records[0].ID)
	assert.Equal(t, "r2", records[1].ID)

	_, err = j.Get("r0")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestGet_Unknown(t *testing.T) {
	j := openTestJournal(t, 0)

	_, err := j.Get("missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func states(r Record) []string {
	out := make([]string, 0, len(r.Transitions))
	for _, tr := range r.Transitions {
		out = append(out, tr.State)
	}
	return out
}
