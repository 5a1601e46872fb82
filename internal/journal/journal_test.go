package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "journal.wal")
	j, err := Open(path, "")
	require.NoError(t, err)
	assert.NotEmpty(t, j.RunID())

	events := event.List{
		event.Click{Node: uitree.Attributes{Type: "Button", Text: "Login", Clickable: true}},
		event.Swipe{Direction: device.Up},
	}
	seq, err := j.Append(KindNewPage, Record{Src: 0, Dst: 1, Operation: "tap Login", Ability: "LoginAbility", Events: events})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	_, err = j.Append(KindIneffective, Record{Src: 1, Dst: -1, Operation: "tap title"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	entries, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindNewPage, entries[0].Kind)
	assert.Equal(t, j.RunID(), entries[0].Record.RunID)
	if diff := cmp.Diff(events, entries[0].Record.Events); diff != "" {
		t.Errorf("events differ (-want +got):\n%s", diff)
	}
	assert.Equal(t, "ineffective", entries[1].Kind.String())
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.wal")
	j, err := Open(path, "run-1")
	require.NoError(t, err)
	_, err = j.Append(KindOutcome, Record{Src: 0, Dst: 1, Outcome: "MATCH"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path, "run-2")
	require.NoError(t, err)
	seq, err := j.Append(KindOutcome, Record{Src: 1, Dst: 2, Outcome: "NO_CHANGE"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	require.NoError(t, j.Close())

	entries, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", entries[0].Record.RunID)
	assert.Equal(t, "run-2", entries[1].Record.RunID)
}

func TestReadDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.wal")
	j, err := Open(path, "r")
	require.NoError(t, err)
	_, err = j.Append(KindKnownPage, Record{Src: 0, Dst: 0, Operation: "refresh"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[14] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = ReadAll(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	entries, err := ReadAll(filepath.Join(t.TempDir(), "missing.wal"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenCutsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.wal")
	j, err := Open(path, "r")
	require.NoError(t, err)
	_, err = j.Append(KindNewPage, Record{Src: -1, Dst: 0})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	intact, err := os.ReadFile(path)
	require.NoError(t, err)
	torn := append(append([]byte(nil), intact...), 0, 0, 0, 0, 0, 0, 0, 2, byte(KindOutcome))
	require.NoError(t, os.WriteFile(path, torn, 0644))

	_, err = ReadAll(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	j, err = Open(path, "r")
	require.NoError(t, err)
	n, damage := j.Recovered()
	assert.Equal(t, int64(9), n)
	assert.ErrorIs(t, damage, ErrCorrupt)
	seq, err := j.Append(KindOutcome, Record{Src: 0, Dst: 1, Outcome: "MATCH"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	require.NoError(t, j.Close())

	entries, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "MATCH", entries[1].Record.Outcome)
}

func TestReadRejectsOversizedLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.wal")
	header := []byte{0, 0, 0, 0, 0, 0, 0, 1, byte(KindNewPage), 0xff, 0xff, 0xff, 0xff}
	require.NoError(t, os.WriteFile(path, header, 0644))

	_, err := ReadAll(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	j, err := Open(path, "r")
	require.NoError(t, err)
	n, _ := j.Recovered()
	assert.Equal(t, int64(len(header)), n)
	require.NoError(t, j.Close())
}
