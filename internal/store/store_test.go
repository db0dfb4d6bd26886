package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daos-stack/raft"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raft.db")
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLoadTermAndVoteDefaultToZero(t *testing.T) {
	st := openTestStore(t)

	term, err := st.LoadTerm()
	require.NoError(t, err)
	require.Zero(t, term)

	id, voted, err := st.LoadVote()
	require.NoError(t, err)
	require.False(t, voted)
	require.Zero(t, id)
}

func TestPersistTermRoundTrips(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.PersistTerm(7))
	term, err := st.LoadTerm()
	require.NoError(t, err)
	require.EqualValues(t, 7, term)
}

func TestPersistVoteRoundTripsAndClears(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.PersistVote(3, true))
	id, voted, err := st.LoadVote()
	require.NoError(t, err)
	require.True(t, voted)
	require.EqualValues(t, 3, id)

	require.NoError(t, st.PersistVote(0, false))
	_, voted, err = st.LoadVote()
	require.NoError(t, err)
	require.False(t, voted)
}

func TestLogOfferPersistsEntriesInIndexOrder(t *testing.T) {
	st := openTestStore(t)

	entries := []raft.Entry{
		{Index: 1, Term: 1, ID: 10},
		{Index: 2, Term: 1, ID: 11},
		{Index: 3, Term: 1, ID: 12},
	}
	n, err := st.LogOffer(entries, 1)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	loaded, err := st.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.EqualValues(t, 10, loaded[0].ID)
	require.EqualValues(t, 11, loaded[1].ID)
	require.EqualValues(t, 12, loaded[2].ID)
}

func TestLogPopRemovesTailRun(t *testing.T) {
	st := openTestStore(t)

	entries := []raft.Entry{
		{Index: 1, Term: 1, ID: 10},
		{Index: 2, Term: 1, ID: 11},
		{Index: 3, Term: 1, ID: 12},
	}
	_, err := st.LogOffer(entries, 1)
	require.NoError(t, err)

	require.NoError(t, st.LogPop(entries[1:], 2))

	loaded, err := st.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.EqualValues(t, 10, loaded[0].ID)
}

func TestLogPollRemovesCompactedPrefix(t *testing.T) {
	st := openTestStore(t)

	entries := []raft.Entry{
		{Index: 1, Term: 1, ID: 10},
		{Index: 2, Term: 1, ID: 11},
		{Index: 3, Term: 1, ID: 12},
	}
	_, err := st.LogOffer(entries, 1)
	require.NoError(t, err)

	require.NoError(t, st.LogPoll(entries[:2], 1))

	loaded, err := st.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.EqualValues(t, 12, loaded[0].ID)
}
