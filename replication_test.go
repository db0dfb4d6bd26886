package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecvEntrySingleNodeClusterCommitsImmediately(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())
	require.True(t, s.IsLeader())

	r, err := s.RecvEntry(&Entry{ID: 7, Payload: []byte("x")})
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Index)
	require.EqualValues(t, 1, s.CommitIndex())
}

func TestRecvEntryRejectsOnNonLeader(t *testing.T) {
	s, _ := newTestServer(1)
	_, err := s.RecvEntry(&Entry{ID: 1})
	require.ErrorIs(t, err, ErrNotLeader)
}

func TestAppendEntriesReplicationBetweenTwoServers(t *testing.T) {
	l, lcb := newTestServer(1)
	f, _ := newTestServer(2)

	l.AddNode(2, false)
	f.AddNode(1, false)

	l.becomeLeader()
	require.Len(t, lcb.sentAppend, 1)

	msg := lcb.sentAppend[0].msg
	resp, err := f.RecvAppendEntries(f.Node(1), &msg)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NoError(t, l.RecvAppendEntriesResponse(l.Node(2), resp))

	lcb.sentAppend = nil
	r, err := l.RecvEntry(&Entry{ID: 42, Payload: []byte("hello")})
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Index)
	require.Len(t, lcb.sentAppend, 1)

	msg2 := lcb.sentAppend[0].msg
	resp2, err := f.RecvAppendEntries(f.Node(1), &msg2)
	require.NoError(t, err)
	require.True(t, resp2.Success)
	require.EqualValues(t, 1, resp2.CurrentIdx)

	require.NoError(t, l.RecvAppendEntriesResponse(l.Node(2), resp2))
	require.EqualValues(t, 1, l.CommitIndex())

	entry, ok := f.Log().GetAt(1)
	require.True(t, ok)
	require.EqualValues(t, 42, entry.ID)
}

func TestRecvAppendEntriesRejectsLowerTerm(t *testing.T) {
	f, _ := newTestServer(2)
	require.NoError(t, f.setCurrentTerm(5))

	resp, err := f.RecvAppendEntries(nil, &AppendEntries{Term: 3})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.EqualValues(t, 5, resp.Term)
}

func TestRecvAppendEntriesDeletesConflictingSuffix(t *testing.T) {
	f, _ := newTestServer(2)
	_, err := f.log.Append([]Entry{{ID: 1, Term: 1}, {ID: 2, Term: 1}, {ID: 3, Term: 1}})
	require.NoError(t, err)

	ae := &AppendEntries{
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []Entry{{ID: 99, Term: 2}},
	}
	resp, err := f.RecvAppendEntries(nil, ae)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.EqualValues(t, 2, resp.CurrentIdx)

	e, ok := f.log.GetAt(2)
	require.True(t, ok)
	require.EqualValues(t, 99, e.ID)
	require.EqualValues(t, 2, f.log.CurrentIdx())
}

func TestRecvAppendEntriesShutsDownOnCommittedConflict(t *testing.T) {
	f, _ := newTestServer(2)
	_, err := f.log.Append([]Entry{{ID: 1, Term: 1}})
	require.NoError(t, err)
	f.setCommitIndex(1)

	ae := &AppendEntries{Term: 2, PrevLogIndex: 1, PrevLogTerm: 2}
	_, err = f.RecvAppendEntries(nil, ae)
	require.ErrorIs(t, err, ErrShutdown)
}

func TestEntryIsCommittedReportsLifecycle(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())

	r, err := s.RecvEntry(&Entry{ID: 1})
	require.NoError(t, err)
	require.Equal(t, CommitCommitted, s.EntryIsCommitted(r))

	unknown := &EntryResponse{ID: 2, Index: 50, Term: 1}
	require.Equal(t, CommitUnknown, s.EntryIsCommitted(unknown))
}
