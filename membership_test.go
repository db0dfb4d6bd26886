package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecvEntryAddNonVotingNodeAppliesImmediatelyThroughOfferLog(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())

	entry := &Entry{ID: 5, Type: EntryAddNonvotingNode}
	_, err := s.RecvEntry(entry)
	require.NoError(t, err)

	node := s.Node(5)
	require.NotNil(t, node)
	require.False(t, node.IsVoting())
	require.False(t, s.VotingChangeInProgress())
}

func TestRecvEntryAddNodeTracksVotingChangeInProgress(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())

	_, err := s.RecvEntry(&Entry{ID: 5, Type: EntryAddNode})
	require.NoError(t, err)

	require.True(t, s.VotingChangeInProgress())
	node := s.Node(5)
	require.NotNil(t, node)
	require.True(t, node.IsVoting())

	// A second voting change is refused while the first is outstanding.
	_, err = s.RecvEntry(&Entry{ID: 6, Type: EntryAddNode})
	require.ErrorIs(t, err, ErrOneVotingChangeOnly)
}

func TestCfgChangeRejectsSelfChange(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())

	_, err := s.RecvEntry(&Entry{ID: 1, Type: EntryAddNode})
	require.ErrorIs(t, err, ErrInvalidCfgChange)
}

func TestCfgChangeRejectsAddingExistingNode(t *testing.T) {
	s, _ := newTestServer(1)
	s.AddNode(2, false)
	s.becomeLeader()

	_, err := s.RecvEntry(&Entry{ID: 2, Type: EntryAddNode})
	require.ErrorIs(t, err, ErrInvalidCfgChange)
}

func TestCfgChangeRejectsPromotingVotingNode(t *testing.T) {
	s, _ := newTestServer(1)
	s.AddNode(2, false)
	s.becomeLeader()

	_, err := s.RecvEntry(&Entry{ID: 2, Type: EntryPromoteNode})
	require.ErrorIs(t, err, ErrInvalidCfgChange)
}

func TestDeletingAddNonvotingNodeEntryReversesItViaPopLog(t *testing.T) {
	s, _ := newTestServer(1)
	require.NoError(t, s.ElectionStart())

	_, err := s.RecvEntry(&Entry{ID: 5, Type: EntryAddNonvotingNode})
	require.NoError(t, err)
	require.NotNil(t, s.Node(5))

	// Truncate the log back before the add: the node must disappear
	// again, since popLog is the forward offer's exact inverse.
	require.NoError(t, s.log.DeleteFrom(s.CurrentIdx()))
	require.Nil(t, s.Node(5))
}

func TestRemoveNodeEntryReappearsOnPop(t *testing.T) {
	s, _ := newTestServer(1)
	s.AddNode(5, false)
	s.becomeLeader()

	_, err := s.RecvEntry(&Entry{ID: 5, Type: EntryRemoveNode})
	require.NoError(t, err)
	require.Nil(t, s.Node(5))

	require.NoError(t, s.log.DeleteFrom(s.CurrentIdx()))
	node := s.Node(5)
	require.NotNil(t, node)
	require.True(t, node.IsVoting())
}
