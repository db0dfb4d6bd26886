package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleNodeClusterElectsSelfImmediately(t *testing.T) {
	s, _ := newTestServer(1)
	require.True(t, s.IsFollower())

	require.NoError(t, s.ElectionStart())
	require.True(t, s.IsLeader())
	require.EqualValues(t, 1, s.CurrentTerm())
}

func TestBecomeCandidateStartsPrevoteWithoutBumpingTerm(t *testing.T) {
	s, cb := newTestServer(1)
	s.AddNode(2, false)
	s.AddNode(3, false)

	require.NoError(t, s.becomeCandidate())
	require.True(t, s.IsCandidate())
	require.True(t, s.prevote)
	require.EqualValues(t, 0, s.CurrentTerm())
	require.Len(t, cb.sentVotes, 2)
	for _, v := range cb.sentVotes {
		require.True(t, v.msg.Prevote)
	}
}

func TestPrevoteMajorityGraduatesToRealCandidacy(t *testing.T) {
	s, cb := newTestServer(1)
	n2 := s.AddNode(2, false)
	require.NoError(t, s.becomeCandidate())
	require.True(t, s.prevote)

	resp := &RequestVoteResponse{Term: 0, VoteGranted: VoteGranted, Prevote: true}
	require.NoError(t, s.HandleVoteResponse(n2, resp))

	require.False(t, s.prevote)
	require.EqualValues(t, 1, s.CurrentTerm())
	require.True(t, s.IsCandidate())
	// Real (non-prevote) requestvotes should have gone out after
	// graduating.
	found := false
	for _, v := range cb.sentVotes {
		if !v.msg.Prevote {
			found = true
		}
	}
	require.True(t, found)
}

func TestRealVoteMajorityBecomesLeader(t *testing.T) {
	s, _ := newTestServer(1)
	n2 := s.AddNode(2, false)

	require.NoError(t, s.becomeCandidate())
	require.NoError(t, s.HandleVoteResponse(n2, &RequestVoteResponse{Term: 0, VoteGranted: VoteGranted, Prevote: true}))
	require.True(t, s.IsCandidate())
	require.False(t, s.prevote)

	require.NoError(t, s.HandleVoteResponse(n2, &RequestVoteResponse{Term: 1, VoteGranted: VoteGranted, Prevote: false}))
	require.True(t, s.IsLeader())
}

func TestRecvRequestVoteRejectsStaleTerm(t *testing.T) {
	s, _ := newTestServer(1)
	node := s.AddNode(2, false)
	require.NoError(t, s.setCurrentTerm(5))

	resp, err := s.RecvRequestVote(node, &RequestVote{Term: 3, CandidateID: 2})
	require.NoError(t, err)
	require.Equal(t, VoteNotGranted, resp.VoteGranted)
}

func TestRecvRequestVoteGrantsOnHigherTermAndUpToDateLog(t *testing.T) {
	s, _ := newTestServer(1)
	node := s.AddNode(2, false)

	resp, err := s.RecvRequestVote(node, &RequestVote{Term: 1, CandidateID: 2, LastLogIndex: 0, LastLogTerm: 0})
	require.NoError(t, err)
	require.Equal(t, VoteGranted, resp.VoteGranted)
	require.True(t, s.IsFollower())
}

func TestRecvRequestVoteRejectsWhenAlreadyVotedForAnother(t *testing.T) {
	s, _ := newTestServer(1)
	n2 := s.AddNode(2, false)
	n3 := s.AddNode(3, false)

	resp, err := s.RecvRequestVote(n2, &RequestVote{Term: 1, CandidateID: 2})
	require.NoError(t, err)
	require.Equal(t, VoteGranted, resp.VoteGranted)

	resp2, err := s.RecvRequestVote(n3, &RequestVote{Term: 1, CandidateID: 3})
	require.NoError(t, err)
	require.Equal(t, VoteNotGranted, resp2.VoteGranted)
}

func TestRecvRequestVoteUnknownNode(t *testing.T) {
	s, _ := newTestServer(1)
	n2 := s.AddNode(2, false)

	resp, err := s.RecvRequestVote(n2, &RequestVote{Term: 1, CandidateID: 2})
	require.NoError(t, err)
	require.Equal(t, VoteGranted, resp.VoteGranted)

	// A second candidate, not present in our peer table, asks for a vote
	// in the same term we already gave away: not granted, and since the
	// candidate isn't a known peer we report UnknownNode instead of a
	// plain refusal.
	resp2, err := s.RecvRequestVote(nil, &RequestVote{Term: 1, CandidateID: 99})
	require.NoError(t, err)
	require.Equal(t, VoteUnknownNode, resp2.VoteGranted)
}
