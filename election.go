package raft

// ElectionStart forces this server to begin a new election immediately,
// bypassing the randomized follower timeout. Hosts normally never need to
// call this directly; Tick calls it once the timeout elapses
// (original_source/src/raft_server.c raft_election_start).
func (s *Server) ElectionStart() error {
	s.logf(nil, LogInfo, "election starting: timeout_rand=%d timer=%d term=%d ci=%d",
		s.electionTimeoutRand, s.electionTimer, s.currentTerm, s.CurrentIdx())
	return s.becomeCandidate()
}

// becomeLeader transitions to LEADER, resets every peer's replication
// cursors and effective-lease clock, and immediately probes every peer with
// an AppendEntries (heartbeat or real entries) (raft_become_leader).
func (s *Server) becomeLeader() {
	s.logf(nil, LogInfo, "becoming leader term:%d", s.currentTerm)

	s.role = RoleLeader
	now := s.cb.GetTime()
	s.electionTimer = now
	for _, node := range s.peers.nodes {
		if node.IsSelf() {
			continue
		}
		node.setNextIndex(s.CurrentIdx() + 1)
		node.setMatchIndex(0)
		node.setEffectiveTime(now)
		s.sendAppendEntries(node)
	}
}

// countVotes checks whether this candidacy has a voting majority yet, and
// if so advances it: a prevote majority graduates to a real candidacy, a
// real-vote majority becomes leader (raft_count_votes).
func (s *Server) countVotes() error {
	votes := s.nVotesForMe()
	if !votesIsMajority(s.peers.numVoting(), votes) {
		return nil
	}
	if s.prevote {
		return s.becomePrevotedCandidate()
	}
	s.becomeLeader()
	return nil
}

func (s *Server) nVotesForMe() int {
	n := 0
	for _, node := range s.peers.nodes {
		if node.IsVoting() && node.VoteForMe() {
			n++
		}
	}
	return n
}

// becomeCandidate starts a pre-vote round: it does not bump current_term,
// so a partitioned node that can never win an election cannot disrupt the
// cluster by inflating the term on every retry.
// Refused with ErrMightViolateLease if a lease we hold for someone else
// might still be outstanding (raft_become_candidate).
func (s *Server) becomeCandidate() error {
	now := s.cb.GetTime()
	if s.leaseGranted(s.nodeID, now) {
		return ErrMightViolateLease
	}

	s.logf(nil, LogInfo, "becoming candidate")

	s.role = RoleCandidate
	s.prevote = true

	for _, node := range s.peers.nodes {
		node.setVoteForMe(false)
	}
	if self := s.peers.self(); self != nil {
		self.setVoteForMe(true)
	}

	s.hasLeader = false
	s.randomizeElectionTimeout()
	s.electionTimer = now

	for _, node := range s.peers.nodes {
		if !node.IsSelf() && node.IsVoting() {
			s.sendRequestVote(node)
		}
	}

	// A single-voting-node cluster already has its own prevote, which is
	// enough to decide the race right here.
	return s.countVotes()
}

// becomePrevotedCandidate graduates a successful pre-vote into a real
// candidacy: bumps current_term, votes for self for real, and re-requests
// votes under the new term (raft_become_prevoted_candidate).
func (s *Server) becomePrevotedCandidate() error {
	s.logf(nil, LogInfo, "becoming prevoted candidate")

	if err := s.setCurrentTerm(s.currentTerm + 1); err != nil {
		return err
	}
	for _, node := range s.peers.nodes {
		node.setVoteForMe(false)
	}
	if err := s.voteForNodeID(s.nodeID); err != nil {
		return err
	}
	if self := s.peers.self(); self != nil {
		self.setVoteForMe(true)
	}
	s.prevote = false

	for _, node := range s.peers.nodes {
		if !node.IsSelf() && node.IsVoting() {
			s.sendRequestVote(node)
		}
	}

	return s.countVotes()
}

// becomeFollower transitions to FOLLOWER and restarts the randomized
// election timeout clock (raft_become_follower). Callers are responsible
// for clearing leaderID where the original does so inline.
func (s *Server) becomeFollower() {
	s.logf(nil, LogInfo, "becoming follower")
	s.role = RoleFollower
	s.randomizeElectionTimeout()
	s.electionTimer = s.cb.GetTime()
}

func (s *Server) sendRequestVote(node *Node) {
	msg := &RequestVote{
		Term:         s.currentTerm,
		CandidateID:  s.nodeID,
		LastLogIndex: s.CurrentIdx(),
		LastLogTerm:  s.lastLogTerm(),
		Prevote:      s.prevote,
	}
	s.logf(node, LogInfo, "sending requestvote (prevote=%v) to %d", s.prevote, node.ID())
	if err := s.cb.SendRequestVote(node, msg); err != nil {
		s.logf(node, LogError, "sending requestvote failed: %v", err)
	}
}

// shouldGrantVote implements the log-up-to-date and vote-uniqueness checks
// only; the lease/leader guard is applied by the caller
// (original_source/src/raft_server.c __should_grant_vote). A pre-vote never
// consults votedFor: relying on it would only matter if we'd already
// rejected a RequestVote from a third server who must then have won its own
// pre-vote round, which isn't worth special-casing.
func (s *Server) shouldGrantVote(vr *RequestVote) bool {
	if vr.Term < s.currentTerm {
		return false
	}
	if !vr.Prevote && s.hasVote && s.votedFor != vr.CandidateID {
		return false
	}

	currentIdx := s.CurrentIdx()
	term, ok := s.getEntryTerm(currentIdx)
	if !ok {
		// Every reachable currentIdx is addressable by content or is
		// exactly the compacted base; this should never happen.
		return false
	}
	if term < vr.LastLogTerm {
		return true
	}
	if term == vr.LastLogTerm && currentIdx <= vr.LastLogIndex {
		return true
	}
	return false
}

// RecvRequestVote answers a vote (or pre-vote) request. node may be nil if the
// candidate is not currently in our peer table; the vote is still granted
// when shouldGrantVote allows it, but a refusal then reports VoteUnknownNode
// instead of VoteNotGranted, so the candidate can infer it may have been
// removed from the cluster.
func (s *Server) RecvRequestVote(node *Node, vr *RequestVote) (*RequestVoteResponse, error) {
	now := s.cb.GetTime()
	resp := &RequestVoteResponse{Prevote: vr.Prevote}

	if s.role == RoleLeader || s.leaseGranted(vr.CandidateID, now) {
		s.logf(node, LogInfo, "rejected requestvote (prevote=%v) for %d: might violate lease", vr.Prevote, vr.CandidateID)
		resp.VoteGranted = VoteNotGranted
		resp.Term = s.currentTerm
		return resp, nil
	}

	if s.currentTerm < vr.Term {
		if err := s.setCurrentTerm(vr.Term); err != nil {
			s.logf(node, LogError, "rejected requestvote for %d: could not update term: %v", vr.CandidateID, err)
			resp.VoteGranted = VoteNotGranted
			resp.Term = s.currentTerm
			return resp, nil
		}
		s.becomeFollower()
		s.hasLeader = false
	}

	if s.shouldGrantVote(vr) {
		resp.VoteGranted = VoteGranted
		if !vr.Prevote {
			if err := s.voteForNodeID(vr.CandidateID); err != nil {
				s.logf(node, LogError, "rejected requestvote for %d: could not persist vote: %v", vr.CandidateID, err)
				resp.VoteGranted = VoteNotGranted
			} else {
				s.hasLeader = false
				s.electionTimer = now
			}
		}
	} else if node == nil {
		resp.VoteGranted = VoteUnknownNode
		resp.Term = s.currentTerm
		return resp, nil
	} else {
		resp.VoteGranted = VoteNotGranted
	}

	if resp.VoteGranted == VoteGranted {
		s.logf(node, LogInfo, "granted requestvote (prevote=%v) for %d", vr.Prevote, vr.CandidateID)
	}
	resp.Term = s.currentTerm
	return resp, nil
}

// HandleVoteResponse processes a peer's answer to our RequestVote. A
// mismatched prevote flag or a response to an election we've already moved
// past is silently ignored — this happens naturally on a choppy network
// (raft_recv_requestvote_response). Per this repository's prevote/term
// handling, a stale-term response is evaluated with the same >, == and <
// comparisons used for a real vote; prevote responses are not special-cased
// beyond the leading role/prevote-flag guard.
func (s *Server) HandleVoteResponse(node *Node, r *RequestVoteResponse) error {
	if !s.IsCandidate() || s.prevote != r.Prevote {
		return nil
	}
	if s.currentTerm < r.Term {
		if err := s.setCurrentTerm(r.Term); err != nil {
			return err
		}
		s.becomeFollower()
		s.hasLeader = false
		return nil
	}
	if s.currentTerm != r.Term {
		return nil
	}

	switch r.VoteGranted {
	case VoteGranted:
		if node != nil {
			node.setVoteForMe(true)
		}
		return s.countVotes()
	case VoteNotGranted:
		// Nothing to do; wait for more responses or the timeout.
	case VoteUnknownNode:
		if self := s.peers.self(); self != nil && self.IsVoting() && s.connected == Disconnecting {
			return ErrShutdown
		}
	}
	return nil
}
