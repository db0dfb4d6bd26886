package raft

import "errors"

// FirstEntryIdx returns the lowest index still addressable by content.
func (s *Server) FirstEntryIdx() uint64 { return s.log.Base() + 1 }

// NumSnapshottableLogs is how many committed entries are still above the
// compacted prefix and therefore eligible to be rolled into a new snapshot.
func (s *Server) NumSnapshottableLogs() uint64 { return s.commitIdx - s.log.Base() }

// BeginSnapshot marks idx (which must already be committed) as the new
// snapshot boundary and applies every entry up to the commit index so the
// host's state machine reflects exactly what it's about to serialize. The
// log itself is left untouched until EndSnapshot; callers may safely keep
// serving reads and replicating in between.
func (s *Server) BeginSnapshot(idx uint64) error {
	if s.commitIdx < idx {
		return ErrIndexOutOfRange
	}
	entry, ok := s.log.GetAt(idx)
	if !ok {
		return ErrIndexOutOfRange
	}
	if err := s.applyAll(); err != nil {
		return err
	}

	s.snapshotLastTerm = entry.Term
	s.snapshotLastIdx = idx
	s.snapshotInProgress = true

	s.logf(nil, LogDebug, "begin snapshot sli:%d slt:%d slogs:%d",
		s.snapshotLastIdx, s.snapshotLastTerm, s.NumSnapshottableLogs())
	return nil
}

// EndSnapshot compacts the log up to the boundary BeginSnapshot recorded
// (raft_end_snapshot).
func (s *Server) EndSnapshot() error {
	if !s.snapshotInProgress || s.snapshotLastIdx == 0 {
		return ErrSnapshotNotInProgress
	}
	if err := s.log.PollTo(s.snapshotLastIdx); err != nil {
		return err
	}
	s.snapshotInProgress = false

	s.logf(nil, LogDebug, "end snapshot base:%d commit:%d current:%d",
		s.log.Base(), s.commitIdx, s.CurrentIdx())
	return nil
}

// RecvInstallSnapshot is the follower side of snapshot transfer. When the
// follower already has the snapshotted index addressable (by content or as
// its own compacted base) under a matching term, the transfer is resolved
// locally without delegating to the host at all
// (original_source/src/raft_server.c raft_recv_installsnapshot).
func (s *Server) RecvInstallSnapshot(node *Node, is *InstallSnapshot) (*InstallSnapshotResponse, error) {
	resp := &InstallSnapshotResponse{Term: s.currentTerm, LastIdx: is.LastIdx}

	if is.Term < s.currentTerm {
		return resp, nil
	}
	if s.currentTerm < is.Term {
		if err := s.setCurrentTerm(is.Term); err != nil {
			return resp, err
		}
		resp.Term = s.currentTerm
	}

	if !s.IsFollower() {
		s.becomeFollower()
	}
	if node != nil {
		s.leaderID = node.ID()
		s.hasLeader = true
	}
	now := s.cb.GetTime()
	s.electionTimer = now
	resp.Lease = now + s.config.ElectionTimeout

	if is.LastIdx <= s.commitIdx {
		resp.Complete = true
		return resp, nil
	}

	if term, ok := s.getEntryTerm(is.LastIdx); ok && term == is.LastTerm {
		s.setCommitIndex(is.LastIdx)
		resp.Complete = true
		return resp, nil
	}

	complete, err := s.cb.RecvInstallSnapshot(node, is, resp)
	if err != nil {
		return resp, err
	}
	if complete == 1 {
		resp.Complete = true
	}
	return resp, nil
}

// RecvInstallSnapshotResponse is the leader side
// (raft_recv_installsnapshot_response).
func (s *Server) RecvInstallSnapshotResponse(node *Node, r *InstallSnapshotResponse) error {
	if node == nil {
		return errors.New("raft: response from unknown node")
	}
	if !s.IsLeader() {
		return ErrNotLeader
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

	node.setLease(r.Lease)

	if err := s.cb.RecvInstallSnapshotResponse(node, r); err != nil {
		return err
	}

	if r.Complete && node.MatchIndex() < r.LastIdx {
		node.setMatchIndex(r.LastIdx)
		node.setNextIndex(r.LastIdx + 1)
	}
	if node.NextIndex() <= s.CurrentIdx() {
		s.sendAppendEntries(node)
	}
	return nil
}

// BeginLoadSnapshot resets this server's entire state to a snapshot
// boundary, discarding every peer (the host is expected to repopulate the
// table from the snapshot's own membership data via AddNode /
// AddNonVotingNode) (raft_begin_load_snapshot).
func (s *Server) BeginLoadSnapshot(term, idx uint64) error {
	if idx == 0 {
		return ErrIndexOutOfRange
	}
	if term == s.snapshotLastTerm && idx == s.snapshotLastIdx {
		return ErrSnapshotAlreadyLoaded
	}
	if idx <= s.commitIdx {
		return ErrIndexOutOfRange
	}

	if err := s.log.LoadFromSnapshot(idx, term); err != nil {
		return err
	}
	s.setCommitIndex(idx)
	s.lastAppliedIdx = idx
	s.snapshotLastTerm = term
	s.snapshotLastIdx = idx

	existing := append([]*Node{}, s.peers.nodes...)
	for _, node := range existing {
		s.removeNodeInternal(node)
	}
	s.peers.clear()

	s.logf(nil, LogDebug, "loaded snapshot sli:%d slt:%d slogs:%d",
		s.snapshotLastIdx, s.snapshotLastTerm, s.NumSnapshottableLogs())
	return nil
}

// EndLoadSnapshot marks every currently-voting node's logs as sufficient,
// since a freshly loaded snapshot already reflects committed membership
// (raft_end_load_snapshot).
func (s *Server) EndLoadSnapshot() error {
	for _, node := range s.peers.nodes {
		if node.IsVoting() {
			node.setHasSufficientLogs()
		}
	}
	return nil
}
