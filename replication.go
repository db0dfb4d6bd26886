package raft

import "errors"

// errNothingToApply is an internal sentinel stopping applyAll's loop; it
// never escapes to a caller.
var errNothingToApply = errors.New("raft: nothing to apply")

// sendAppendEntries replicates everything from node's next index onward, or
// falls back to an InstallSnapshot when that index has already been
// compacted out of the log (original_source/src/raft_server.c
// raft_send_appendentries).
func (s *Server) sendAppendEntries(node *Node) {
	nextIdx := node.NextIndex()
	if nextIdx == 0 {
		nextIdx = 1
	}

	if nextIdx <= s.log.Base() {
		s.sendInstallSnapshot(node)
		return
	}

	entries := s.log.SliceFrom(nextIdx)
	prevLogIdx := nextIdx - 1
	prevLogTerm, ok := s.getEntryTerm(prevLogIdx)
	if !ok {
		s.logf(node, LogError, "no term for prev_log_idx %d", prevLogIdx)
		return
	}

	msg := &AppendEntries{
		Term:         s.currentTerm,
		LeaderID:     s.nodeID,
		PrevLogIndex: prevLogIdx,
		PrevLogTerm:  prevLogTerm,
		LeaderCommit: s.commitIdx,
		Entries:      entries,
	}
	if err := s.cb.SendAppendEntries(node, msg); err != nil {
		s.logf(node, LogError, "sending appendentries failed: %v", err)
	}
}

func (s *Server) sendInstallSnapshot(node *Node) {
	msg := &InstallSnapshot{
		Term:     s.currentTerm,
		LastIdx:  s.log.Base(),
		LastTerm: s.log.BaseTerm(),
	}
	if err := s.cb.SendInstallSnapshot(node, msg); err != nil {
		s.logf(node, LogError, "sending installsnapshot failed: %v", err)
	}
}

// sendAppendEntriesAll probes every peer and resets the heartbeat timer;
// used for the leader's heartbeat tick.
func (s *Server) sendAppendEntriesAll() {
	s.electionTimer = s.cb.GetTime()
	for _, node := range s.peers.nodes {
		if node.IsSelf() {
			continue
		}
		s.sendAppendEntries(node)
	}
}

// deleteEntryFromIdx truncates the log from idx to the tail, clearing any
// in-flight voting cfg change that idx would invalidate
// (raft_delete_entry_from_idx). The caller must have already verified idx
// is above commitIdx.
func (s *Server) deleteEntryFromIdx(idx uint64) error {
	if s.hasVotingCfgChange && idx <= s.votingCfgChangeLogIdx {
		s.hasVotingCfgChange = false
	}
	return s.log.DeleteFrom(idx)
}

// RecvEntry accepts a client-submitted entry for replication. Only a leader
// may accept entries; cfg-change entries additionally go through
// cfgChangeIsValid and the one-voting-change-at-a-time rule.
func (s *Server) RecvEntry(entry *Entry) (*EntryResponse, error) {
	if !s.IsLeader() {
		return nil, ErrNotLeader
	}

	if entry.Type.IsCfgChange() {
		if s.snapshotInProgress {
			return nil, ErrSnapshotInProgress
		}
		if entry.Type.IsVotingCfgChange() && s.hasVotingCfgChange {
			return nil, ErrOneVotingChangeOnly
		}
		if !s.cfgChangeIsValid(entry) {
			return nil, ErrInvalidCfgChange
		}
	}

	idx := s.CurrentIdx() + 1
	toAppend := *entry
	toAppend.Term = s.currentTerm
	toAppend.Index = idx

	n, err := s.log.Append([]Entry{toAppend})
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrNoMem
	}

	for _, node := range s.peers.nodes {
		if node.IsSelf() || !node.IsVoting() {
			continue
		}
		// Only nudge peers that were already fully caught up; anyone
		// behind will pick this entry up on their own retry cadence,
		// so we don't pile congestion onto a struggling follower.
		if node.NextIndex() == idx {
			s.sendAppendEntries(node)
		}
	}

	if s.peers.numVoting() == 1 {
		s.setCommitIndex(idx)
	}

	if toAppend.Type.IsVotingCfgChange() {
		s.votingCfgChangeLogIdx = idx
		s.hasVotingCfgChange = true
	}

	return &EntryResponse{ID: toAppend.ID, Index: idx, Term: s.currentTerm}, nil
}

// RecvAppendEntries is the follower side of log replication.
func (s *Server) RecvAppendEntries(node *Node, ae *AppendEntries) (resp *AppendEntriesResponse, err error) {
	resp = &AppendEntriesResponse{}
	defer func() {
		resp.Term = s.currentTerm
		if !resp.Success {
			resp.CurrentIdx = s.CurrentIdx()
		}
		resp.FirstIdx = ae.PrevLogIndex + 1
	}()

	switch {
	case s.IsCandidate() && s.currentTerm == ae.Term:
		s.becomeFollower()
	case s.currentTerm < ae.Term:
		if err = s.setCurrentTerm(ae.Term); err != nil {
			return resp, err
		}
		s.becomeFollower()
	case ae.Term < s.currentTerm:
		return resp, nil
	}

	if node != nil {
		s.leaderID = node.ID()
		s.hasLeader = true
	}
	now := s.cb.GetTime()
	s.electionTimer = now
	resp.Lease = now + s.config.ElectionTimeout

	if 0 < ae.PrevLogIndex {
		term, got := s.getEntryTerm(ae.PrevLogIndex)
		if !got && s.CurrentIdx() < ae.PrevLogIndex {
			return resp, nil
		} else if got && term != ae.PrevLogTerm {
			if ae.PrevLogIndex <= s.commitIdx {
				return resp, ErrShutdown
			}
			err = s.deleteEntryFromIdx(ae.PrevLogIndex)
			return resp, err
		}
	}

	resp.Success = true
	resp.CurrentIdx = ae.PrevLogIndex

	i := 0
	for ; i < len(ae.Entries); i++ {
		ety := ae.Entries[i]
		etyIdx := ae.PrevLogIndex + 1 + uint64(i)
		term, got := s.getEntryTerm(etyIdx)
		if got && term != ety.Term {
			if etyIdx <= s.commitIdx {
				return resp, ErrShutdown
			}
			if err = s.deleteEntryFromIdx(etyIdx); err != nil {
				return resp, err
			}
			break
		} else if !got && s.CurrentIdx() < etyIdx {
			break
		}
		resp.CurrentIdx = etyIdx
	}

	n, appendErr := s.log.Append(ae.Entries[i:])
	i += n
	resp.CurrentIdx = ae.PrevLogIndex + uint64(i)
	if appendErr != nil {
		return resp, appendErr
	}

	if s.commitIdx < ae.LeaderCommit {
		newCommit := min(ae.LeaderCommit, resp.CurrentIdx)
		if s.commitIdx < newCommit {
			s.setCommitIndex(newCommit)
		}
	}

	return resp, nil
}

// RecvAppendEntriesResponse is the leader side: it advances a follower's
// replication cursor, updates its lease, and recomputes commitIdx once a
// majority of voting nodes have matched a given index in the current term
// (raft_recv_appendentries_response).
func (s *Server) RecvAppendEntriesResponse(node *Node, r *AppendEntriesResponse) error {
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
	matchIdx := node.MatchIndex()

	if !r.Success {
		nextIdx := node.NextIndex()
		if matchIdx == nextIdx-1 {
			// Stale response for a retry we've already superseded.
			return nil
		}
		if r.CurrentIdx < nextIdx-1 {
			node.setNextIndex(min(r.CurrentIdx+1, s.CurrentIdx()))
		} else {
			node.setNextIndex(nextIdx - 1)
		}
		s.sendAppendEntries(node)
		return nil
	}

	if !node.IsVoting() && !s.hasVotingCfgChange &&
		s.CurrentIdx() <= r.CurrentIdx+1 && !node.HasSufficientLogs() {
		if err := s.cb.NodeHasSufficientLogs(node); err == nil {
			node.setHasSufficientLogs()
		}
	}

	if r.CurrentIdx <= matchIdx {
		return nil
	}

	node.setNextIndex(r.CurrentIdx + 1)
	node.setMatchIndex(r.CurrentIdx)

	point := r.CurrentIdx
	if point != 0 && s.commitIdx < point {
		if term, ok := s.getEntryTerm(point); ok && term == s.currentTerm {
			votes := 1
			for _, tmp := range s.peers.nodes {
				if !tmp.IsSelf() && tmp.IsVoting() && point <= tmp.MatchIndex() {
					votes++
				}
			}
			if s.peers.numVoting()/2 < votes {
				s.setCommitIndex(point)
			}
		}
	}

	if node.NextIndex() <= s.CurrentIdx() {
		s.sendAppendEntries(node)
	}
	return nil
}

// applyEntry applies exactly one committed-but-unapplied entry to the state
// machine. Returns errNothingToApply if there is nothing to do right now
// (raft_apply_entry).
func (s *Server) applyEntry() error {
	if s.snapshotInProgress {
		return errNothingToApply
	}
	if s.lastAppliedIdx == s.commitIdx {
		return errNothingToApply
	}

	idx := s.lastAppliedIdx + 1
	entry, ok := s.log.GetAt(idx)
	if !ok {
		return errNothingToApply
	}

	s.lastAppliedIdx++
	if s.cb != nil {
		if err := s.cb.ApplyLog(&entry, s.lastAppliedIdx); err != nil {
			if errors.Is(err, ErrShutdown) {
				return ErrShutdown
			}
		}
	}

	if s.hasVotingCfgChange && idx == s.votingCfgChangeLogIdx {
		s.hasVotingCfgChange = false
	}
	return nil
}

// applyAll drains every committed-but-unapplied entry. A snapshot in
// progress pauses application rather than erroring, since the host is
// mid-read of the state machine (raft_apply_all).
func (s *Server) applyAll() error {
	if s.snapshotInProgress {
		return nil
	}
	for s.lastAppliedIdx < s.commitIdx {
		if err := s.applyEntry(); err != nil {
			if errors.Is(err, errNothingToApply) {
				return nil
			}
			return err
		}
	}
	return nil
}
