package raft

// cfgChangeIsValid structurally validates a cfg-change entry before it is
// allowed onto the log: a leader can't change its own membership (appending
// locally and counting voting nodes below without checking whether we'd
// remain one ourselves is nonsensical at best), and every change must match
// the node's current voting state (original_source/src/raft_server.c
// __cfg_change_is_valid).
func (s *Server) cfgChangeIsValid(entry *Entry) bool {
	nodeID := s.cb.LogGetNodeID(entry, 0)
	if nodeID == s.nodeID {
		return false
	}

	node := s.peers.get(nodeID)
	switch entry.Type {
	case EntryAddNonvotingNode, EntryAddNode:
		if node != nil {
			return false
		}
	case EntryDemoteNode, EntryRemoveNode:
		if node == nil || !node.IsVoting() {
			return false
		}
	case EntryPromoteNode, EntryRemoveNonvotingNode:
		if node == nil || node.IsVoting() {
			return false
		}
	}
	return true
}

// offerLog applies the forward direction of every cfg-change entry in a
// run that the log just accepted, keeping the peer table and
// votingCfgChangeLogIdx bookkeeping in sync with what's now on the log
// (raft_offer_log). It implements the logHost interface the log calls back
// into.
func (s *Server) offerLog(entries []Entry, startIndex uint64) {
	for i := range entries {
		ety := &entries[i]
		if !ety.Type.IsCfgChange() {
			continue
		}
		idx := startIndex + uint64(i)
		if ety.Type.IsVotingCfgChange() {
			s.votingCfgChangeLogIdx = idx
			s.hasVotingCfgChange = true
		}

		nodeID := s.cb.LogGetNodeID(ety, idx)
		node := s.peers.get(nodeID)
		isSelf := nodeID == s.nodeID

		switch ety.Type {
		case EntryAddNonvotingNode:
			s.addNodeInternal(ety, nodeID, isSelf, false)
		case EntryAddNode:
			s.addNodeInternal(ety, nodeID, isSelf, true)
		case EntryPromoteNode:
			if node != nil {
				node.SetVoting(true)
			}
		case EntryDemoteNode:
			if node != nil {
				node.SetVoting(false)
			}
		case EntryRemoveNode, EntryRemoveNonvotingNode:
			if node != nil {
				s.removeNodeInternal(node)
			}
		}
	}
}

// popLog reverses offerLog's effect, walking the run from its highest index
// down to its lowest so that an add followed later by a remove unwinds in
// the opposite order it was applied (raft_pop_log).
func (s *Server) popLog(entries []Entry, startIndex uint64) {
	for i := len(entries) - 1; i >= 0; i-- {
		ety := &entries[i]
		if !ety.Type.IsCfgChange() {
			continue
		}
		idx := startIndex + uint64(i)
		if s.hasVotingCfgChange && idx <= s.votingCfgChangeLogIdx {
			s.hasVotingCfgChange = false
		}

		nodeID := s.cb.LogGetNodeID(ety, idx)
		node := s.peers.get(nodeID)
		isSelf := nodeID == s.nodeID

		switch ety.Type {
		case EntryDemoteNode:
			if node != nil {
				node.SetVoting(true)
			}
		case EntryRemoveNode:
			s.addNodeInternal(ety, nodeID, isSelf, true)
		case EntryRemoveNonvotingNode:
			s.addNodeInternal(ety, nodeID, isSelf, false)
		case EntryAddNonvotingNode, EntryAddNode:
			if node != nil {
				s.removeNodeInternal(node)
			}
		case EntryPromoteNode:
			if node != nil {
				node.SetVoting(false)
			}
		}
	}
}

// addNodeInternal inserts a new peer, refusing to add one that's already
// present. entry is the cfg-change entry responsible, or nil for a
// host-initiated bootstrap add outside the log. A node added while we are
// already leader gets its lease clock started immediately, since it has no
// grace period otherwise until the next election.
func (s *Server) addNodeInternal(entry *Entry, id uint64, isSelf, voting bool) *Node {
	if s.peers.get(id) != nil {
		return nil
	}
	node := NewNode(id, voting, isSelf)
	if s.IsLeader() {
		node.setEffectiveTime(s.cb.GetTime())
	}
	s.peers.add(node)
	if isSelf {
		s.nodeID = id
	}
	if s.cb != nil {
		s.cb.NotifyMembershipEvent(node, entry, MembershipAdd)
	}
	return node
}

func (s *Server) removeNodeInternal(node *Node) {
	if s.cb != nil {
		s.cb.NotifyMembershipEvent(node, nil, MembershipRemove)
	}
	s.peers.remove(node.ID())
}

// AddNode registers a voting peer outside the log mechanism, for bootstrap
// configuration before any entries exist.
func (s *Server) AddNode(id uint64, isSelf bool) *Node {
	return s.addNodeInternal(nil, id, isSelf, true)
}

// AddNonVotingNode registers a non-voting peer outside the log mechanism.
func (s *Server) AddNonVotingNode(id uint64, isSelf bool) *Node {
	return s.addNodeInternal(nil, id, isSelf, false)
}

// RemoveNode evicts node outside the log mechanism.
func (s *Server) RemoveNode(node *Node) {
	s.removeNodeInternal(node)
}
