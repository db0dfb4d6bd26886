package raft

// leaseGranted reports whether we might have already granted a lease to
// someone other than exceptID that has not yet expired — either implicitly,
// by having just (re)started within one election timeout of our previous
// life, or explicitly, by currently recognizing a different leader within
// this election timeout (original_source/src/raft_server.c
// raft_lease_granted). It gates both becomeCandidate and RecvRequestVote so
// a restarted or partitioned node can't grant conflicting leases.
func (s *Server) leaseGranted(exceptID uint64, now int64) bool {
	if !s.firstStart && now-s.startTime < s.config.ElectionTimeout {
		return true
	}
	if s.hasLeader && s.leaderID != exceptID && now-s.electionTimer < s.config.ElectionTimeout {
		return true
	}
	return false
}

// hasLease reports whether node currently grants us (the leader) a lease at
// time now. Self always holds an implicit lease. withGrace additionally
// tolerates a node that hasn't reported a lease yet because it's within
// election_timeout+grace of becoming eligible (a brand-new leader, or a
// node just added to the cluster) — used only for the step-down check, not
// for linearizable-read decisions (original_source/src/raft_server.c
// has_lease).
func (s *Server) hasLease(node *Node, now int64, withGrace bool) bool {
	if node.IsSelf() {
		return true
	}
	if withGrace {
		if now < node.Lease()+s.config.LeaseMaintenanceGrace {
			return true
		}
		if now-node.EffectiveTime() < s.config.ElectionTimeout+s.config.LeaseMaintenanceGrace {
			return true
		}
		return false
	}
	return now < node.Lease()
}

func (s *Server) hasMajorityLeases(now int64, withGrace bool) bool {
	n, nVoting := 0, 0
	for _, node := range s.peers.nodes {
		if !node.IsVoting() {
			continue
		}
		nVoting++
		if s.hasLease(node, now, withGrace) {
			n++
		}
	}
	return nVoting/2+1 <= n
}

// HasMajorityLeases reports whether this leader currently holds majority
// leases, without grace, suitable for deciding whether a local read is safe
// to serve without a round-trip. Returns
// false for a non-leader.
func (s *Server) HasMajorityLeases() bool {
	if s.role != RoleLeader {
		return false
	}
	return s.hasMajorityLeases(s.cb.GetTime(), false)
}
