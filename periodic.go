package raft

// Tick drives every time-based transition: it is the host's sole entry
// point for advancing the clock, and must be called regularly (faster than
// RequestTimeout) regardless of whether any message has arrived.
func (s *Server) Tick() error {
	now := s.cb.GetTime()

	if s.role == RoleLeader {
		if !s.hasMajorityLeases(now, true) {
			s.logf(nil, LogError, "unable to maintain majority leases")
			s.becomeFollower()
			s.hasLeader = false
		} else if s.config.RequestTimeout <= now-s.electionTimer {
			s.sendAppendEntriesAll()
		}
	} else if s.electionTimeoutRand <= now-s.electionTimer && !s.snapshotInProgress {
		// Don't start an election while snapshotting: a client request
		// arriving mid-snapshot would have nowhere safe to land.
		if self := s.peers.self(); self != nil && self.IsVoting() {
			if err := s.ElectionStart(); err != nil {
				return err
			}
		}
	}

	if s.lastAppliedIdx < s.commitIdx && !s.snapshotInProgress {
		if err := s.applyAll(); err != nil {
			return err
		}
	}

	return nil
}
