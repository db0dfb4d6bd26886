package raft

// EntryIsCommitted lets a client that cached an EntryResponse find out,
// without retaining a Future across calls, whether the entry it submitted
// ended up committed, is still pending, or was invalidated by a later
// leader's conflicting entry at the same index.
func (s *Server) EntryIsCommitted(r *EntryResponse) CommitStatus {
	term, got := s.getEntryTerm(r.Index)
	if !got {
		if r.Index <= s.log.Base() {
			if r.Term == s.currentTerm {
				// Compacted out, but committed in our own current
				// term: it must be the entry we submitted.
				return CommitCommitted
			}
			return CommitInvalidated
		}
		return CommitUnknown
	}

	if r.Term != term {
		return CommitInvalidated
	}
	if r.Index <= s.commitIdx {
		return CommitCommitted
	}
	return CommitPending
}
