package raft

// EntryType identifies what a log Entry represents. The four cfg-change
// types that can alter voting membership are "voting cfg changes"; see
// EntryType.IsVotingCfgChange.
type EntryType int

const (
	EntryNormal EntryType = iota
	EntryAddNonvotingNode
	EntryAddNode
	EntryPromoteNode
	EntryDemoteNode
	EntryRemoveNonvotingNode
	EntryRemoveNode
	EntrySnapshot
)

func (t EntryType) String() string {
	switch t {
	case EntryNormal:
		return "NORMAL"
	case EntryAddNonvotingNode:
		return "ADD_NONVOTING_NODE"
	case EntryAddNode:
		return "ADD_NODE"
	case EntryPromoteNode:
		return "PROMOTE_NODE"
	case EntryDemoteNode:
		return "DEMOTE_NODE"
	case EntryRemoveNonvotingNode:
		return "REMOVE_NONVOTING_NODE"
	case EntryRemoveNode:
		return "REMOVE_NODE"
	case EntrySnapshot:
		return "SNAPSHOT"
	default:
		return "UNKNOWN"
	}
}

// IsCfgChange reports whether the entry type alters the peer table at all
// (including non-voting adds/removes).
func (t EntryType) IsCfgChange() bool {
	switch t {
	case EntryAddNode, EntryAddNonvotingNode, EntryPromoteNode, EntryDemoteNode,
		EntryRemoveNonvotingNode, EntryRemoveNode:
		return true
	default:
		return false
	}
}

// IsVotingCfgChange reports whether the entry type alters the voting set.
func (t EntryType) IsVotingCfgChange() bool {
	switch t {
	case EntryAddNode, EntryPromoteNode, EntryDemoteNode, EntryRemoveNode:
		return true
	default:
		return false
	}
}

// Entry is a single record in the replicated log. Index is assigned by the
// log on append and is never chosen by the caller.
type Entry struct {
	Index   uint64
	Term    uint64
	ID      uint64
	Type    EntryType
	Payload []byte
}

// VoteResult is the tri-state result of a RequestVote.
type VoteResult int

const (
	VoteNotGranted VoteResult = iota
	VoteGranted
	VoteUnknownNode
)

// RequestVote is sent by a candidate (real or pre-vote) to a peer.
type RequestVote struct {
	Term         uint64
	CandidateID  uint64
	LastLogIndex uint64
	LastLogTerm  uint64
	Prevote      bool
}

// RequestVoteResponse answers a RequestVote.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted VoteResult
	Prevote     bool
}

// AppendEntries replicates a run of log entries, or serves as a heartbeat
// when Entries is empty.
type AppendEntries struct {
	Term         uint64
	LeaderID     uint64
	PrevLogIndex uint64
	PrevLogTerm  uint64
	LeaderCommit uint64
	Entries      []Entry
}

// AppendEntriesResponse answers an AppendEntries.
type AppendEntriesResponse struct {
	Term       uint64
	Success    bool
	CurrentIdx uint64
	FirstIdx   uint64
	Lease      int64
}

// InstallSnapshot begins (or continues) a snapshot transfer to a follower
// that has fallen behind the leader's compacted log prefix. Chunk data is
// entirely host-defined and is not modeled here; hosts stream it out of
// band via Callbacks.SendInstallSnapshot / Callbacks.RecvInstallSnapshot.
type InstallSnapshot struct {
	Term     uint64
	LastIdx  uint64
	LastTerm uint64
}

// InstallSnapshotResponse answers an InstallSnapshot.
type InstallSnapshotResponse struct {
	Term     uint64
	LastIdx  uint64
	Complete bool
	Lease    int64
}

// EntryResponse is returned to a client on successful submission via
// Server.RecvEntry, and can later be checked with Server.EntryIsCommitted.
type EntryResponse struct {
	ID    uint64
	Index uint64
	Term  uint64
}

// CommitStatus is the result of Server.EntryIsCommitted.
type CommitStatus int

const (
	// CommitUnknown means the entry is not present locally (e.g. on a
	// follower that hasn't replicated that far yet).
	CommitUnknown CommitStatus = iota
	// CommitPending means the entry is present but not yet committed.
	CommitPending
	// CommitCommitted means the entry (matched by term) is committed.
	CommitCommitted
	// CommitInvalidated means the slot is now held by an entry of a
	// different term — the original entry was never, or is no longer,
	// going to be committed.
	CommitInvalidated
)

// MembershipEventType distinguishes the two kinds of NotifyMembershipEvent
// calls.
type MembershipEventType int

const (
	MembershipAdd MembershipEventType = iota
	MembershipRemove
)
