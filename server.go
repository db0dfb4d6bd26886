package raft

import "fmt"

// Role is the server's current position in the Raft state machine.
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// ConnectedState tracks whether the host is in the middle of removing this
// server from the cluster, for the UNKNOWN_NODE -> shutdown propagation path.
type ConnectedState int

const (
	Connected ConnectedState = iota
	Disconnecting
	Disconnected
)

// Server holds one Raft participant's persistent and volatile state. It
// owns its Log and peer table exclusively. A Server performs no I/O and
// starts no goroutines; every side effect is a synchronous call into
// Callbacks.
type Server struct {
	cb     Callbacks
	config Config

	// Persistent state.
	currentTerm uint64
	votedFor    uint64
	hasVote     bool
	log         *Log

	snapshotLastIdx  uint64
	snapshotLastTerm uint64

	// Volatile state.
	role             Role
	commitIdx        uint64
	lastAppliedIdx   uint64
	leaderID         uint64
	hasLeader        bool
	electionTimer    int64
	electionTimeoutRand int64
	prevote          bool

	// voting_cfg_change_log_idx: index of an uncommitted voting cfg
	// change, or hasVotingCfgChange=false when none is outstanding.
	votingCfgChangeLogIdx uint64
	hasVotingCfgChange    bool

	snapshotInProgress bool

	startTime  int64
	firstStart bool

	nodeID    uint64
	connected ConnectedState

	peers peerTable
}

// NewServer constructs a Server in the FOLLOWER role with current_term=0,
// voted_for=none, leader_id=none. selfID is this server's own node id; it
// is added to the peer
// table as a voting, self node. cb.GetTime is called once here to seed
// start_time and election_timer, matching
// original_source/src/raft_server.c raft_set_callbacks.
func NewServer(selfID uint64, cb Callbacks, cfg Config, firstStart bool) *Server {
	s := &Server{
		cb:         cb,
		config:     cfg,
		log:        NewLog(),
		nodeID:     selfID,
		firstStart: firstStart,
	}
	s.log.setCallbacks(cb, s)
	s.randomizeElectionTimeout()
	now := cb.GetTime()
	s.electionTimer = now
	s.startTime = now
	s.peers.add(NewNode(selfID, true, true))
	return s
}

func (s *Server) randomizeElectionTimeout() {
	// [electionTimeout, 2*electionTimeout)
	r := s.cb.GetRand()
	s.electionTimeoutRand = int64(float64(s.config.ElectionTimeout) * (1 + r))
	s.logf(nil, LogInfo, "randomized election timeout to %d", s.electionTimeoutRand)
}

func (s *Server) logf(node *Node, level LogLevel, format string, args ...any) {
	if s.cb == nil {
		return
	}
	s.cb.Log(node, level, fmt.Sprintf(format, args...))
}

// --- plain accessors -------------------------------------------------

func (s *Server) CurrentTerm() uint64 { return s.currentTerm }
func (s *Server) Role() Role          { return s.role }
func (s *Server) CommitIndex() uint64 { return s.commitIdx }
func (s *Server) LastApplied() uint64 { return s.lastAppliedIdx }
func (s *Server) Log() *Log           { return s.log }
func (s *Server) SelfID() uint64      { return s.nodeID }
func (s *Server) CurrentIdx() uint64  { return s.log.CurrentIdx() }

// LeaderID returns the currently known leader and whether one is known.
func (s *Server) LeaderID() (uint64, bool) { return s.leaderID, s.hasLeader }

func (s *Server) IsLeader() bool    { return s.role == RoleLeader }
func (s *Server) IsFollower() bool  { return s.role == RoleFollower }
func (s *Server) IsCandidate() bool { return s.role == RoleCandidate }

// SnapshotInProgress reports whether BeginSnapshot has run without a
// matching EndSnapshot yet.
func (s *Server) SnapshotInProgress() bool { return s.snapshotInProgress }

// SnapshotMetadata returns the (term, index) of the last compacted entry.
func (s *Server) SnapshotMetadata() (term, idx uint64) {
	return s.snapshotLastTerm, s.snapshotLastIdx
}

// VotingChangeInProgress reports whether a voting cfg change has been
// appended but not yet committed.
func (s *Server) VotingChangeInProgress() bool { return s.hasVotingCfgChange }

// Node looks up a peer (or self) by id.
func (s *Server) Node(id uint64) *Node { return s.peers.get(id) }

// Self returns this server's own peer record.
func (s *Server) Self() *Node { return s.peers.self() }

// Nodes returns the full peer table, including self, in table order. The
// returned slice must not be mutated.
func (s *Server) Nodes() []*Node { return s.peers.nodes }

// SetConnected lets the host signal it is removing this server from the
// cluster, so a later UNKNOWN_NODE vote response can trigger ErrShutdown
// instead of silently continuing.
func (s *Server) SetConnected(state ConnectedState) { s.connected = state }

// RestoreTerm sets current_term from a host's durable storage at startup,
// going through the same PersistTerm hook a normal term change uses
// (original_source/raft.h raft_set_current_term is public for exactly this
// reason). Idempotent when restoring the value already on disk.
func (s *Server) RestoreTerm(term uint64) error { return s.setCurrentTerm(term) }

// RestoreVote sets voted_for from a host's durable storage at startup
// (original_source/raft.h raft_vote_for_nodeid).
func (s *Server) RestoreVote(nodeID uint64) error { return s.voteForNodeID(nodeID) }

// setCurrentTerm persists and applies a new term, per
// original_source/src/raft_server.c raft_set_current_term: on PersistTerm
// failure the in-memory term is left unchanged.
func (s *Server) setCurrentTerm(term uint64) error {
	if s.cb != nil {
		if err := s.cb.PersistTerm(term); err != nil {
			return err
		}
	}
	s.currentTerm = term
	return nil
}

// voteForNodeID persists and applies a vote for id, always passing
// hasVote=true to PersistVote.
func (s *Server) voteForNodeID(id uint64) error {
	if s.cb != nil {
		if err := s.cb.PersistVote(id, true); err != nil {
			return err
		}
	}
	s.votedFor = id
	s.hasVote = true
	return nil
}

func (s *Server) setCommitIndex(idx uint64) {
	s.commitIdx = idx
}

// getEntryTerm returns the term at idx, either from the live log or, if idx
// is exactly the compacted base, from baseTerm. ok is false if idx is
// neither addressable nor the base (original_source raft_get_entry_term).
func (s *Server) getEntryTerm(idx uint64) (term uint64, ok bool) {
	if e, found := s.log.GetAt(idx); found {
		return e.Term, true
	}
	if idx == s.log.Base() {
		return s.log.BaseTerm(), true
	}
	return 0, false
}

func (s *Server) lastLogTerm() uint64 {
	if e, ok := s.log.PeekTail(); ok {
		return e.Term
	}
	if s.log.Base() > 0 {
		return s.log.BaseTerm()
	}
	return 0
}
