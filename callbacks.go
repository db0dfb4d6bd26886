package raft

import "io"

// LogLevel mirrors the levels the host's Log callback may be asked to
// record at.
type LogLevel int

const (
	LogError LogLevel = iota
	LogInfo
	LogDebug
)

// Callbacks is the entire surface between the engine and its host. The engine never performs I/O, timing, persistence or state
// machine application itself; every side effect flows through one of these
// methods, invoked synchronously from inside a Server method. Callbacks must
// not re-enter the Server instance that invoked them.
type Callbacks interface {
	// Send* ship a message to peer. The engine does not retry on error;
	// it is the host's responsibility to decide whether/when to retry
	// (typically by letting the next Tick or response drive a retry).
	SendRequestVote(peer *Node, msg *RequestVote) error
	SendAppendEntries(peer *Node, msg *AppendEntries) error
	SendInstallSnapshot(peer *Node, msg *InstallSnapshot) error

	// ApplyLog delivers a committed entry to the state machine.
	// Returning ErrShutdown tells the engine to abort with ErrShutdown.
	ApplyLog(entry *Entry, index uint64) error

	// PersistTerm is invoked whenever current_term changes, before the
	// in-memory value is updated. A non-nil error aborts the term
	// change: the engine leaves current_term untouched.
	PersistTerm(term uint64) error

	// PersistVote is invoked whenever voted_for changes, before the
	// in-memory value is updated. hasVote=false means "no vote", in
	// which case nodeID carries no meaning.
	PersistVote(nodeID uint64, hasVote bool) error

	// LogOffer is the persistence hook for an accepted run of appended
	// entries. It may accept fewer than len(entries) by returning a
	// smaller count; the log commits exactly that many and, on err !=
	// nil, returns the partial count upward to the caller of Append.
	LogOffer(entries []Entry, startIndex uint64) (accepted int, err error)

	// LogPop is the persistence hook for one run of entries removed from
	// the tail, walked from the highest index down to the lowest within
	// the run.
	LogPop(entries []Entry, startIndex uint64) error

	// LogPoll is the persistence hook for one run of entries removed
	// from the compacted prefix.
	LogPoll(entries []Entry, startIndex uint64) error

	// LogGetNodeID extracts the node id encoded in a cfg-change entry's
	// payload. idx is the entry's log index, for hosts that encode ids
	// positionally rather than in the payload.
	LogGetNodeID(entry *Entry, idx uint64) uint64

	// RecvInstallSnapshot is invoked when the engine cannot resolve an
	// InstallSnapshot locally (the follower doesn't already have the
	// snapshotted index under a matching term) and must delegate the
	// byte-stream transfer to the host. resp is pre-populated with Term,
	// LastIdx and Complete=false; the callback may read chunk data from
	// its own transport out of band. Returns 0 to continue (more chunks
	// expected), 1 when the transfer is complete, or a negative value
	// (any error) on failure.
	RecvInstallSnapshot(peer *Node, msg *InstallSnapshot, resp *InstallSnapshotResponse) (complete int, err error)

	// RecvInstallSnapshotResponse lets the leader-side host update its
	// own chunk-transfer bookkeeping before the engine updates match/next
	// index on a complete response.
	RecvInstallSnapshotResponse(peer *Node, resp *InstallSnapshotResponse) error

	// NodeHasSufficientLogs is a one-shot notification that a
	// non-voting node has caught up enough to be promoted.
	NodeHasSufficientLogs(node *Node) error

	// NotifyMembershipEvent tells the host about a peer table change.
	// entry is always nil for a removal, whether triggered by a
	// cfg-change log entry or a direct RemoveNode call, and non-nil for
	// an add that originated from a cfg-change log entry.
	NotifyMembershipEvent(node *Node, entry *Entry, event MembershipEventType)

	// GetTime returns the current monotonic time, in the same units as
	// every timeout/duration field on Server (typically milliseconds).
	GetTime() int64

	// GetRand returns a uniform random value in [0, 1).
	GetRand() float64

	// Log records a diagnostic message. node is nil for server-level
	// messages not about a specific peer.
	Log(node *Node, level LogLevel, msg string)
}

// SnapshotWriter is the sink a Server.BeginSnapshot host loop writes the
// state machine's snapshot bytes into; it is not part of Callbacks because
// the timing of snapshot creation is entirely host-driven (the engine only
// tracks begin/end bookkeeping).
type SnapshotWriter = io.Writer
