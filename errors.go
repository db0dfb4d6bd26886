package raft

import "errors"

// Sentinel errors returned to the host. Callers should compare with
// errors.Is.
var (
	// ErrNoMem is returned when the log failed to grow its backing array,
	// and by RecvEntry when the host's LogOffer declined the entry. State
	// is left as it was before the failing operation.
	ErrNoMem = errors.New("raft: out of memory")

	// ErrNotLeader is returned when an operation requires leader role.
	ErrNotLeader = errors.New("raft: not leader")

	// ErrMightViolateLease is returned when becoming a candidate is
	// refused because an outstanding lease could be violated. The host
	// should retry after the election timeout elapses.
	ErrMightViolateLease = errors.New("raft: might violate lease")

	// ErrOneVotingChangeOnly is returned when a second voting cfg change
	// is submitted while one is already in flight.
	ErrOneVotingChangeOnly = errors.New("raft: one voting change only")

	// ErrSnapshotInProgress is returned when a cfg change is submitted
	// while a snapshot is in progress.
	ErrSnapshotInProgress = errors.New("raft: snapshot in progress")

	// ErrInvalidCfgChange is returned for a structurally invalid
	// membership change (adding a known node, demoting/removing a
	// non-voting node, promoting a voting node, changing self, ...).
	ErrInvalidCfgChange = errors.New("raft: invalid cfg change")

	// ErrSnapshotAlreadyLoaded is returned by BeginLoadSnapshot when the
	// requested (term, index) matches the currently loaded snapshot.
	ErrSnapshotAlreadyLoaded = errors.New("raft: snapshot already loaded")

	// ErrShutdown signals an irrecoverable safety violation (a committed
	// entry mismatch) or a host-requested shutdown from ApplyLog. The
	// host should terminate this server and rebuild it from persistence.
	ErrShutdown = errors.New("raft: shutdown")

	// ErrIndexOutOfRange is returned by Log operations addressing an
	// index outside (base, base+count].
	ErrIndexOutOfRange = errors.New("raft: index out of range")

	// ErrSnapshotNotInProgress is returned by EndSnapshot when no
	// matching BeginSnapshot is outstanding.
	ErrSnapshotNotInProgress = errors.New("raft: snapshot not in progress")
)
