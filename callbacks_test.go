package raft

// fakeCallbacks is a minimal, deterministic, in-memory Callbacks
// implementation shared by this package's tests. It never performs real
// I/O or persistence failure injection beyond what a test explicitly asks
// for via its failX fields.
type fakeCallbacks struct {
	now  int64
	rand float64

	sentVotes   []sentVote
	sentAppend  []sentAppend
	sentInstall []sentInstall

	applied []appliedEntry

	persistedTerm uint64
	persistedVote uint64
	hasVote       bool

	failPersistTerm bool
	failPersistVote bool
	failLogOffer    bool
	failApplyLog    error

	membershipEvents []membershipEvent

	logs []logLine

	installRecv func(peer *Node, msg *InstallSnapshot, resp *InstallSnapshotResponse) (int, error)
}

type sentVote struct {
	peer uint64
	msg  RequestVote
}
type sentAppend struct {
	peer uint64
	msg  AppendEntries
}
type sentInstall struct {
	peer uint64
	msg  InstallSnapshot
}
type appliedEntry struct {
	entry Entry
	index uint64
}
type membershipEvent struct {
	nodeID uint64
	event  MembershipEventType
}
type logLine struct {
	level LogLevel
	msg   string
}

func newFakeCallbacks() *fakeCallbacks {
	return &fakeCallbacks{now: 1000}
}

func (f *fakeCallbacks) advance(d int64) { f.now += d }

func (f *fakeCallbacks) SendRequestVote(peer *Node, msg *RequestVote) error {
	f.sentVotes = append(f.sentVotes, sentVote{peer.ID(), *msg})
	return nil
}

func (f *fakeCallbacks) SendAppendEntries(peer *Node, msg *AppendEntries) error {
	f.sentAppend = append(f.sentAppend, sentAppend{peer.ID(), *msg})
	return nil
}

func (f *fakeCallbacks) SendInstallSnapshot(peer *Node, msg *InstallSnapshot) error {
	f.sentInstall = append(f.sentInstall, sentInstall{peer.ID(), *msg})
	return nil
}

func (f *fakeCallbacks) ApplyLog(entry *Entry, index uint64) error {
	f.applied = append(f.applied, appliedEntry{*entry, index})
	return f.failApplyLog
}

func (f *fakeCallbacks) PersistTerm(term uint64) error {
	if f.failPersistTerm {
		return ErrNoMem
	}
	f.persistedTerm = term
	return nil
}

func (f *fakeCallbacks) PersistVote(nodeID uint64, hasVote bool) error {
	if f.failPersistVote {
		return ErrNoMem
	}
	f.persistedVote = nodeID
	f.hasVote = hasVote
	return nil
}

func (f *fakeCallbacks) LogOffer(entries []Entry, startIndex uint64) (int, error) {
	if f.failLogOffer {
		return 0, ErrNoMem
	}
	return len(entries), nil
}

func (f *fakeCallbacks) LogPop(entries []Entry, startIndex uint64) error  { return nil }
func (f *fakeCallbacks) LogPoll(entries []Entry, startIndex uint64) error { return nil }

// LogGetNodeID decodes the target node id from Entry.ID, the convention
// this test fixture uses for every cfg-change entry it builds.
func (f *fakeCallbacks) LogGetNodeID(entry *Entry, idx uint64) uint64 {
	return entry.ID
}

func (f *fakeCallbacks) RecvInstallSnapshot(peer *Node, msg *InstallSnapshot, resp *InstallSnapshotResponse) (int, error) {
	if f.installRecv != nil {
		return f.installRecv(peer, msg, resp)
	}
	return 1, nil
}

func (f *fakeCallbacks) RecvInstallSnapshotResponse(peer *Node, resp *InstallSnapshotResponse) error {
	return nil
}

func (f *fakeCallbacks) NodeHasSufficientLogs(node *Node) error { return nil }

func (f *fakeCallbacks) NotifyMembershipEvent(node *Node, entry *Entry, event MembershipEventType) {
	f.membershipEvents = append(f.membershipEvents, membershipEvent{node.ID(), event})
}

func (f *fakeCallbacks) GetTime() int64   { return f.now }
func (f *fakeCallbacks) GetRand() float64 { return f.rand }

func (f *fakeCallbacks) Log(node *Node, level LogLevel, msg string) {
	f.logs = append(f.logs, logLine{level, msg})
}

func newTestServer(selfID uint64) (*Server, *fakeCallbacks) {
	cb := newFakeCallbacks()
	s := NewServer(selfID, cb, DefaultConfig(), true)
	return s, cb
}
