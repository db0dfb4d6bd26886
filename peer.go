package raft

// Node is a peer in the cluster. Exactly one Node in a Server's table has
// IsSelf set.
type Node struct {
	id     uint64
	isSelf bool
	voting bool

	// hasSufficientLogs is set once, the first time a non-voting node
	// catches up enough to be promotion-eligible; NodeHasSufficientLogs
	// fires only on the transition into true.
	hasSufficientLogs bool

	// Leader's view of replication progress. Meaningless on a follower.
	nextIdx  uint64
	matchIdx uint64

	// effectiveTime is when the leader started counting this peer
	// toward majority leases. It is set in becomeLeader for peers
	// already present, and in addNodeInternal when a node is added
	// while this server is already leader — NOT when a node is added
	// to a non-leader server. A zero effectiveTime is load-bearing: hasLease's grace
	// branch treats "never set" the same as "just became effective at
	// time zero", which only matters before the clock has advanced past
	// electionTimeout+grace.
	effectiveTime int64

	// lease is the absolute time through which this peer has promised
	// (via its last AppendEntries/InstallSnapshot response) to recognize
	// the current leader.
	lease int64

	// voteForMe is this election's per-node tally flag, cleared at the
	// start of every new candidacy.
	voteForMe bool
}

// NewNode constructs a peer record. isSelf marks the server's own entry in
// its own peer table.
func NewNode(id uint64, voting bool, isSelf bool) *Node {
	return &Node{id: id, voting: voting, isSelf: isSelf}
}

func (n *Node) ID() uint64             { return n.id }
func (n *Node) IsSelf() bool           { return n.isSelf }
func (n *Node) IsVoting() bool         { return n.voting }
func (n *Node) SetVoting(v bool)       { n.voting = v }
func (n *Node) HasSufficientLogs() bool { return n.hasSufficientLogs }
func (n *Node) NextIndex() uint64      { return n.nextIdx }
func (n *Node) MatchIndex() uint64     { return n.matchIdx }
func (n *Node) EffectiveTime() int64   { return n.effectiveTime }
func (n *Node) Lease() int64           { return n.lease }
func (n *Node) VoteForMe() bool        { return n.voteForMe }

func (n *Node) setNextIndex(idx uint64)  { n.nextIdx = idx }
func (n *Node) setMatchIndex(idx uint64) { n.matchIdx = idx }
func (n *Node) setVoteForMe(v bool)      { n.voteForMe = v }
func (n *Node) setLease(t int64)         { n.lease = t }
func (n *Node) setEffectiveTime(t int64) { n.effectiveTime = t }
func (n *Node) setHasSufficientLogs()    { n.hasSufficientLogs = true }

// peerTable is the ordered set of peers a Server tracks, including itself.
type peerTable struct {
	nodes []*Node
}

func (p *peerTable) get(id uint64) *Node {
	for _, n := range p.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (p *peerTable) self() *Node {
	for _, n := range p.nodes {
		if n.isSelf {
			return n
		}
	}
	return nil
}

func (p *peerTable) add(n *Node) {
	p.nodes = append(p.nodes, n)
}

func (p *peerTable) remove(id uint64) {
	for i, n := range p.nodes {
		if n.id == id {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
			return
		}
	}
}

func (p *peerTable) clear() {
	p.nodes = nil
}

func (p *peerTable) numVoting() int {
	n := 0
	for _, node := range p.nodes {
		if node.voting {
			n++
		}
	}
	return n
}

// votesIsMajority reports whether nvotes is a strict majority of numNodes,
// matching the original's raft_votes_is_majority (half+1, with the nvotes >
// numNodes guard against double-counted stale tallies).
func votesIsMajority(numNodes, nvotes int) bool {
	if numNodes < nvotes {
		return false
	}
	return numNodes/2+1 <= nvotes
}
