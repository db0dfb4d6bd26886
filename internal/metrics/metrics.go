// Package metrics exposes a running node's raft state as Prometheus
// gauges, sampled once per tick by the host loop. The core engine emits
// nothing itself; this package only reads accessors the Server already
// exposes publicly.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample is the subset of Server state a node samples on every tick.
type Sample struct {
	Term          uint64
	IsLeader      bool
	CommitIndex   uint64
	LastApplied   uint64
	HasLease      bool
	VotingPeers   int
}

// Metrics holds the gauges registered for one node.
type Metrics struct {
	term        prometheus.Gauge
	leader      prometheus.Gauge
	commitIndex prometheus.Gauge
	lastApplied prometheus.Gauge
	hasLease    prometheus.Gauge
	votingPeers prometheus.Gauge
}

// New creates and registers a node's gauges against reg.
func New(reg prometheus.Registerer, nodeID uint64) *Metrics {
	labels := prometheus.Labels{"node": nodeIDLabel(nodeID)}
	m := &Metrics{
		term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "current_term", Help: "Current raft term.", ConstLabels: labels,
		}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "is_leader", Help: "1 if this node believes it is the leader.", ConstLabels: labels,
		}),
		commitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "commit_index", Help: "Highest committed log index.", ConstLabels: labels,
		}),
		lastApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "last_applied", Help: "Highest applied log index.", ConstLabels: labels,
		}),
		hasLease: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "has_majority_lease", Help: "1 if the leader currently holds a majority lease.", ConstLabels: labels,
		}),
		votingPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftd", Name: "voting_peers", Help: "Number of voting peers in the cluster.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.term, m.leader, m.commitIndex, m.lastApplied, m.hasLease, m.votingPeers)
	return m
}

// Update pushes a fresh sample into the gauges.
func (m *Metrics) Update(s Sample) {
	m.term.Set(float64(s.Term))
	m.commitIndex.Set(float64(s.CommitIndex))
	m.lastApplied.Set(float64(s.LastApplied))
	m.votingPeers.Set(float64(s.VotingPeers))
	m.leader.Set(boolToFloat(s.IsLeader))
	m.hasLease.Set(boolToFloat(s.HasLease))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func nodeIDLabel(id uint64) string {
	return strconv.FormatUint(id, 10)
}
