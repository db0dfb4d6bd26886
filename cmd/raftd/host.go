package main

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/daos-stack/raft"
	"github.com/daos-stack/raft/internal/fsm"
	"github.com/daos-stack/raft/internal/metrics"
	"github.com/daos-stack/raft/internal/store"
	"github.com/daos-stack/raft/internal/transport"
)

// Host wires a Server to durable storage, a TCP transport, a demo state
// machine and Prometheus metrics. It is the Callbacks implementation the
// rest of this package drives; the Server never talks to any of those
// subsystems directly.
type Host struct {
	mu     sync.Mutex
	server *raft.Server

	store  *store.Store
	trans  *transport.Transport
	fsm    *fsm.FSM
	logger hostLogger
	metr   *metrics.Metrics
	rng    *rand.Rand

	snapshotThreshold uint64
	trailingLogs      uint64

	// pendingSnapshot holds the payload HandleInstallSnapshot stashed for
	// the duration of the single Server.RecvInstallSnapshot call that
	// follows it; RecvInstallSnapshot (the Callbacks method) is invoked
	// synchronously from inside that same call, on the same goroutine, so
	// there is never a concurrent writer to race.
	pendingSnapshot []byte
}

func newHost(st *store.Store, trans *transport.Transport, log zerolog.Logger, snapshotThreshold, trailingLogs uint64) *Host {
	return &Host{
		store:             st,
		trans:             trans,
		fsm:               fsm.New(),
		logger:            newHostLogger(log),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		snapshotThreshold: snapshotThreshold,
		trailingLogs:      trailingLogs,
	}
}

// withServer runs fn with the host's lock held, serializing every call into
// the Server against concurrent transport/tick goroutines.
func (h *Host) withServer(fn func(*raft.Server) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.server)
}

// --- raft.Callbacks ---------------------------------------------------

func (h *Host) SendRequestVote(peer *raft.Node, msg *raft.RequestVote) error {
	go func() {
		resp, err := h.trans.SendRequestVote(peer, msg)
		if err != nil {
			h.logger.log.Debug().Uint64("peer", peer.ID()).Err(err).Msg("requestvote rpc failed")
			return
		}
		if err := h.withServer(func(s *raft.Server) error { return s.HandleVoteResponse(peer, resp) }); err != nil {
			h.logger.log.Error().Err(err).Msg("handling vote response")
		}
	}()
	return nil
}

func (h *Host) SendAppendEntries(peer *raft.Node, msg *raft.AppendEntries) error {
	go func() {
		resp, err := h.trans.SendAppendEntries(peer, msg)
		if err != nil {
			h.logger.log.Debug().Uint64("peer", peer.ID()).Err(err).Msg("appendentries rpc failed")
			return
		}
		if err := h.withServer(func(s *raft.Server) error { return s.RecvAppendEntriesResponse(peer, resp) }); err != nil {
			h.logger.log.Error().Err(err).Msg("handling appendentries response")
		}
	}()
	return nil
}

// SendInstallSnapshot ships the whole state machine table alongside the
// InstallSnapshot metadata: this demo host never chunks a transfer, so
// there is exactly one request/response round trip per install.
func (h *Host) SendInstallSnapshot(peer *raft.Node, msg *raft.InstallSnapshot) error {
	payload, err := fsm.EncodeSnapshot(h.fsm.Snapshot())
	if err != nil {
		return errors.Wrap(err, "encode snapshot payload")
	}
	go func() {
		resp, err := h.trans.SendInstallSnapshot(peer, msg, payload)
		if err != nil {
			h.logger.log.Debug().Uint64("peer", peer.ID()).Err(err).Msg("installsnapshot rpc failed")
			return
		}
		if err := h.withServer(func(s *raft.Server) error { return s.RecvInstallSnapshotResponse(peer, resp) }); err != nil {
			h.logger.log.Error().Err(err).Msg("handling installsnapshot response")
		}
	}()
	return nil
}

func (h *Host) ApplyLog(entry *raft.Entry, index uint64) error {
	if entry.Type != raft.EntryNormal {
		return nil
	}
	if err := h.fsm.Apply(entry.Payload); err != nil {
		return errors.Wrap(err, "apply command")
	}
	return nil
}

func (h *Host) PersistTerm(term uint64) error { return h.store.PersistTerm(term) }

func (h *Host) PersistVote(nodeID uint64, hasVote bool) error {
	return h.store.PersistVote(nodeID, hasVote)
}

func (h *Host) LogOffer(entries []raft.Entry, startIndex uint64) (int, error) {
	return h.store.LogOffer(entries, startIndex)
}

func (h *Host) LogPop(entries []raft.Entry, startIndex uint64) error {
	return h.store.LogPop(entries, startIndex)
}

func (h *Host) LogPoll(entries []raft.Entry, startIndex uint64) error {
	return h.store.LogPoll(entries, startIndex)
}

// LogGetNodeID decodes the target node id every cfg-change entry this host
// submits carries directly in Entry.ID.
func (h *Host) LogGetNodeID(entry *raft.Entry, idx uint64) uint64 {
	return entry.ID
}

// RecvInstallSnapshot loads the table HandleInstallSnapshot stashed in
// pendingSnapshot as the local state machine and advances the log past the
// compacted prefix. It is called synchronously from inside the same
// Server.RecvInstallSnapshot call HandleInstallSnapshot is blocked on, so
// h.server is already safe to call directly without going through
// withServer again.
func (h *Host) RecvInstallSnapshot(peer *raft.Node, msg *raft.InstallSnapshot, resp *raft.InstallSnapshotResponse) (int, error) {
	table, err := fsm.DecodeSnapshot(h.pendingSnapshot)
	if err != nil {
		return -1, errors.Wrap(err, "decode snapshot payload")
	}
	if err := h.server.BeginLoadSnapshot(msg.LastTerm, msg.LastIdx); err != nil {
		if errors.Is(err, raft.ErrSnapshotAlreadyLoaded) {
			return 1, nil
		}
		return -1, errors.Wrap(err, "begin load snapshot")
	}
	h.fsm.Restore(table)
	if err := h.server.EndLoadSnapshot(); err != nil {
		return -1, errors.Wrap(err, "end load snapshot")
	}
	return 1, nil
}

func (h *Host) RecvInstallSnapshotResponse(peer *raft.Node, resp *raft.InstallSnapshotResponse) error {
	return nil
}

// NodeHasSufficientLogs auto-promotes a caught-up non-voting node, the same
// way a cluster operator's tooling would react to this one-shot
// notification. The promotion is submitted from its own goroutine, once the
// Server call that fired this notification has released the host lock.
func (h *Host) NodeHasSufficientLogs(node *raft.Node) error {
	go func() {
		err := h.withServer(func(s *raft.Server) error {
			if !s.IsLeader() || node.IsVoting() {
				return nil
			}
			_, err := s.RecvEntry(&raft.Entry{ID: node.ID(), Type: raft.EntryPromoteNode})
			return err
		})
		if err != nil {
			h.logger.log.Error().Uint64("peer", node.ID()).Err(err).Msg("promoting node")
		}
	}()
	return nil
}

func (h *Host) NotifyMembershipEvent(node *raft.Node, entry *raft.Entry, event raft.MembershipEventType) {
	ev := h.logger.log.Info().Uint64("peer", node.ID())
	if event == raft.MembershipRemove {
		ev.Msg("peer removed")
		return
	}
	ev.Msg("peer added")
}

func (h *Host) GetTime() int64   { return time.Now().UnixMilli() }
func (h *Host) GetRand() float64 { return h.rng.Float64() }

func (h *Host) Log(node *raft.Node, level raft.LogLevel, msg string) {
	h.logger.Log(node, level, msg)
}

// --- transport.RequestHandler ------------------------------------------

func (h *Host) HandleRequestVote(from uint64, msg *raft.RequestVote) (*raft.RequestVoteResponse, error) {
	var resp *raft.RequestVoteResponse
	err := h.withServer(func(s *raft.Server) error {
		var err error
		resp, err = s.RecvRequestVote(s.Node(from), msg)
		return err
	})
	return resp, err
}

func (h *Host) HandleAppendEntries(from uint64, msg *raft.AppendEntries) (*raft.AppendEntriesResponse, error) {
	var resp *raft.AppendEntriesResponse
	err := h.withServer(func(s *raft.Server) error {
		var err error
		resp, err = s.RecvAppendEntries(s.Node(from), msg)
		return err
	})
	return resp, err
}

func (h *Host) HandleInstallSnapshot(from uint64, msg *raft.InstallSnapshot, payload []byte) (*raft.InstallSnapshotResponse, error) {
	var resp *raft.InstallSnapshotResponse
	err := h.withServer(func(s *raft.Server) error {
		h.pendingSnapshot = payload
		var err error
		resp, err = s.RecvInstallSnapshot(s.Node(from), msg)
		h.pendingSnapshot = nil
		return err
	})
	return resp, err
}

// propose submits a key/value command to the local server (which must be
// leader) and blocks until it commits, is invalidated, or five seconds
// pass.
func (h *Host) propose(op fsm.Op, key, value string) (*raft.EntryResponse, error) {
	payload, err := fsm.EncodeCommand(fsm.Command{Op: op, Key: key, Value: value})
	if err != nil {
		return nil, errors.Wrap(err, "encode command")
	}

	id := uuid.New()
	entryID := binary.BigEndian.Uint64(id[:8])

	var resp *raft.EntryResponse
	err = h.withServer(func(s *raft.Server) error {
		var err error
		resp, err = s.RecvEntry(&raft.Entry{ID: entryID, Type: raft.EntryNormal, Payload: payload})
		return err
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status raft.CommitStatus
		_ = h.withServer(func(s *raft.Server) error {
			status = s.EntryIsCommitted(resp)
			return nil
		})
		switch status {
		case raft.CommitCommitted:
			return resp, nil
		case raft.CommitInvalidated:
			return resp, errors.New("entry invalidated by a newer leader")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return resp, errors.New("timed out waiting for commit")
}

func (h *Host) tickLoop(interval time.Duration, metr *metrics.Metrics) {
	h.metr = metr
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		var tickErr error
		err := h.withServer(func(s *raft.Server) error {
			tickErr = s.Tick()
			h.maybeSnapshotLocked(s)
			h.sampleLocked(s)
			return nil
		})
		if err != nil {
			h.logger.log.Error().Err(err).Msg("tick")
		}
		if errors.Is(tickErr, raft.ErrShutdown) {
			h.logger.log.Warn().Msg("server requested shutdown")
			return
		}
	}
}

// maybeSnapshotLocked compacts the log once enough committed entries have
// piled up above the current snapshot boundary, leaving trailingLogs
// entries unsnapshotted so a briefly-lagging follower can still catch up
// via AppendEntries rather than a full snapshot transfer.
func (h *Host) maybeSnapshotLocked(s *raft.Server) {
	if h.snapshotThreshold == 0 || s.SnapshotInProgress() {
		return
	}
	if s.NumSnapshottableLogs() < h.snapshotThreshold {
		return
	}

	target := s.CommitIndex()
	if h.trailingLogs > 0 && s.CurrentIdx() > h.trailingLogs {
		if keep := s.CurrentIdx() - h.trailingLogs; keep < target {
			target = keep
		}
	}
	if target < s.FirstEntryIdx() {
		return
	}

	if err := s.BeginSnapshot(target); err != nil {
		h.logger.log.Error().Err(err).Msg("begin snapshot")
		return
	}
	if err := s.EndSnapshot(); err != nil {
		h.logger.log.Error().Err(err).Msg("end snapshot")
		return
	}
	h.logger.log.Info().Uint64("index", target).Msg("compacted log via snapshot")
}

func (h *Host) sampleLocked(s *raft.Server) {
	if h.metr == nil {
		return
	}
	h.metr.Update(metrics.Sample{
		Term:        s.CurrentTerm(),
		IsLeader:    s.IsLeader(),
		CommitIndex: s.CommitIndex(),
		LastApplied: s.LastApplied(),
		HasLease:    s.IsLeader() && s.HasMajorityLeases(),
		VotingPeers: countVoting(s),
	})
}

func countVoting(s *raft.Server) int {
	n := 0
	for _, node := range s.Nodes() {
		if node.IsVoting() {
			n++
		}
	}
	return n
}
