package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daos-stack/raft"
	"github.com/daos-stack/raft/internal/fsm"
)

type statusResponse struct {
	NodeID      uint64 `json:"node_id"`
	Role        string `json:"role"`
	Term        uint64 `json:"term"`
	CommitIndex uint64 `json:"commit_index"`
	LastApplied uint64 `json:"last_applied"`
	LeaderID    uint64 `json:"leader_id,omitempty"`
	HasLease    bool   `json:"has_majority_lease"`
}

type proposeRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Delete bool   `json:"delete"`
}

type proposeResponse struct {
	Index uint64 `json:"index"`
	Term  uint64 `json:"term"`
}

func (h *Host) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/propose", h.handlePropose)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	_ = h.withServer(func(s *raft.Server) error {
		leaderID, _ := s.LeaderID()
		resp = statusResponse{
			NodeID:      s.SelfID(),
			Role:        s.Role().String(),
			Term:        s.CurrentTerm(),
			CommitIndex: s.CommitIndex(),
			LastApplied: s.LastApplied(),
			LeaderID:    leaderID,
			HasLease:    s.IsLeader() && s.HasMajorityLeases(),
		}
		return nil
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Host) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	op := fsm.OpSet
	if req.Delete {
		op = fsm.OpDelete
	}
	resp, err := h.propose(op, req.Key, req.Value)
	if err != nil {
		if errIsNotLeader(err) {
			http.Error(w, err.Error(), http.StatusMisdirectedRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proposeResponse{Index: resp.Index, Term: resp.Term})
}

func errIsNotLeader(err error) bool {
	return errors.Is(err, raft.ErrNotLeader)
}
