// Package transport is a length-prefixed encoding/gob TCP transport wiring
// raft.Callbacks.Send* to the wire and dispatching inbound frames to a
// RequestHandler.
package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/raft"
)

type kind byte

const (
	kindVoteReq kind = iota
	kindVoteResp
	kindAppendReq
	kindAppendResp
	kindInstallReq
	kindInstallResp
)

// envelope is the single wire type this transport ever sends; only the
// field matching Kind is populated. SnapshotData rides alongside Install:
// this transport moves a whole state machine snapshot as one message
// rather than chunking it, so the state machine bytes travel in the same
// frame as the InstallSnapshot metadata.
type envelope struct {
	Kind         kind
	From         uint64
	Vote         *raft.RequestVote
	VoteResp     *raft.RequestVoteResponse
	Append       *raft.AppendEntries
	AppendResp   *raft.AppendEntriesResponse
	Install      *raft.InstallSnapshot
	SnapshotData []byte
	InstallResp  *raft.InstallSnapshotResponse
}

// RequestHandler answers inbound RPCs against the local Server. Transport
// calls these from a separate goroutine per accepted connection; the handler
// is responsible for serializing access to the Server itself.
type RequestHandler interface {
	HandleRequestVote(from uint64, msg *raft.RequestVote) (*raft.RequestVoteResponse, error)
	HandleAppendEntries(from uint64, msg *raft.AppendEntries) (*raft.AppendEntriesResponse, error)
	HandleInstallSnapshot(from uint64, msg *raft.InstallSnapshot, payload []byte) (*raft.InstallSnapshotResponse, error)
}

// Transport dials peers by node id using a statically configured address
// book, and serves inbound RPCs for one local node.
type Transport struct {
	selfID  uint64
	addrs   map[uint64]string
	dialTO  time.Duration
	ln      net.Listener
	handler RequestHandler
}

// New constructs a Transport. addrs maps every peer's node id (including
// self, though self is never dialed) to its "host:port" address.
func New(selfID uint64, addrs map[uint64]string) *Transport {
	return &Transport{selfID: selfID, addrs: addrs, dialTO: 2 * time.Second}
}

// Serve starts accepting connections on bindAddr, dispatching each inbound
// frame to handler. It returns once the listener is closed.
func (t *Transport) Serve(bindAddr string, handler RequestHandler) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	t.ln = ln
	t.handler = handler

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		go t.serveConn(conn)
	}
}

func (t *Transport) Close() error {
	if t.ln == nil {
		return nil
	}
	return t.ln.Close()
}

func (t *Transport) serveConn(conn net.Conn) {
	defer conn.Close()

	req, err := readFrame(conn)
	if err != nil {
		return
	}

	resp := envelope{From: t.selfID}
	switch req.Kind {
	case kindVoteReq:
		r, err := t.handler.HandleRequestVote(req.From, req.Vote)
		if err != nil {
			return
		}
		resp.Kind, resp.VoteResp = kindVoteResp, r
	case kindAppendReq:
		r, err := t.handler.HandleAppendEntries(req.From, req.Append)
		if err != nil {
			return
		}
		resp.Kind, resp.AppendResp = kindAppendResp, r
	case kindInstallReq:
		r, err := t.handler.HandleInstallSnapshot(req.From, req.Install, req.SnapshotData)
		if err != nil {
			return
		}
		resp.Kind, resp.InstallResp = kindInstallResp, r
	default:
		return
	}

	_ = writeFrame(conn, resp)
}

func (t *Transport) roundTrip(peer uint64, req envelope) (envelope, error) {
	addr, ok := t.addrs[peer]
	if !ok {
		return envelope{}, errors.Errorf("transport: no address for node %d", peer)
	}
	conn, err := net.DialTimeout("tcp", addr, t.dialTO)
	if err != nil {
		return envelope{}, errors.Wrap(err, "dial peer")
	}
	defer conn.Close()

	if err := writeFrame(conn, req); err != nil {
		return envelope{}, err
	}
	return readFrame(conn)
}

// SendRequestVote implements (part of) raft.Callbacks via a blocking
// round trip; the caller is expected to deliver the response back into the
// engine itself (see cmd/raftd's host, which wraps this in a goroutine so
// the engine is never blocked on network I/O).
func (t *Transport) SendRequestVote(peer *raft.Node, msg *raft.RequestVote) (*raft.RequestVoteResponse, error) {
	resp, err := t.roundTrip(peer.ID(), envelope{Kind: kindVoteReq, From: t.selfID, Vote: msg})
	if err != nil {
		return nil, err
	}
	return resp.VoteResp, nil
}

func (t *Transport) SendAppendEntries(peer *raft.Node, msg *raft.AppendEntries) (*raft.AppendEntriesResponse, error) {
	resp, err := t.roundTrip(peer.ID(), envelope{Kind: kindAppendReq, From: t.selfID, Append: msg})
	if err != nil {
		return nil, err
	}
	return resp.AppendResp, nil
}

func (t *Transport) SendInstallSnapshot(peer *raft.Node, msg *raft.InstallSnapshot, payload []byte) (*raft.InstallSnapshotResponse, error) {
	resp, err := t.roundTrip(peer.ID(), envelope{Kind: kindInstallReq, From: t.selfID, Install: msg, SnapshotData: payload})
	if err != nil {
		return nil, err
	}
	return resp.InstallResp, nil
}

func writeFrame(w io.Writer, e envelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return errors.Wrap(err, "encode frame")
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "write length prefix")
	}
	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "write frame body")
}

func readFrame(r io.Reader) (envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return envelope{}, errors.Wrap(err, "read length prefix")
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, errors.Wrap(err, "read frame body")
	}
	var e envelope
	err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e)
	return e, errors.Wrap(err, "decode frame")
}
