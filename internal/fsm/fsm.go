// Package fsm implements the demo host's replicated state machine: an
// in-memory key/value store applied from committed raft.Entry payloads.
package fsm

import (
	"bytes"
	"encoding/gob"
	"sync"
)

// Op identifies the kind of mutation a Command performs.
type Op int

const (
	OpSet Op = iota
	OpDelete
)

// Command is the gob-encoded payload carried by every normal log entry this
// demo host submits.
type Command struct {
	Op    Op
	Key   string
	Value string
}

// EncodeCommand gob-encodes a Command for use as an Entry's Payload.
func EncodeCommand(c Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(payload []byte) (Command, error) {
	var c Command
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&c)
	return c, err
}

// EncodeSnapshot gob-encodes a whole table for transfer as an
// InstallSnapshot payload.
func EncodeSnapshot(table map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(payload []byte) (map[string]string, error) {
	var table map[string]string
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&table)
	return table, err
}

// FSM is a linearizable in-memory key/value store. It is mutated only from
// Apply, which the host calls from inside Callbacks.ApplyLog once an entry
// commits, and from Restore, which the host calls from inside
// Callbacks.RecvInstallSnapshot, so every mutation is already serialized by
// the engine.
type FSM struct {
	mu    sync.RWMutex
	table map[string]string
}

func New() *FSM {
	return &FSM{table: make(map[string]string)}
}

// Apply decodes and applies one committed command. A malformed payload is a
// host bug (the leader that proposed it built the payload itself), so Apply
// returns an error rather than silently ignoring it.
func (f *FSM) Apply(payload []byte) error {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch cmd.Op {
	case OpDelete:
		delete(f.table, cmd.Key)
	default:
		f.table[cmd.Key] = cmd.Value
	}
	return nil
}

// Get reads the current value for key.
func (f *FSM) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.table[key]
	return v, ok
}

// Snapshot returns a point-in-time copy of the whole table, for shipping to
// a follower as an InstallSnapshot payload.
func (f *FSM) Snapshot() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.table))
	for k, v := range f.table {
		out[k] = v
	}
	return out
}

// Restore replaces the table wholesale, for loading a received snapshot.
func (f *FSM) Restore(table map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table = table
}
