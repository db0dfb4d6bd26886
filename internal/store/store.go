// Package store persists a node's current term, vote and replicated log to
// a bbolt database, implementing the raft.Callbacks persistence hooks.
package store

import (
	"encoding/binary"
	"encoding/gob"
	"bytes"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/daos-stack/raft"
)

var (
	bucketMeta = []byte("meta")
	bucketLog  = []byte("log")

	keyTerm = []byte("current_term")
	keyVote = []byte("voted_for")
)

// Store is a bbolt-backed implementation of the Callbacks persistence
// surface (PersistTerm, PersistVote, LogOffer, LogPop, LogPoll). It is safe
// for the single-threaded access pattern the engine already assumes: the
// host never calls two Callbacks methods concurrently on the same Server.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and ensures
// its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open bbolt store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadTerm returns the persisted current term, or 0 if none was ever
// written.
func (s *Store) LoadTerm() (uint64, error) {
	var term uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyTerm)
		if v != nil {
			term = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return term, errors.Wrap(err, "load term")
}

// LoadVote returns the persisted voted-for node id, and whether a vote was
// ever recorded.
func (s *Store) LoadVote() (id uint64, voted bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyVote)
		if v != nil {
			id = binary.BigEndian.Uint64(v)
			voted = true
		}
		return nil
	})
	return id, voted, errors.Wrap(err, "load vote")
}

// LoadEntries returns every persisted log entry, in index order, for replay
// into a freshly constructed Server at startup.
func (s *Store) LoadEntries() ([]raft.Entry, error) {
	var entries []raft.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e raft.Entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, errors.Wrap(err, "load entries")
}

// PersistTerm implements raft.Callbacks.
func (s *Store) PersistTerm(term uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, term)
	return errors.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTerm, buf)
	}), "persist term")
}

// PersistVote implements raft.Callbacks.
func (s *Store) PersistVote(nodeID uint64, hasVote bool) error {
	return errors.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if !hasVote {
			return b.Delete(keyVote)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, nodeID)
		return b.Put(keyVote, buf)
	}), "persist vote")
}

// LogOffer implements raft.Callbacks: every entry in the run is written in
// one transaction, keyed by its big-endian index so cursor order matches
// log order.
func (s *Store) LogOffer(entries []raft.Entry, startIndex uint64) (int, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		for i, e := range entries {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(e); err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, startIndex+uint64(i))
			if err := b.Put(key, buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "offer log entries")
	}
	return len(entries), nil
}

// LogPop implements raft.Callbacks: removes a truncated tail run.
func (s *Store) LogPop(entries []raft.Entry, startIndex uint64) error {
	return s.deleteRun(entries, startIndex)
}

// LogPoll implements raft.Callbacks: removes a compacted prefix run.
func (s *Store) LogPoll(entries []raft.Entry, startIndex uint64) error {
	return s.deleteRun(entries, startIndex)
}

func (s *Store) deleteRun(entries []raft.Entry, startIndex uint64) error {
	return errors.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		for i := range entries {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, startIndex+uint64(i))
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}), "delete log run")
}
