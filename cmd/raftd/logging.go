package main

import (
	"github.com/rs/zerolog"

	"github.com/daos-stack/raft"
)

// hostLogger adapts raft.Callbacks.Log onto zerolog, replacing the
// teacher's bracket-tagged "[INFO] ..." lines with structured fields
// carrying the same information.
type hostLogger struct {
	log zerolog.Logger
}

func newHostLogger(log zerolog.Logger) hostLogger {
	return hostLogger{log: log}
}

func (h hostLogger) Log(node *raft.Node, level raft.LogLevel, msg string) {
	var ev *zerolog.Event
	switch level {
	case raft.LogError:
		ev = h.log.Error()
	case raft.LogDebug:
		ev = h.log.Debug()
	default:
		ev = h.log.Info()
	}
	if node != nil {
		ev = ev.Uint64("peer", node.ID())
	}
	ev.Msg(msg)
}
