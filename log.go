package raft

const logInitialCapacity = 10

// logHost is the small interface the log calls back into when it accepts or
// discards entries, so that cfg-change side effects can be applied (or
// reversed) as part of the same operation. The log knows nothing
// else about Server.
type logHost interface {
	offerLog(entries []Entry, startIndex uint64)
	popLog(entries []Entry, startIndex uint64)
}

// Log is an ordered, amortized-O(1)-append sequence of entries indexed from
// 1, backed by a circular buffer so that both prefix compaction (poll) and
// suffix truncation (delete) are cheap. base is the index of the last
// compacted entry; entries at index <= base are no longer addressable by
// content, only by baseTerm.
type Log struct {
	entries []Entry
	front   int
	back    int
	count   int
	size    int

	base     uint64
	baseTerm uint64

	cb   Callbacks
	host logHost
}

// NewLog constructs an empty log. setCallbacks must be called (by Server's
// constructor) before the log's append/delete/poll are used, since those
// invoke host persistence and membership hooks.
func NewLog() *Log {
	return &Log{
		entries: make([]Entry, logInitialCapacity),
		size:    logInitialCapacity,
	}
}

func (l *Log) setCallbacks(cb Callbacks, host logHost) {
	l.cb = cb
	l.host = host
}

// Count is the number of addressable entries currently held (excludes the
// compacted prefix).
func (l *Log) Count() int { return l.count }

// Base is the index of the last compacted entry (0 if nothing has been
// compacted).
func (l *Log) Base() uint64 { return l.base }

// BaseTerm is the term recorded for Base.
func (l *Log) BaseTerm() uint64 { return l.baseTerm }

// CurrentIdx is base + count: the index of the last entry in the log.
func (l *Log) CurrentIdx() uint64 { return l.base + uint64(l.count) }

func (l *Log) hasIdx(idx uint64) bool {
	return l.base < idx && idx <= l.base+uint64(l.count)
}

// subscript maps a logical 1-based index to its physical slot.
func (l *Log) subscript(idx uint64) int {
	return int((uint64(l.front) + (idx - (l.base + 1))) % uint64(l.size))
}

// batchUp returns the number of entries, starting at idx, that are
// physically contiguous in the backing array (bounded by wraparound and by
// n).
func (l *Log) batchUp(idx uint64, n int) int {
	low := l.subscript(idx)
	high := l.subscript(idx + uint64(n) - 1)
	if low <= high {
		return high - low + 1
	}
	return l.size - low
}

func (l *Log) ensureCapacity(n int) error {
	if l.count+n <= l.size {
		return nil
	}
	newSize := l.size
	for newSize < l.count+n {
		newSize *= 2
	}
	temp := make([]Entry, newSize)
	if l.front < l.back {
		copy(temp, l.entries[l.front:l.back])
	} else if l.count > 0 {
		k := copy(temp, l.entries[l.front:])
		copy(temp[k:], l.entries[:l.back])
	}
	l.entries = temp
	l.size = newSize
	l.front = 0
	l.back = l.count
	return nil
}

// Append writes entries at indices CurrentIdx()+1 .. CurrentIdx()+len(entries),
// processing them in contiguous runs bounded by wraparound. For each run it
// invokes Callbacks.LogOffer; the host may accept fewer than offered, in
// which case the log commits exactly the accepted count and, on error,
// returns the partial accepted count alongside the error.
func (l *Log) Append(entries []Entry) (int, error) {
	n := len(entries)
	if n == 0 {
		return 0, nil
	}
	if err := l.ensureCapacity(n); err != nil {
		return 0, ErrNoMem
	}

	accepted := 0
	for accepted < n {
		idx := l.base + uint64(l.count) + 1
		k := l.batchUp(idx, n-accepted)

		dst := l.subscript(idx)
		copy(l.entries[dst:dst+k], entries[accepted:accepted+k])
		for j := 0; j < k; j++ {
			l.entries[dst+j].Index = idx + uint64(j)
		}

		got := k
		var err error
		if l.cb != nil {
			got, err = l.cb.LogOffer(l.entries[dst:dst+k], idx)
			if got < 0 || got > k {
				got = k
			}
		}

		if got > 0 {
			l.count += got
			l.back = (l.back + got) % l.size
			accepted += got
			if l.host != nil {
				l.host.offerLog(l.entries[dst:dst+got], idx)
			}
		}
		if err != nil {
			return accepted, err
		}
		if got != k {
			// Partial acceptance with no error still stops the
			// batch: the host declined the remainder of this run.
			return accepted, nil
		}
	}
	return accepted, nil
}

// GetAt returns a copy of the entry at idx, or ok=false if idx is not
// currently addressable by content.
func (l *Log) GetAt(idx uint64) (Entry, bool) {
	if !l.hasIdx(idx) {
		return Entry{}, false
	}
	return l.entries[l.subscript(idx)], true
}

// SliceFrom returns a contiguous copy of every entry from idx through the
// end of the log. Returns nil if idx is not addressable.
func (l *Log) SliceFrom(idx uint64) []Entry {
	if !l.hasIdx(idx) {
		return nil
	}
	n := int(l.CurrentIdx()-idx) + 1
	out := make([]Entry, 0, n)
	for remaining := n; remaining > 0; {
		k := l.batchUp(idx, remaining)
		start := l.subscript(idx)
		out = append(out, l.entries[start:start+k]...)
		idx += uint64(k)
		remaining -= k
	}
	return out
}

// PeekTail returns the most recently appended entry, or ok=false if the log
// is empty.
func (l *Log) PeekTail() (Entry, bool) {
	if l.count == 0 {
		return Entry{}, false
	}
	if l.back == 0 {
		return l.entries[l.size-1], true
	}
	return l.entries[l.back-1], true
}

// DeleteFrom removes every entry with index >= idx, from the tail inward,
// one entry at a time, invoking Callbacks.LogPop and then logHost.popLog for
// each so cfg-change side effects can be reversed in reverse order.
// Fails with ErrIndexOutOfRange if idx is not in (base, base+count].
func (l *Log) DeleteFrom(idx uint64) error {
	if !l.hasIdx(idx) {
		return ErrIndexOutOfRange
	}
	for idx <= l.base+uint64(l.count) && l.count > 0 {
		top := l.base + uint64(l.count)
		back := (l.back - 1 + l.size) % l.size
		single := l.entries[back : back+1]

		if l.cb != nil {
			if err := l.cb.LogPop(single, top); err != nil {
				return err
			}
		}
		if l.host != nil {
			l.host.popLog(single, top)
		}

		l.back = back
		l.count--
	}
	return nil
}

// PollTo advances base up to idx, invoking Callbacks.LogPoll per contiguous
// run. Used only by snapshot end; must never be called with an idx beyond
// last_applied_idx. Fails with ErrIndexOutOfRange if idx is not addressable.
func (l *Log) PollTo(idx uint64) error {
	if l.count == 0 || !l.hasIdx(idx) {
		return ErrIndexOutOfRange
	}
	for l.base+1 <= idx {
		n := l.batchUp(l.base+1, int(idx-(l.base+1))+1)
		start := l.front
		run := l.entries[start : start+n]
		if l.cb != nil {
			if err := l.cb.LogPoll(run, l.base+1); err != nil {
				return err
			}
		}
		l.baseTerm = run[n-1].Term
		l.front = (l.front + n) % l.size
		l.count -= n
		l.base += uint64(n)
	}
	return nil
}

// Clear resets the log to empty, preserving neither base nor entries. Used
// only as part of LoadFromSnapshot.
func (l *Log) Clear() {
	l.count = 0
	l.front = 0
	l.back = 0
	l.base = 0
	l.baseTerm = 0
}

// LoadFromSnapshot replaces the log's contents with a single SNAPSHOT
// sentinel at idx, after which CurrentIdx() == idx and Count() == 1.
func (l *Log) LoadFromSnapshot(idx, term uint64) error {
	l.Clear()
	l.base = idx - 1
	l.baseTerm = term
	sentinel := Entry{ID: 1, Term: term, Type: EntrySnapshot}
	if _, err := l.Append([]Entry{sentinel}); err != nil {
		return err
	}
	return nil
}
