package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendAssignsSequentialIndices(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})

	n, err := l.Append([]Entry{{ID: 1, Term: 1}, {ID: 2, Term: 1}, {ID: 3, Term: 1}})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.EqualValues(t, 3, l.CurrentIdx())
	require.Equal(t, 3, l.Count())

	e, ok := l.GetAt(2)
	require.True(t, ok)
	require.EqualValues(t, 2, e.ID)
}

func TestLogAppendGrowsCapacity(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})

	entries := make([]Entry, 25)
	for i := range entries {
		entries[i] = Entry{ID: uint64(i + 1), Term: 1}
	}
	n, err := l.Append(entries)
	require.NoError(t, err)
	require.Equal(t, 25, n)
	require.EqualValues(t, 25, l.CurrentIdx())

	for i := 1; i <= 25; i++ {
		e, ok := l.GetAt(uint64(i))
		require.True(t, ok)
		require.EqualValues(t, i, e.ID)
	}
}

func TestLogDeleteFromTruncatesTail(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})
	_, err := l.Append([]Entry{{ID: 1, Term: 1}, {ID: 2, Term: 1}, {ID: 3, Term: 1}})
	require.NoError(t, err)

	require.NoError(t, l.DeleteFrom(2))
	require.EqualValues(t, 1, l.CurrentIdx())
	require.Equal(t, 1, l.Count())

	_, ok := l.GetAt(2)
	require.False(t, ok)
}

func TestLogDeleteFromOutOfRange(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})
	_, err := l.Append([]Entry{{ID: 1, Term: 1}})
	require.NoError(t, err)

	require.ErrorIs(t, l.DeleteFrom(5), ErrIndexOutOfRange)
}

func TestLogPollToCompactsPrefix(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})
	_, err := l.Append([]Entry{{ID: 1, Term: 1}, {ID: 2, Term: 2}, {ID: 3, Term: 2}})
	require.NoError(t, err)

	require.NoError(t, l.PollTo(2))
	require.EqualValues(t, 2, l.Base())
	require.EqualValues(t, 2, l.BaseTerm())
	require.Equal(t, 1, l.Count())

	_, ok := l.GetAt(1)
	require.False(t, ok)
	e, ok := l.GetAt(3)
	require.True(t, ok)
	require.EqualValues(t, 3, e.ID)
}

func TestLogWrapsAroundCircularBuffer(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})

	_, err := l.Append([]Entry{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}})
	require.NoError(t, err)
	require.NoError(t, l.PollTo(3))
	_, err = l.Append([]Entry{{ID: 6}, {ID: 7}, {ID: 8}, {ID: 9}, {ID: 10}, {ID: 11}, {ID: 12}, {ID: 13}})
	require.NoError(t, err)

	for i, want := range []uint64{4, 5, 6, 7, 8, 9, 10, 11, 12, 13} {
		e, ok := l.GetAt(uint64(i) + 4)
		require.True(t, ok)
		require.Equal(t, want, e.ID)
	}
}

func TestLogLoadFromSnapshot(t *testing.T) {
	l := NewLog()
	l.setCallbacks(newFakeCallbacks(), noopLogHost{})
	_, err := l.Append([]Entry{{ID: 1}, {ID: 2}})
	require.NoError(t, err)

	require.NoError(t, l.LoadFromSnapshot(10, 3))
	require.EqualValues(t, 10, l.CurrentIdx())
	require.EqualValues(t, 9, l.Base())
	require.EqualValues(t, 3, l.BaseTerm())
	require.Equal(t, 1, l.Count())
}

func TestLogAppendPartialAcceptance(t *testing.T) {
	l := NewLog()
	cb := newFakeCallbacks()
	calls := 0
	host := noopLogHost{}
	l.setCallbacks(partialOfferCallbacks{fakeCallbacks: cb, accept: 1, calls: &calls}, host)

	n, err := l.Append([]Entry{{ID: 1}, {ID: 2}, {ID: 3}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.EqualValues(t, 1, l.CurrentIdx())
}

type noopLogHost struct{}

func (noopLogHost) offerLog(entries []Entry, startIndex uint64) {}
func (noopLogHost) popLog(entries []Entry, startIndex uint64)   {}

type partialOfferCallbacks struct {
	*fakeCallbacks
	accept int
	calls  *int
}

func (p partialOfferCallbacks) LogOffer(entries []Entry, startIndex uint64) (int, error) {
	*p.calls++
	if len(entries) > p.accept {
		return p.accept, nil
	}
	return len(entries), nil
}
