package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCommandRoundTrips(t *testing.T) {
	cmd := Command{Op: OpSet, Key: "a", Value: "1"}
	payload, err := EncodeCommand(cmd)
	require.NoError(t, err)

	decoded, err := DecodeCommand(payload)
	require.NoError(t, err)
	require.Equal(t, cmd, decoded)
}

func TestApplySetAndDelete(t *testing.T) {
	f := New()

	payload, err := EncodeCommand(Command{Op: OpSet, Key: "a", Value: "1"})
	require.NoError(t, err)
	require.NoError(t, f.Apply(payload))

	v, ok := f.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	payload, err = EncodeCommand(Command{Op: OpDelete, Key: "a"})
	require.NoError(t, err)
	require.NoError(t, f.Apply(payload))

	_, ok = f.Get("a")
	require.False(t, ok)
}

func TestApplyRejectsMalformedPayload(t *testing.T) {
	f := New()
	err := f.Apply([]byte("not a gob command"))
	require.Error(t, err)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	f := New()
	payload, err := EncodeCommand(Command{Op: OpSet, Key: "a", Value: "1"})
	require.NoError(t, err)
	require.NoError(t, f.Apply(payload))

	snap := f.Snapshot()
	require.Equal(t, map[string]string{"a": "1"}, snap)

	payload, err = EncodeCommand(Command{Op: OpSet, Key: "a", Value: "2"})
	require.NoError(t, err)
	require.NoError(t, f.Apply(payload))

	require.Equal(t, "1", snap["a"])
	v, _ := f.Get("a")
	require.Equal(t, "2", v)
}

func TestRestoreReplacesTable(t *testing.T) {
	f := New()
	payload, err := EncodeCommand(Command{Op: OpSet, Key: "stale", Value: "x"})
	require.NoError(t, err)
	require.NoError(t, f.Apply(payload))

	f.Restore(map[string]string{"fresh": "y"})

	_, ok := f.Get("stale")
	require.False(t, ok)
	v, ok := f.Get("fresh")
	require.True(t, ok)
	require.Equal(t, "y", v)
}
