package session

import (
	"testing"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/status"
	"github.com/stretchr/testify/require"
)

type stubFrameWriter struct {
	writes int
	code   status.Code
}

func (w *stubFrameWriter) WriteFrame(frame *format.Frame) status.Code {
	w.writes++
	return w.code
}

func TestFanoutReplicatesFrameToEverySession(t *testing.T) {
	f := NewFanout()
	a, b := &stubFrameWriter{}, &stubFrameWriter{}
	f.AddSession("a", a)
	f.AddSession("b", b)

	f.Write(&format.Frame{})

	require.Equal(t, 1, a.writes)
	require.Equal(t, 1, b.writes)
	require.Equal(t, 2, f.Len())
}

func TestFanoutUnlinksSessionOnTerminalStatus(t *testing.T) {
	f := NewFanout()
	ok := &stubFrameWriter{}
	failing := &stubFrameWriter{code: status.Finish}
	f.AddSession("ok", ok)
	f.AddSession("failing", failing)

	f.Write(&format.Frame{})
	require.Equal(t, 1, f.Len())

	code, has := f.LastError("failing")
	require.True(t, has)
	require.Equal(t, status.Finish, code)

	f.Write(&format.Frame{})
	require.Equal(t, 2, ok.writes)
	require.Equal(t, 1, failing.writes, "unlinked session must not receive another frame")
}

func TestFanoutRemoveSession(t *testing.T) {
	f := NewFanout()
	w := &stubFrameWriter{}
	f.AddSession("a", w)
	f.RemoveSession("a")
	require.Equal(t, 0, f.Len())

	f.Write(&format.Frame{})
	require.Equal(t, 0, w.writes)
}

func TestFanoutAddSessionClearsPriorFailure(t *testing.T) {
	f := NewFanout()
	f.AddSession("a", &stubFrameWriter{code: status.Finish})
	f.Write(&format.Frame{})
	_, has := f.LastError("a")
	require.True(t, has)

	f.AddSession("a", &stubFrameWriter{})
	_, has = f.LastError("a")
	require.False(t, has)
}
