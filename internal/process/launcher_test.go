// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package process

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/procgroup"
)

func waitExit(t *testing.T, h encoding.ProcessHandle) encoding.ExitStatus {
	t.Helper()
	select {
	case st, ok := <-h.Exited():
		require.True(t, ok, "exit channel closed without a status")
		return st
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return encoding.ExitStatus{}
	}
}

func spec(t *testing.T, script string) encoding.Spec {
	dir := filepath.Join(t.TempDir(), "out")
	return encoding.Spec{
		SessionID: "sess-1",
		StreamID:  "stream-1",
		Path:      "sh",
		Args:      []string{"-c", script},
		OutputDir: dir,
		LogPath:   filepath.Join(dir, "encoding_sess-1.log"),
	}
}

func TestLaunch_CapturesOutputProgressAndExitCode(t *testing.T) {
	s := spec(t, `echo "Input #0, mpegts" >&2; printf 'total_size=1024\nout_time_us=2000000\nprogress=continue\ntotal_size=4096\nout_time_us=4000000\nprogress=end\n'; exit 3`)
	s.Duration = 8 * time.Second

	var (
		mu      sync.Mutex
		reports []encoding.Progress
	)
	s.OnProgress = func(p encoding.Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	}

	h, err := New().Launch(context.Background(), s)
	require.NoError(t, err)
	assert.Positive(t, h.PID())

	st := waitExit(t, h)
	assert.Equal(t, 3, st.Code)
	assert.Empty(t, st.Signal)
	assert.NoError(t, st.Err)
	assert.False(t, st.Success())

	_, open := <-h.Exited()
	assert.False(t, open, "exit channel should be closed after delivery")

	mu.Lock()
	require.Len(t, reports, 2)
	assert.Equal(t, int64(4096), reports[1].OutputBytes)
	assert.InDelta(t, 50.0, reports[1].Percent, 0.01)
	mu.Unlock()

	logData, err := os.ReadFile(s.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Input #0, mpegts")
	assert.Contains(t, string(logData), "total_size=4096")

	metaData, err := os.ReadFile(MetadataPath(s.OutputDir, s.SessionID))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, h.PID(), meta.PID)
	assert.Equal(t, "sh", meta.Command[0])
	assert.Equal(t, s.LogPath, meta.LogPath)
}

func TestLaunch_CleanExit(t *testing.T) {
	h, err := New().Launch(context.Background(), spec(t, "exit 0"))
	require.NoError(t, err)
	assert.True(t, waitExit(t, h).Success())
}

func TestLaunch_TerminateReportsSignal(t *testing.T) {
	h, err := New().Launch(context.Background(), spec(t, "sleep 30"))
	require.NoError(t, err)

	require.NoError(t, h.Signal(encoding.SignalTerminate))
	st := waitExit(t, h)
	assert.Equal(t, "SIGTERM", st.Signal)
	assert.Equal(t, -1, st.Code)
}

func TestLaunch_IgnoresSIGPIPE(t *testing.T) {
	h, err := New().Launch(context.Background(), spec(t, "kill -PIPE $$; exit 7"))
	require.NoError(t, err)
	st := waitExit(t, h)
	assert.Equal(t, 7, st.Code, "the process survives a broken pipe")
	assert.Empty(t, st.Signal)
}

func TestLaunch_SpawnFailure(t *testing.T) {
	s := spec(t, "")
	s.Path = filepath.Join(t.TempDir(), "no-such-ffmpeg")
	_, err := New().Launch(context.Background(), s)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, statErr := os.Stat(s.LogPath)
	assert.True(t, os.IsNotExist(statErr), "no log file for a binary that never ran")
}

func TestLaunch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Launch(ctx, spec(t, "exit 0"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAttach_DetectsExit(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	reaped := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(reaped)
	}()

	l := New(WithPollInterval(20 * time.Millisecond))
	h, ok := l.Attach(cmd.Process.Pid)
	require.True(t, ok)
	assert.Equal(t, cmd.Process.Pid, h.PID())

	require.NoError(t, h.Signal(encoding.SignalKill))
	<-reaped
	st := waitExit(t, h)
	assert.Equal(t, -1, st.Code)
	assert.True(t, st.Unknown)
	assert.Equal(t, "SIGKILL", st.Signal)
}

func startGroupLeader(t *testing.T) (*exec.Cmd, chan struct{}) {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	procgroup.Set(cmd)
	require.NoError(t, cmd.Start())
	reaped := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(reaped)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-reaped
	})
	return cmd, reaped
}

func TestAttach_TerminateIsReportedOnExit(t *testing.T) {
	cmd, reaped := startGroupLeader(t)

	h, ok := New(WithPollInterval(20 * time.Millisecond)).Attach(cmd.Process.Pid)
	require.True(t, ok)
	require.NoError(t, h.Signal(encoding.SignalTerminate))
	<-reaped

	st := waitExit(t, h)
	assert.Equal(t, encoding.ExitStatus{Code: -1, Signal: "SIGTERM", Unknown: true}, st)
}

func TestAttach_ExitWithoutSignalIsUnknown(t *testing.T) {
	cmd, reaped := startGroupLeader(t)

	h, ok := New(WithPollInterval(20 * time.Millisecond)).Attach(cmd.Process.Pid)
	require.True(t, ok)
	require.NoError(t, cmd.Process.Kill())
	<-reaped

	st := waitExit(t, h)
	assert.True(t, st.Unknown)
	assert.Empty(t, st.Signal)
	assert.False(t, st.Success())
}

func TestAttach_ReleaseStopsPolling(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	cmd, reaped := startGroupLeader(t)

	h, ok := New(WithPollInterval(10 * time.Millisecond)).Attach(cmd.Process.Pid)
	require.True(t, ok)
	r, ok := h.(interface{ Release() })
	require.True(t, ok)
	r.Release()
	r.Release()

	require.NoError(t, cmd.Process.Kill())
	<-reaped
	select {
	case st := <-h.Exited():
		t.Fatalf("released handle reported exit %+v", st)
	case <-time.After(50 * time.Millisecond):
	}
	goleak.VerifyNone(t, ignore)
}

func TestAttach_MissingProcess(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())

	_, ok := New().Attach(cmd.Process.Pid)
	assert.False(t, ok)
}
