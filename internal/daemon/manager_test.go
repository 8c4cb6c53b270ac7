package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cierrors "github.com/codeintel/codeintel/internal/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	base := t.TempDir()
	m := NewManagerDirs(
		filepath.Join(base, "pids"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "sockets"),
	)
	m.stopGrace = 2 * time.Second
	// tests stand in a long-sleeping process for the real daemon
	m.spawn = func(name, root, socketPath, pidPath string) *exec.Cmd {
		return exec.Command("sleep", "60")
	}
	return m
}

func TestManagerStartWritesRecord(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start("T", "/repo"))
	t.Cleanup(func() { _ = m.Stop("T") })

	rec, err := m.readRecord("T")
	require.NoError(t, err)
	assert.Positive(t, rec.PID)
	assert.Equal(t, "/repo", rec.RootPath)
	assert.False(t, rec.StartedAt.IsZero())

	status := m.Status("T")
	assert.True(t, status.Running)
	assert.Equal(t, rec.PID, status.PID)
}

func TestManagerStartTwiceConflicts(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start("T", "/repo"))
	t.Cleanup(func() { _ = m.Stop("T") })

	err := m.Start("T", "/repo")
	require.Error(t, err)
	assert.Equal(t, cierrors.CategoryConflict, cierrors.GetCategory(err))
}

func TestManagerStopRemovesRecordAndSocket(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start("T", "/repo"))

	// fake socket file to confirm Stop cleans it up
	require.NoError(t, os.WriteFile(m.SocketPath("T"), nil, 0644))

	require.NoError(t, m.Stop("T"))

	_, err := os.Stat(m.recordPath("T"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(m.SocketPath("T"))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.Status("T").Running)
}

func TestManagerStopNotRunningConflicts(t *testing.T) {
	m := newTestManager(t)

	err := m.Stop("missing")
	require.Error(t, err)
	assert.Equal(t, cierrors.CategoryConflict, cierrors.GetCategory(err))
}

func TestManagerStaleRecordPrunedLazily(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.pidsDir, 0755))

	// PID 1 is init, never ours; an unsignalable PID reads as dead from an
	// unprivileged test process only on some systems, so use a PID from a
	// process we started and already reaped instead.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	require.NoError(t, m.writeRecord("stale", &ManagedRecord{
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		RootPath:  "/gone",
	}))

	assert.False(t, m.Status("stale").Running)
	_, err := os.Stat(m.recordPath("stale"))
	assert.True(t, os.IsNotExist(err), "stale record must be removed lazily")
}

func TestManagerList(t *testing.T) {
	m := newTestManager(t)

	statuses, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, statuses)

	require.NoError(t, m.Start("A", "/a"))
	require.NoError(t, m.Start("B", "/b"))
	t.Cleanup(func() { _ = m.Stop("A"); _ = m.Stop("B") })

	statuses, err = m.List()
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
}

func TestManagerLogsTail(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.logsDir, 0755))
	require.NoError(t, os.WriteFile(m.LogPath("T"), []byte("one\ntwo\nthree\n"), 0644))

	lines, err := m.Logs("T", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)

	all, err := m.Logs("T", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	missing, err := m.Logs("missing", 10)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestManagerQueryRoundTrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.socketsDir, 0755))

	// a live record pointing at this test process keeps liveRecord happy
	require.NoError(t, m.writeRecord("T", &ManagedRecord{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		RootPath:  "/repo",
	}))

	ln, err := net.Listen("unix", m.SocketPath("T"))
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if json.Unmarshal(line, &req) != nil {
			return
		}
		resp := NewSuccessResponse(req.ID, map[string]any{"pong": true, "indexName": "T"})
		payload, _ := json.Marshal(resp)
		_, _ = conn.Write(append(payload, '\n'))
	}()

	resp, err := m.Query("T", MethodPing, nil)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["pong"])
	assert.Equal(t, "T", result["indexName"])
}
