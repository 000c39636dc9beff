package scheduler

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildProcess_EmptyCommandIsNoop(t *testing.T) {
	c := &childProcess{}
	require.NoError(t, c.spawn(""))
	assert.Nil(t, c.cmd)
}

func TestChildProcess_SpawnTracksPID(t *testing.T) {
	c := &childProcess{}
	require.NoError(t, c.spawn("sleep 0.05"))
	require.NotNil(t, c.cmd)
	pid := c.cmd.Process.Pid
	assert.Greater(t, pid, 0)

	time.Sleep(150 * time.Millisecond)
	c.onExit(pid, 0)
	assert.Nil(t, c.cmd)
}

func TestChildProcess_SpawnKillsPreviousStillRunning(t *testing.T) {
	c := &childProcess{}
	require.NoError(t, c.spawn("sleep 5"))
	first := c.cmd

	require.NoError(t, c.spawn("sleep 0.05"))
	assert.NotEqual(t, first, c.cmd)

	state, err := first.Process.Wait()
	require.NoError(t, err)
	ws, ok := state.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, ws.Signaled())
	assert.Equal(t, syscall.SIGKILL, ws.Signal())
}
