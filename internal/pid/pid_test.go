package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	f := pid.New(filepath.Join(t.TempDir(), "smlmqttprocessor.pid"))

	require.NoError(t, f.Write())
	content, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(content))

	// rewriting our own PID file is fine
	require.NoError(t, f.Write())

	require.NoError(t, f.Remove())
	assert.NoFileExists(t, f.Path())
	assert.NoError(t, f.Remove(), "removing twice is not an error")
}

func TestWriteAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smlmqttprocessor.pid")
	// the parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.New(path).Write()
	require.Error(t, err)
	assert.Equal(t, errors.ErrAlreadyRunning, errors.CodeOf(err))
}

func TestWriteStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smlmqttprocessor.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid\n"), 0o600))

	require.NoError(t, pid.New(path).Write())
}
