package pid

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
)

// File guards against a second instance reading the same meter.
type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Write writes the current process ID to the PID file. A file left behind
// by a process that is gone is overwritten.
func (f *File) Write() error {
	errFactory := errors.New()

	if _, err := os.Stat(f.path); err == nil {
		// PID file exists, check if the process is running
		bytes, err := os.ReadFile(f.path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err == nil && pid != os.Getpid() && running(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, pid)
		}
	}

	err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
