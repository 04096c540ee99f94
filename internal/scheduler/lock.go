package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotLeader means another live process already holds the scheduler lock.
var ErrNotLeader = errors.New("scheduler: another process holds the lock")

// pidLock is an exclusive file lock keyed to the owning process id. A lock
// whose owner is no longer alive is reclaimed.
type pidLock struct {
	path string
	held bool
}

func newPIDLock(path string) *pidLock {
	return &pidLock{path: path}
}

// Acquire takes the lock or returns ErrNotLeader.
func (l *pidLock) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("scheduler: write lock file: %w", errors.Join(werr, cerr))
			}
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("scheduler: create lock file: %w", err)
		}

		pid, rerr := l.readOwner()
		if rerr == nil && processAlive(pid) {
			return ErrNotLeader
		}
		// Stale lock: the recorded owner is gone, reclaim and retry once.
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("scheduler: reclaim stale lock: %w", rmErr)
		}
	}
	return ErrNotLeader
}

// Release drops the lock if this process holds it.
func (l *pidLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scheduler: release lock: %w", err)
	}
	return nil
}

func (l *pidLock) readOwner() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive probes the pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
