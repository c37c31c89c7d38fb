package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	pollInterval = 200 * time.Millisecond
	retryDelay   = 100 * time.Millisecond
)

// Lock locks target by creating a sibling .lock file recording this
// process's PID. If the lock is held by a live process, Lock waits; a lock
// left behind by a dead process is treated as stale and reclaimed.
// Returns an unlock function.
func Lock(target string) (func() error, error) {
	lockFile := target + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir for lock: %w", err)
	}

	for {
		unlock, err := tryAcquire(lockFile)
		if err != nil {
			return nil, err
		}
		if unlock != nil {
			return unlock, nil
		}

		pid, ok := readLockPID(lockFile)
		if !ok {
			// Corrupt or vanished lock file. Clear it and retry.
			os.Remove(lockFile)
			continue
		}

		if isPidAlive(pid) {
			time.Sleep(pollInterval)
			continue
		}

		// Holder is gone. Remove may race with another waiter; that's fine.
		os.Remove(lockFile)
	}
}

// tryAcquire attempts an exclusive create of the lock file. A nil unlock
// with nil error means the lock is currently held.
func tryAcquire(lockFile string) (func() error, error) {
	f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	content := fmt.Sprintf("%s %d", time.Now().Format(time.RFC3339), os.Getpid())
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(lockFile)
		return nil, fmt.Errorf("failed to write to lock file: %w", err)
	}
	f.Close()

	return func() error {
		return os.Remove(lockFile)
	}, nil
}

// readLockPID parses the PID recorded in the lock file.
func readLockPID(lockFile string) (int, bool) {
	content, err := os.ReadFile(lockFile)
	if err != nil {
		if !os.IsNotExist(err) {
			time.Sleep(retryDelay)
		}
		return 0, false
	}

	parts := strings.Split(strings.TrimSpace(string(content)), " ")
	if len(parts) < 2 {
		return 0, false
	}

	pid, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, false
	}
	return pid, true
}

func isPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence without delivering anything.
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}

	// EPERM or similar: the process exists but is not ours.
	return true
}
