// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lock implements the engine's swm.lock byte-range advisory
// locking: one shared file, one exclusive byte-range per integer key, so
// concurrent cranks of distinct trackers never block each other while a
// crank of the same tracker — or a status-file mutation, key 1 — is
// always serialized.
package lock

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// StatusKey is the byte-range key reserved for status-file mutations.
// Every other key is a tracker id.
const StatusKey = 1

// Manager owns the single swm.lock file descriptor that every byte-range
// lock in the process is taken against. A process needs exactly one
// Manager; Acquire is safe for concurrent use by multiple goroutines
// cranking distinct trackers.
type Manager struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (creating if necessary) the lock file at path. The file is
// never truncated and is never removed by the engine.
func Open(path string) (*Manager, error) {
	if err := verifyDirectorySafety(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &Manager{path: path, file: f}, nil
}

// Close releases the underlying file descriptor. Any held locks are
// released by the kernel when the descriptor closes.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// Lock is a held byte-range lock; Release must be called exactly once.
type Lock struct {
	mgr *Manager
	key int
}

// Acquire blocks, without timeout, until the exclusive byte-range lock at
// offset=key is obtained. Per §4.1/§5, acquisition never times out and
// the caller must hold the lock for the entire crank (or the entire
// status-file mutation, for key StatusKey).
//
// ctx is honored only for cancellation while waiting; once acquired the
// lock is independent of ctx's lifetime.
func (m *Manager) Acquire(ctx context.Context, key int) (*Lock, error) {
	if key < 0 {
		return nil, fmt.Errorf("lock: negative key %d", key)
	}

	done := make(chan error, 1)
	go func() {
		lk := unix.Flock_t{
			Type:   unix.F_WRLCK,
			Whence: int16(0), // SEEK_SET
			Start:  int64(key),
			Len:    1,
		}
		done <- unix.FcntlFlock(m.file.Fd(), unix.F_SETLKW, &lk)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("acquire lock key %d: %w", key, err)
		}
		return &Lock{mgr: m, key: key}, nil
	case <-ctx.Done():
		// The kernel-side F_SETLKW call is still blocked; it will
		// complete in the background and the lock it takes is released
		// immediately, since no caller holds a *Lock for it. Only the
		// wait is cancellable, not the syscall itself.
		go func() {
			if err := <-done; err == nil {
				_ = (&Lock{mgr: m, key: key}).Release()
			}
		}()
		return nil, ctx.Err()
	}
}

// Release drops the byte-range lock.
func (l *Lock) Release() error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(0),
		Start:  int64(l.key),
		Len:    1,
	}
	return unix.FcntlFlock(l.mgr.file.Fd(), unix.F_SETLK, &lk)
}

// verifyDirectorySafety rejects a lock path inside a world-writable
// directory, the same guard the engine's predecessor applied to its
// PID file before creating it.
func verifyDirectorySafety(path string) error {
	dir := parentDir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o700)
		}
		return fmt.Errorf("stat lock directory: %w", err)
	}
	if info.Mode()&0o002 != 0 {
		return fmt.Errorf("lock directory %s is world-writable", dir)
	}
	return nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "."
	}
	return path[:i]
}
