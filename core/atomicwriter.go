package core

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLock represents a lock file guarding one output path
type FileLock struct {
	file   *os.File
	path   string
	locked bool
	mu     sync.Mutex
}

// AtomicWriteConfig controls atomic writing behavior
type AtomicWriteConfig struct {
	UseFsync       bool          // Force fsync for durability
	LockTimeout    time.Duration // Max time to wait for file lock
	TempSuffix     string        // Suffix for temporary files
	BackupOriginal bool          // Keep a timestamped copy of the file being replaced
}

// DefaultAtomicConfig provides the defaults used for generated outputs
func DefaultAtomicConfig() AtomicWriteConfig {
	return AtomicWriteConfig{
		UseFsync:       false,
		LockTimeout:    5 * time.Second,
		TempSuffix:     ".covmatrix.tmp",
		BackupOriginal: false,
	}
}

// AtomicWriter replaces files via temp file and rename, holding a lock file meanwhile
type AtomicWriter struct {
	config AtomicWriteConfig
	locks  map[string]*FileLock
	mu     sync.RWMutex
}

// NewAtomicWriter creates a new atomic writer
func NewAtomicWriter(config AtomicWriteConfig) *AtomicWriter {
	return &AtomicWriter{
		config: config,
		locks:  make(map[string]*FileLock),
	}
}

// WriteFile atomically writes content to path. When BackupOriginal is set and
// path already exists, the returned string is the backup location.
func (aw *AtomicWriter) WriteFile(path, content string) (string, error) {
	if err := aw.acquireLock(path); err != nil {
		return "", fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer aw.releaseLock(path)

	originalInfo, err := os.Stat(path)
	var fileMode os.FileMode = 0o644
	if err == nil {
		fileMode = originalInfo.Mode()
	}

	var backupPath string
	if aw.config.BackupOriginal && err == nil {
		backupPath, err = aw.createBackup(path)
		if err != nil {
			return "", fmt.Errorf("failed to create backup: %w", err)
		}
	}

	tempPath := path + aw.config.TempSuffix
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return backupPath, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return backupPath, fmt.Errorf("failed to write content: %w", err)
	}

	if aw.config.UseFsync {
		if err := tempFile.Sync(); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			return backupPath, fmt.Errorf("failed to sync: %w", err)
		}
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return backupPath, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return backupPath, fmt.Errorf("failed to atomic rename: %w", err)
	}

	return backupPath, nil
}

// acquireLock gets an exclusive file lock
func (aw *AtomicWriter) acquireLock(path string) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if _, exists := aw.locks[path]; exists {
		return nil // Already locked
	}

	lockPath := path + ".lock"

	deadline := time.Now().Add(aw.config.LockTimeout)
	for time.Now().Before(deadline) {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			aw.locks[path] = &FileLock{
				file:   lockFile,
				path:   lockPath,
				locked: true,
			}

			// PID lets a later run detect a stale lock
			fmt.Fprintf(lockFile, "%d\n", os.Getpid())
			lockFile.Sync()

			return nil
		}

		if os.IsExist(err) {
			if aw.isLockStale(lockPath) {
				os.Remove(lockPath)
				continue
			}

			time.Sleep(100 * time.Millisecond)
			continue
		}

		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return fmt.Errorf("timeout waiting for lock on %s", path)
}

// releaseLock releases the file lock
func (aw *AtomicWriter) releaseLock(path string) {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	aw.releaseLocked(path)
}

func (aw *AtomicWriter) releaseLocked(path string) {
	lock, exists := aw.locks[path]
	if !exists {
		return
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()

	if lock.locked {
		lock.file.Close()
		os.Remove(lock.path)
		lock.locked = false
	}

	delete(aw.locks, path)
}

// isLockStale checks if a lock file is from a dead process
func (aw *AtomicWriter) isLockStale(lockPath string) bool {
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return true
	}

	var pid int
	if _, err := fmt.Sscanf(string(content), "%d", &pid); err != nil {
		return true
	}

	return !isProcessAlive(pid)
}

// createBackup copies originalPath to <originalPath>.bak.<timestamp>
func (aw *AtomicWriter) createBackup(originalPath string) (string, error) {
	content, err := os.ReadFile(originalPath)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s.bak.%s", originalPath, timestamp)

	return backupPath, os.WriteFile(backupPath, content, 0o644)
}

// Cleanup removes all locks (call on shutdown)
func (aw *AtomicWriter) Cleanup() {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	for path := range aw.locks {
		aw.releaseLocked(path)
	}
}
