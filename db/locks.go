package db

import "fmt"

// TryAcquireFileLock takes the advisory lock for a file path without
// blocking. Returns false when another owner already holds it.
func TryAcquireFileLock(filePath, owner string) (bool, error) {
	res, err := GetDB().Exec(`
		INSERT INTO file_locks (file_path, owner, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO NOTHING
	`, filePath, owner, NowMs())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseFileLock releases a lock held by owner. Releasing a lock that is
// not held is a no-op.
func ReleaseFileLock(filePath, owner string) error {
	_, err := GetDB().Exec(
		"DELETE FROM file_locks WHERE file_path = ? AND owner = ?",
		filePath, owner,
	)
	if err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", filePath, err)
	}
	return nil
}

// ReleaseStaleFileLocks clears locks older than the threshold, covering
// owners that crashed without releasing
func ReleaseStaleFileLocks(thresholdMs int64) (int64, error) {
	res, err := GetDB().Exec(
		"DELETE FROM file_locks WHERE acquired_at < ?",
		NowMs()-thresholdMs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale locks: %w", err)
	}
	return res.RowsAffected()
}
