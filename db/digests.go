package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const digestColumns = `id, file_path, digester, status, content, sqlar_name,
	error, attempts, created_at, updated_at`

func scanDigest(scanner interface {
	Scan(dest ...interface{}) error
}) (*Digest, error) {
	var d Digest
	var content, sqlarName, errMsg sql.NullString

	err := scanner.Scan(
		&d.ID, &d.FilePath, &d.Digester, &d.Status,
		&content, &sqlarName, &errMsg,
		&d.Attempts, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan digest: %w", err)
	}

	d.Content = StringPtr(content)
	d.SqlarName = StringPtr(sqlarName)
	d.Error = StringPtr(errMsg)
	return &d, nil
}

// GetDigest retrieves a digest row for a file and digester output name
func GetDigest(filePath, digester string) (*Digest, error) {
	row := GetDB().QueryRow(
		"SELECT "+digestColumns+" FROM digests WHERE file_path = ? AND digester = ?",
		filePath, digester,
	)
	return scanDigest(row)
}

// GetDigestByID retrieves a digest row by id
func GetDigestByID(id string) (*Digest, error) {
	row := GetDB().QueryRow(
		"SELECT "+digestColumns+" FROM digests WHERE id = ?",
		id,
	)
	return scanDigest(row)
}

// ListDigestsForFile returns all digest rows for a file
func ListDigestsForFile(filePath string) ([]*Digest, error) {
	rows, err := GetDB().Query(
		"SELECT "+digestColumns+" FROM digests WHERE file_path = ? ORDER BY digester",
		filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests for %s: %w", filePath, err)
	}
	defer rows.Close()

	var digests []*Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// CreateDigestIfMissing inserts a todo placeholder row unless one already
// exists for the (file, digester) pair. Returns true when a row was created.
func CreateDigestIfMissing(filePath, digester string) (bool, error) {
	now := NowMs()
	res, err := GetDB().Exec(`
		INSERT INTO digests (id, file_path, digester, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(file_path, digester) DO NOTHING
	`, uuid.NewString(), filePath, digester, DigestStatusTodo, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to create digest row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DigestPatch carries the fields UpdateDigest should change. Nil pointer
// fields are left untouched; Clear* flags null a column out.
type DigestPatch struct {
	Status       *string
	Content      *string
	ClearContent bool
	SqlarName    *string
	ClearSqlar   bool
	Error        *string
	ClearError   bool
	Attempts     *int
}

// UpdateDigest applies a patch to a digest row and bumps updated_at
func UpdateDigest(filePath, digester string, patch DigestPatch) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{NowMs()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	} else if patch.ClearContent {
		sets = append(sets, "content = NULL")
	}
	if patch.SqlarName != nil {
		sets = append(sets, "sqlar_name = ?")
		args = append(args, *patch.SqlarName)
	} else if patch.ClearSqlar {
		sets = append(sets, "sqlar_name = NULL")
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	} else if patch.ClearError {
		sets = append(sets, "error = NULL")
	}
	if patch.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *patch.Attempts)
	}

	args = append(args, filePath, digester)
	_, err := GetDB().Exec(
		"UPDATE digests SET "+strings.Join(sets, ", ")+" WHERE file_path = ? AND digester = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update digest %s/%s: %w", filePath, digester, err)
	}
	return nil
}

// DeleteDigestsForFile removes all digest rows for a file
func DeleteDigestsForFile(filePath string) error {
	_, err := GetDB().Exec("DELETE FROM digests WHERE file_path = ?", filePath)
	if err != nil {
		return fmt.Errorf("failed to delete digests for %s: %w", filePath, err)
	}
	return nil
}

// DemoteOrphanDigests flips non-terminal rows (todo or failed) whose
// digester name is no longer registered to skipped so they stop counting
// as pending work. Completed rows keep their content. Returns the number
// of rows changed.
func DemoteOrphanDigests(filePath string, knownNames []string) (int64, error) {
	if len(knownNames) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(knownNames))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{DigestStatusSkipped, "Digester no longer registered", NowMs(), filePath}
	for _, n := range knownNames {
		args = append(args, n)
	}
	args = append(args, DigestStatusTodo, DigestStatusFailed)

	res, err := GetDB().Exec(`
		UPDATE digests SET status = ?, error = ?, attempts = 0, updated_at = ?
		WHERE file_path = ? AND digester NOT IN (`+placeholders+`) AND status IN (?, ?)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to demote orphan digests: %w", err)
	}
	return res.RowsAffected()
}

// ResetStaleInProgress flips in-progress rows older than the threshold back
// to todo so a crashed run does not wedge them forever. Any error from an
// earlier attempt is cleared; todo rows carry none. Returns the number of
// rows reset.
func ResetStaleInProgress(thresholdMs int64) (int64, error) {
	cutoff := NowMs() - thresholdMs
	res, err := GetDB().Exec(`
		UPDATE digests SET status = ?, error = NULL, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`, DigestStatusTodo, NowMs(), DigestStatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale digests: %w", err)
	}
	return res.RowsAffected()
}

// FilesNeedingDigest returns file paths that still have actionable digest
// work, oldest activity first. A file qualifies when any registered output
// is missing a row, or has a todo/failed row with attempts below the cap.
func FilesNeedingDigest(limit int, registryOutputs []string, excludedPrefixes []string, maxAttempts int) ([]string, error) {
	if len(registryOutputs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(registryOutputs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT f.path
		FROM files f
		LEFT JOIN digests d ON d.file_path = f.path AND d.digester IN (` + placeholders + `)
		WHERE f.is_folder = 0
	`
	args := []interface{}{}
	for _, n := range registryOutputs {
		args = append(args, n)
	}

	for _, prefix := range excludedPrefixes {
		query += " AND f.path NOT LIKE ?"
		args = append(args, prefix+"%")
	}

	// A file qualifies when some outputs have no row yet, or an existing
	// row is still actionable
	query += `
		GROUP BY f.path
		HAVING COUNT(d.id) < ?
		    OR SUM(CASE WHEN d.status IN (?, ?) AND d.attempts < ? THEN 1 ELSE 0 END) > 0
		ORDER BY COALESCE(f.last_scanned_at, f.created_at) ASC
		LIMIT ?
	`
	args = append(args, len(registryOutputs), DigestStatusTodo, DigestStatusFailed, maxAttempts, limit)

	rows, err := GetDB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files needing digest: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DigestStats summarizes digest rows by status
type DigestStats struct {
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// GetDigestStats returns counts of digest rows by status
func GetDigestStats() (*DigestStats, error) {
	rows, err := GetDB().Query("SELECT status, COUNT(*) FROM digests GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query digest stats: %w", err)
	}
	defer rows.Close()

	stats := &DigestStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case DigestStatusTodo:
			stats.Todo = count
		case DigestStatusInProgress:
			stats.InProgress = count
		case DigestStatusCompleted:
			stats.Completed = count
		case DigestStatusFailed:
			stats.Failed = count
		case DigestStatusSkipped:
			stats.Skipped = count
		}
	}
	return stats, rows.Err()
}
