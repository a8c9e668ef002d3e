package db

import (
	"database/sql"
	"fmt"
)

// GetFileByPath retrieves a file record by its path
func GetFileByPath(path string) (*FileRecord, error) {
	row := GetDB().QueryRow(`
		SELECT path, name, is_folder, size, mime_type, hash,
		       modified_at, created_at, last_scanned_at, text_preview, screenshot_sqlar
		FROM files WHERE path = ?
	`, path)

	return scanFileRecord(row)
}

func scanFileRecord(row *sql.Row) (*FileRecord, error) {
	var f FileRecord
	var isFolder int
	var size, lastScannedAt sql.NullInt64
	var mimeType, hash, textPreview, screenshotSqlar sql.NullString

	err := row.Scan(
		&f.Path, &f.Name, &isFolder, &size, &mimeType, &hash,
		&f.ModifiedAt, &f.CreatedAt, &lastScannedAt, &textPreview, &screenshotSqlar,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file record: %w", err)
	}

	f.IsFolder = isFolder != 0
	f.Size = IntPtr(size)
	f.MimeType = StringPtr(mimeType)
	f.Hash = StringPtr(hash)
	f.LastScannedAt = IntPtr(lastScannedAt)
	f.TextPreview = StringPtr(textPreview)
	f.ScreenshotSqlar = StringPtr(screenshotSqlar)
	return &f, nil
}

// UpsertFile inserts or updates a file record keyed by path
func UpsertFile(f *FileRecord) error {
	isFolder := 0
	if f.IsFolder {
		isFolder = 1
	}

	_, err := GetDB().Exec(`
		INSERT INTO files (path, name, is_folder, size, mime_type, hash,
		                   modified_at, created_at, last_scanned_at, text_preview, screenshot_sqlar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			is_folder = excluded.is_folder,
			size = excluded.size,
			mime_type = excluded.mime_type,
			hash = excluded.hash,
			modified_at = excluded.modified_at
	`,
		f.Path, f.Name, isFolder,
		nullInt64(f.Size), NullString(f.MimeType), NullString(f.Hash),
		f.ModifiedAt, f.CreatedAt,
		nullInt64(f.LastScannedAt), NullString(f.TextPreview), NullString(f.ScreenshotSqlar),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", f.Path, err)
	}
	return nil
}

// fileUpdateColumns whitelists the columns UpdateFileField may touch
var fileUpdateColumns = map[string]bool{
	"size":             true,
	"mime_type":        true,
	"hash":             true,
	"modified_at":      true,
	"last_scanned_at":  true,
	"text_preview":     true,
	"screenshot_sqlar": true,
}

// UpdateFileField sets a single column on a file row
func UpdateFileField(path, column string, value interface{}) error {
	if !fileUpdateColumns[column] {
		return fmt.Errorf("column %q is not updatable", column)
	}

	_, err := GetDB().Exec(
		fmt.Sprintf("UPDATE files SET %s = ? WHERE path = ?", column),
		value, path,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", column, path, err)
	}
	return nil
}

// TouchFileScanned records that a file's digests were just worked on
func TouchFileScanned(path string) error {
	return UpdateFileField(path, "last_scanned_at", NowMs())
}

// MoveFile renames a file row and every row keyed by its old path
func MoveFile(oldPath, newPath, newName string) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"UPDATE files SET path = ?, name = ? WHERE path = ?",
			newPath, newName, oldPath,
		); err != nil {
			return fmt.Errorf("failed to move file row: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE digests SET file_path = ? WHERE file_path = ?",
			newPath, oldPath,
		); err != nil {
			return fmt.Errorf("failed to move digests: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE meili_documents SET file_path = ? WHERE file_path = ?",
			newPath, oldPath,
		); err != nil {
			return fmt.Errorf("failed to move meili documents: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE qdrant_documents SET file_path = ? WHERE file_path = ?",
			newPath, oldPath,
		); err != nil {
			return fmt.Errorf("failed to move qdrant documents: %w", err)
		}
		return nil
	})
}

// DeleteFileWithCascade removes a file and all rows that reference it
func DeleteFileWithCascade(path string) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM digests WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete digests: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM meili_documents WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete meili documents: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM qdrant_documents WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete qdrant documents: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM file_locks WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete lock: %w", err)
		}
		pathHash := GeneratePathHash(path)
		if _, err := tx.Exec("DELETE FROM sqlar WHERE name LIKE ?", pathHash+"/%"); err != nil {
			return fmt.Errorf("failed to delete blobs: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file row: %w", err)
		}
		return nil
	})
}

// ListAllFilePaths returns the paths of every non-folder file,
// optionally skipping excluded prefixes
func ListAllFilePaths(excludedPrefixes []string) ([]string, error) {
	query := "SELECT path FROM files WHERE is_folder = 0"
	args := []interface{}{}
	for _, prefix := range excludedPrefixes {
		query += " AND path NOT LIKE ?"
		args = append(args, prefix+"%")
	}
	query += " ORDER BY path"

	rows, err := GetDB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
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

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
