package db

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"fmt"
	"io"
	"time"
)

// StoreBlob writes a zlib-compressed blob into the sqlar table. When the
// compressed form is not smaller the data is stored as-is, matching the
// sqlar convention of sz == len(data) meaning uncompressed.
func StoreBlob(name string, data []byte) error {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to compress blob %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress blob %s: %w", name, err)
	}

	stored := buf.Bytes()
	if len(stored) >= len(data) {
		stored = data
	}

	_, err := GetDB().Exec(`
		INSERT INTO sqlar (name, mode, mtime, sz, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			mode = excluded.mode,
			mtime = excluded.mtime,
			sz = excluded.sz,
			data = excluded.data
	`, name, 0644, time.Now().Unix(), len(data), stored)
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", name, err)
	}
	return nil
}

// GetBlob reads a blob from the sqlar table, decompressing when needed.
// Returns nil when the blob does not exist.
func GetBlob(name string) ([]byte, error) {
	var sz int64
	var data []byte
	err := GetDB().QueryRow(
		"SELECT sz, data FROM sqlar WHERE name = ?", name,
	).Scan(&sz, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}

	if int64(len(data)) == sz {
		return data, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob %s: %w", name, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob %s: %w", name, err)
	}
	return out, nil
}

// BlobExists reports whether a blob with the given name is stored
func BlobExists(name string) (bool, error) {
	var one int
	err := GetDB().QueryRow("SELECT 1 FROM sqlar WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListBlobNames returns the names of blobs whose key starts with prefix
func ListBlobNames(prefix string) ([]string, error) {
	rows, err := GetDB().Query(
		"SELECT name FROM sqlar WHERE name LIKE ? ORDER BY name",
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteBlobsWithPrefix removes every blob whose key starts with prefix
func DeleteBlobsWithPrefix(prefix string) error {
	_, err := GetDB().Exec("DELETE FROM sqlar WHERE name LIKE ?", prefix+"%")
	if err != nil {
		return fmt.Errorf("failed to delete blobs with prefix %s: %w", prefix, err)
	}
	return nil
}
