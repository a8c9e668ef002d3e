package fs

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Cap on bytes read while extracting a text preview
	maxPreviewBytes = 10 * 1024 * 1024

	// Lines kept in a text preview
	maxPreviewLines = 60
)

// ComputeMetadata hashes a file and extracts a text preview when the
// extension suggests text content. path is relative to dataRoot.
func ComputeMetadata(dataRoot, path string) (*MetadataResult, error) {
	file, err := os.Open(filepath.Join(dataRoot, path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	hash, err := hashReader(file)
	if err != nil {
		return nil, err
	}

	var preview *string
	if isTextPath(path) {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		p, err := extractTextPreview(file)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to extract text preview")
		} else if p != nil && *p != "" {
			preview = p
		}
	}

	return &MetadataResult{
		Hash:        hash,
		TextPreview: preview,
		Size:        info.Size(),
	}, nil
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// extractTextPreview keeps the first maxPreviewLines lines of a file
func extractTextPreview(r io.Reader) (*string, error) {
	scanner := bufio.NewScanner(io.LimitReader(r, maxPreviewBytes))
	scanner.Buffer(make([]byte, 0, 64*1024), maxPreviewBytes)

	var lines []string
	for scanner.Scan() && len(lines) < maxPreviewLines {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	preview := strings.Join(lines, "\n")
	return &preview, nil
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".json": true, ".yaml": true, ".yml": true,
	".csv": true, ".tsv": true,
	".xml": true, ".html": true, ".htm": true,
	".js": true, ".ts": true, ".py": true, ".go": true,
	".sh": true, ".sql": true, ".ini": true, ".toml": true,
}

func isTextPath(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}
