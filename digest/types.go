package digest

import (
	"context"

	"github.com/mnemo-app/mnemo/db"
)

// Status represents the lifecycle state of a digest row
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Skip reasons recorded on digest rows
const (
	SkipNotApplicable     = "Not applicable"
	SkipOutputNotProduced = "Output not produced"
)

// MaxAttemptsSuffix is appended to the error of a row that exhausted its
// retry budget. Rows carrying it are never retried.
const MaxAttemptsSuffix = "max attempts reached"

// Output is one result a digester produced for a file
type Output struct {
	Digester string
	Status   Status
	Content  *string

	// BlobName plus BlobData store a binary artifact. The blob key becomes
	// <path-hash>/<digester>/<BlobName>.
	BlobName *string
	BlobData []byte

	// Screenshot marks the blob as the file's display preview
	Screenshot bool

	Error *string
}

// Digester processes a file and produces one or more outputs
type Digester interface {
	// Name returns the unique digester name
	Name() string

	// Label returns the human-readable label
	Label() string

	// Description returns what this digester does
	Description() string

	// Outputs returns the digest row names this digester fills. Empty
	// means a single row named after the digester.
	Outputs() []string

	// Applies reports whether this digester can process the file
	Applies(ctx context.Context, file *db.FileRecord, digests []*db.Digest) (bool, error)

	// Run executes the digester
	Run(ctx context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error)
}

// Store is the catalog surface the pipeline needs. The db package provides
// the real implementation; tests use in-memory fakes.
type Store interface {
	GetFile(path string) (*db.FileRecord, error)
	TouchFileScanned(path string) error
	SetFileScreenshot(path string, blobName *string) error

	ListDigests(path string) ([]*db.Digest, error)
	CreateDigestIfMissing(path, digester string) (bool, error)
	UpdateDigest(path, digester string, patch db.DigestPatch) error
	DemoteOrphanDigests(path string, knownNames []string) (int64, error)

	TryLock(path, owner string) (bool, error)
	Unlock(path, owner string) error

	FilesNeedingDigest(limit int, outputs, excludedPrefixes []string, maxAttempts int) ([]string, error)
	ResetStaleInProgress(thresholdMs int64) (int64, error)
	ReleaseStaleLocks(thresholdMs int64) (int64, error)
}

// Blobs is the binary artifact store backing digester outputs
type Blobs interface {
	Store(name string, data []byte) error
	Get(name string) ([]byte, error)
	DeletePrefix(prefix string) error
}

// Notifier receives preview-ready events. Nil-safe via NoopNotifier.
type Notifier interface {
	NotifyPreviewUpdated(filePath, previewType string)
}

// NoopNotifier discards all notifications
type NoopNotifier struct{}

func (NoopNotifier) NotifyPreviewUpdated(string, string) {}
