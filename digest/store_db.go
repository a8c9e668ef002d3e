package digest

import "github.com/mnemo-app/mnemo/db"

// CatalogStore implements Store on top of the db package
type CatalogStore struct{}

func (CatalogStore) GetFile(path string) (*db.FileRecord, error) {
	return db.GetFileByPath(path)
}

func (CatalogStore) TouchFileScanned(path string) error {
	return db.TouchFileScanned(path)
}

func (CatalogStore) SetFileScreenshot(path string, blobName *string) error {
	if blobName == nil {
		return db.UpdateFileField(path, "screenshot_sqlar", nil)
	}
	return db.UpdateFileField(path, "screenshot_sqlar", *blobName)
}

func (CatalogStore) ListDigests(path string) ([]*db.Digest, error) {
	return db.ListDigestsForFile(path)
}

func (CatalogStore) CreateDigestIfMissing(path, digester string) (bool, error) {
	return db.CreateDigestIfMissing(path, digester)
}

func (CatalogStore) UpdateDigest(path, digester string, patch db.DigestPatch) error {
	return db.UpdateDigest(path, digester, patch)
}

func (CatalogStore) DemoteOrphanDigests(path string, knownNames []string) (int64, error) {
	return db.DemoteOrphanDigests(path, knownNames)
}

func (CatalogStore) TryLock(path, owner string) (bool, error) {
	return db.TryAcquireFileLock(path, owner)
}

func (CatalogStore) Unlock(path, owner string) error {
	return db.ReleaseFileLock(path, owner)
}

func (CatalogStore) FilesNeedingDigest(limit int, outputs, excludedPrefixes []string, maxAttempts int) ([]string, error) {
	return db.FilesNeedingDigest(limit, outputs, excludedPrefixes, maxAttempts)
}

func (CatalogStore) ResetStaleInProgress(thresholdMs int64) (int64, error) {
	return db.ResetStaleInProgress(thresholdMs)
}

func (CatalogStore) ReleaseStaleLocks(thresholdMs int64) (int64, error) {
	return db.ReleaseStaleFileLocks(thresholdMs)
}

// SqlarBlobs implements Blobs on the sqlar table
type SqlarBlobs struct{}

func (SqlarBlobs) Store(name string, data []byte) error {
	return db.StoreBlob(name, data)
}

func (SqlarBlobs) Get(name string) ([]byte, error) {
	return db.GetBlob(name)
}

func (SqlarBlobs) DeletePrefix(prefix string) error {
	return db.DeleteBlobsWithPrefix(prefix)
}
