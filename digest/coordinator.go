package digest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemo-app/mnemo/db"
)

// searchRowNames are the digest rows that mirror the search indexes
var searchRowNames = []string{"search-keyword", "search-semantic"}

// searchSourceNames are the rows whose updates make a search index stale
var searchSourceNames = []string{
	"url-crawl-content",
	"doc-to-markdown",
	"image-ocr",
	"url-crawl-summary",
	"tags",
}

// Coordinator drives every registered digester over a single file. It
// serializes per-file work through the catalog lock table, so concurrent
// coordinators (or processes) never run the same file twice.
type Coordinator struct {
	store       Store
	blobs       Blobs
	registry    *Registry
	notifier    Notifier
	maxAttempts int
	owner       string
}

// NewCoordinator creates a coordinator with its own lock owner identity
func NewCoordinator(store Store, blobs Blobs, registry *Registry, notifier Notifier, maxAttempts int) *Coordinator {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Coordinator{
		store:       store,
		blobs:       blobs,
		registry:    registry,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		owner:       uuid.NewString(),
	}
}

// FileResult summarizes one ProcessFile run
type FileResult struct {
	Processed int
	Skipped   int
	Failed    int
	Locked    bool // another owner held the file
}

// ProcessFile runs every applicable digester over the file in registration
// order. With reset true, all digest state and stored artifacts are
// cleared first so the file is digested from scratch.
func (c *Coordinator) ProcessFile(ctx context.Context, filePath string, reset bool) (*FileResult, error) {
	acquired, err := c.store.TryLock(filePath, c.owner)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed for %s: %w", filePath, err)
	}
	if !acquired {
		logger.Debug().Str("path", filePath).Msg("file locked by another worker, skipping")
		return &FileResult{Locked: true}, nil
	}
	defer func() {
		if err := c.store.Unlock(filePath, c.owner); err != nil {
			logger.Error().Err(err).Str("path", filePath).Msg("failed to release file lock")
		}
	}()

	file, err := c.store.GetFile(filePath)
	if err != nil {
		return nil, err
	}
	if file == nil || file.IsFolder {
		return &FileResult{}, nil
	}

	if reset {
		if err := c.resetFile(filePath); err != nil {
			return nil, err
		}
	}

	if _, _, err := EnsureDigestRows(c.store, c.registry, filePath); err != nil {
		return nil, err
	}

	if err := c.resetStaleSearchRows(file); err != nil {
		logger.Error().Err(err).Str("path", filePath).Msg("failed to check search staleness")
	}

	result := &FileResult{}
	for _, digester := range c.registry.All() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		c.runDigester(ctx, digester, file, result)
	}

	if err := c.store.TouchFileScanned(filePath); err != nil {
		logger.Error().Err(err).Str("path", filePath).Msg("failed to touch last_scanned_at")
	}

	logger.Info().
		Str("path", filePath).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("file processing complete")
	return result, nil
}

// runDigester executes one digester against the file, updating its output
// rows through the full status lifecycle
func (c *Coordinator) runDigester(ctx context.Context, digester Digester, file *db.FileRecord, result *FileResult) {
	name := digester.Name()
	outputs := outputNames(digester)

	digests, err := c.store.ListDigests(file.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", file.Path).Msg("failed to list digests")
		result.Failed++
		return
	}

	byName := make(map[string]*db.Digest, len(digests))
	for _, d := range digests {
		byName[d.Digester] = d
	}

	// Another worker may hold these outputs
	for _, out := range outputs {
		if d, ok := byName[out]; ok && d.Status == db.DigestStatusInProgress {
			result.Skipped++
			return
		}
	}

	pending := c.pendingOutputs(outputs, byName)
	if len(pending) == 0 {
		result.Skipped++
		return
	}

	applies, err := digester.Applies(ctx, file, digests)
	if err != nil {
		c.markFailed(file.Path, pending, byName, err.Error())
		logger.Error().Err(err).Str("path", file.Path).Str("digester", name).Msg("applicability check failed")
		result.Failed++
		return
	}
	if !applies {
		for _, out := range pending {
			c.markSkipped(file.Path, out, SkipNotApplicable)
		}
		result.Skipped++
		return
	}

	for _, out := range pending {
		c.markInProgress(file.Path, out, byName[out])
	}

	produced, err := digester.Run(ctx, file, digests)
	if err != nil {
		c.markFailed(file.Path, pending, byName, err.Error())
		logger.Error().Err(err).Str("path", file.Path).Str("digester", name).Msg("digester failed")
		result.Failed++
		return
	}

	if len(produced) == 0 {
		for _, out := range pending {
			c.markSkipped(file.Path, out, SkipOutputNotProduced)
		}
		result.Skipped++
		return
	}

	producedNames := make(map[string]bool, len(produced))
	anyFailed := false
	for _, output := range produced {
		producedNames[output.Digester] = true
		if err := c.saveOutput(file.Path, output, byName[output.Digester]); err != nil {
			logger.Error().Err(err).Str("path", file.Path).Str("output", output.Digester).Msg("failed to save output")
			anyFailed = true
		}
		if output.Status == StatusFailed {
			anyFailed = true
		}
	}

	// Expected outputs the digester chose not to produce
	for _, out := range pending {
		if !producedNames[out] {
			c.markSkipped(file.Path, out, SkipOutputNotProduced)
		}
	}

	if anyFailed {
		result.Failed++
	} else {
		result.Processed++
	}
	logger.Debug().Str("path", file.Path).Str("digester", name).Msg("digester done")
}

// pendingOutputs returns the output rows that still need work: missing,
// todo, or failed under the attempt cap
func (c *Coordinator) pendingOutputs(outputs []string, byName map[string]*db.Digest) []string {
	var pending []string
	for _, out := range outputs {
		d, ok := byName[out]
		switch {
		case !ok:
			pending = append(pending, out)
		case d.Status == db.DigestStatusTodo:
			pending = append(pending, out)
		case d.Status == db.DigestStatusFailed && d.Attempts < c.maxAttempts:
			pending = append(pending, out)
		}
	}
	return pending
}

// saveOutput persists one digester output, storing its blob when present
func (c *Coordinator) saveOutput(filePath string, output Output, existing *db.Digest) error {
	patch := db.DigestPatch{}
	status := string(output.Status)
	patch.Status = &status

	switch output.Status {
	case StatusCompleted, StatusSkipped:
		zero := 0
		patch.Attempts = &zero
		patch.ClearError = true
	case StatusFailed:
		attempts := 1
		if existing != nil {
			attempts = existing.Attempts + 1
		}
		if attempts >= c.maxAttempts {
			attempts = c.maxAttempts
			msg := SkipOutputNotProduced
			if output.Error != nil {
				msg = *output.Error
			}
			terminal := msg + "; " + MaxAttemptsSuffix
			patch.Error = &terminal
		}
		patch.Attempts = &attempts
	}

	if output.Content != nil {
		patch.Content = output.Content
	}
	if output.Error != nil && patch.Error == nil {
		patch.Error = output.Error
	}

	if output.BlobName != nil && len(output.BlobData) > 0 {
		blobKey := db.GeneratePathHash(filePath) + "/" + output.Digester + "/" + *output.BlobName
		if err := c.blobs.Store(blobKey, output.BlobData); err != nil {
			return fmt.Errorf("failed to store blob %s: %w", blobKey, err)
		}
		patch.SqlarName = &blobKey

		if output.Screenshot && output.Status == StatusCompleted {
			if err := c.store.SetFileScreenshot(filePath, &blobKey); err != nil {
				logger.Error().Err(err).Str("path", filePath).Msg("failed to set screenshot pointer")
			} else {
				c.notifier.NotifyPreviewUpdated(filePath, "screenshot")
			}
		}
	}

	return c.store.UpdateDigest(filePath, output.Digester, patch)
}

func (c *Coordinator) markInProgress(filePath, digester string, existing *db.Digest) {
	status := db.DigestStatusInProgress
	attempts := 1
	if existing != nil {
		attempts = existing.Attempts + 1
	}
	err := c.store.UpdateDigest(filePath, digester, db.DigestPatch{
		Status:     &status,
		Attempts:   &attempts,
		ClearError: true,
	})
	if err != nil {
		logger.Error().Err(err).Str("path", filePath).Str("digester", digester).Msg("failed to mark in-progress")
	}
}

func (c *Coordinator) markSkipped(filePath, digester, reason string) {
	status := db.DigestStatusSkipped
	zero := 0
	err := c.store.UpdateDigest(filePath, digester, db.DigestPatch{
		Status:   &status,
		Error:    &reason,
		Attempts: &zero,
	})
	if err != nil {
		logger.Error().Err(err).Str("path", filePath).Str("digester", digester).Msg("failed to mark skipped")
	}
}

func (c *Coordinator) markFailed(filePath string, outputs []string, byName map[string]*db.Digest, errMsg string) {
	status := db.DigestStatusFailed
	for _, out := range outputs {
		attempts := 1
		if d, ok := byName[out]; ok {
			attempts = d.Attempts + 1
		}
		msg := errMsg
		if attempts >= c.maxAttempts {
			attempts = c.maxAttempts
			msg = errMsg + "; " + MaxAttemptsSuffix
		}
		err := c.store.UpdateDigest(filePath, out, db.DigestPatch{
			Status:   &status,
			Error:    &msg,
			Attempts: &attempts,
		})
		if err != nil {
			logger.Error().Err(err).Str("path", filePath).Str("digester", out).Msg("failed to mark failed")
		}
	}
}

// resetFile clears all digest state and stored artifacts for a file so it
// gets digested from scratch
func (c *Coordinator) resetFile(filePath string) error {
	digests, err := c.store.ListDigests(filePath)
	if err != nil {
		return err
	}

	status := db.DigestStatusTodo
	zero := 0
	for _, d := range digests {
		err := c.store.UpdateDigest(filePath, d.Digester, db.DigestPatch{
			Status:       &status,
			ClearContent: true,
			ClearSqlar:   true,
			ClearError:   true,
			Attempts:     &zero,
		})
		if err != nil {
			return err
		}
	}

	if err := c.blobs.DeletePrefix(db.GeneratePathHash(filePath) + "/"); err != nil {
		return err
	}
	if err := c.store.SetFileScreenshot(filePath, nil); err != nil {
		return err
	}

	logger.Info().Str("path", filePath).Int("rows", len(digests)).Msg("digest state reset")
	return nil
}

// ResetDigest clears a single digest row and its stored artifacts so that
// one digester runs again from scratch. The file's screenshot pointer is
// cleared when it referenced this row's artifacts.
func (c *Coordinator) ResetDigest(filePath, digester string) error {
	status := db.DigestStatusTodo
	zero := 0
	err := c.store.UpdateDigest(filePath, digester, db.DigestPatch{
		Status:       &status,
		ClearContent: true,
		ClearSqlar:   true,
		ClearError:   true,
		Attempts:     &zero,
	})
	if err != nil {
		return err
	}

	prefix := db.GeneratePathHash(filePath) + "/" + digester + "/"
	if err := c.blobs.DeletePrefix(prefix); err != nil {
		return err
	}

	file, err := c.store.GetFile(filePath)
	if err != nil {
		return err
	}
	if file != nil && file.ScreenshotSqlar != nil && strings.HasPrefix(*file.ScreenshotSqlar, prefix) {
		if err := c.store.SetFileScreenshot(filePath, nil); err != nil {
			return err
		}
	}

	logger.Info().Str("path", filePath).Str("digester", digester).Msg("digest row reset")
	return nil
}

// resetStaleSearchRows flips terminal search index rows back to todo when
// the file content or any upstream text row changed after the index was
// last written
func (c *Coordinator) resetStaleSearchRows(file *db.FileRecord) error {
	digests, err := c.store.ListDigests(file.Path)
	if err != nil {
		return err
	}

	byName := make(map[string]*db.Digest, len(digests))
	for _, d := range digests {
		byName[d.Digester] = d
	}

	// Newest relevant activity: the file itself or any text source row
	newest := file.ModifiedAt
	for _, src := range searchSourceNames {
		if d, ok := byName[src]; ok && d.Status == db.DigestStatusCompleted && d.UpdatedAt > newest {
			newest = d.UpdatedAt
		}
	}

	status := db.DigestStatusTodo
	zero := 0
	for _, name := range searchRowNames {
		d, ok := byName[name]
		if !ok {
			continue
		}
		terminal := d.Status == db.DigestStatusCompleted ||
			d.Status == db.DigestStatusSkipped ||
			d.Status == db.DigestStatusFailed
		if !terminal || d.UpdatedAt >= newest {
			continue
		}

		err := c.store.UpdateDigest(file.Path, name, db.DigestPatch{
			Status:     &status,
			ClearError: true,
			Attempts:   &zero,
		})
		if err != nil {
			return err
		}
		logger.Debug().Str("path", file.Path).Str("digester", name).Msg("search index marked stale")
	}

	return nil
}
