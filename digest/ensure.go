package digest

import "github.com/mnemo-app/mnemo/log"

var logger = log.GetLogger("digest")

// EnsureDigestRows creates todo placeholder rows for every registered
// output a file is missing, and demotes rows whose digester is no longer
// registered to skipped. Safe to call repeatedly.
func EnsureDigestRows(store Store, registry *Registry, filePath string) (added int, demoted int, err error) {
	known := registry.AllOutputNames()

	for _, name := range known {
		created, err := store.CreateDigestIfMissing(filePath, name)
		if err != nil {
			return added, demoted, err
		}
		if created {
			added++
		}
	}

	n, err := store.DemoteOrphanDigests(filePath, known)
	if err != nil {
		return added, demoted, err
	}
	demoted = int(n)

	if added > 0 || demoted > 0 {
		logger.Debug().
			Str("path", filePath).
			Int("added", added).
			Int("demoted", demoted).
			Msg("ensured digest rows")
	}

	return added, demoted, nil
}

// SyncAllFiles ensures digest rows exist for every cataloged file. Run at
// startup so files added before a new digester was registered get rows.
func SyncAllFiles(store Store, registry *Registry, listPaths func() ([]string, error)) error {
	paths, err := listPaths()
	if err != nil {
		return err
	}

	totalAdded := 0
	totalDemoted := 0
	for _, path := range paths {
		added, demoted, err := EnsureDigestRows(store, registry, path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to ensure digest rows")
			continue
		}
		totalAdded += added
		totalDemoted += demoted
	}

	logger.Info().
		Int("files", len(paths)).
		Int("added", totalAdded).
		Int("demoted", totalDemoted).
		Msg("digest row sync complete")
	return nil
}
