package scanner

import (
	"fmt"

	"imagededup/database"
	"imagededup/logging"
	"imagededup/partition"
)

// storeManifestDatabase copies the manifests into a fresh SQLite file
func storeManifestDatabase(dbPath string, m partition.Manifest, summary Summary) error {
	db, err := database.InitDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("cannot open manifest database %s: %w", dbPath, err)
	}
	defer db.Close()

	stats := database.RunStats{
		Processed:         summary.Processed,
		Unique:            summary.Unique,
		ExactDuplicates:   summary.ExactDuplicates,
		SimilarDuplicates: summary.SimilarDuplicates,
		Errors:            summary.Errors,
	}
	if err := database.StoreManifests(db, m.Processed, m.Unique, m.Duplicates, stats); err != nil {
		return err
	}

	stored, err := database.GetScanStats(db)
	if err != nil {
		return fmt.Errorf("cannot read back manifest database %s: %w", dbPath, err)
	}
	if stored.Processed != len(m.Processed) || stored.Unique != len(m.Unique) || stored.Duplicates != len(m.Duplicates) {
		return fmt.Errorf("manifest database %s holds %d/%d/%d rows, expected %d/%d/%d",
			dbPath, stored.Processed, stored.Unique, stored.Duplicates,
			len(m.Processed), len(m.Unique), len(m.Duplicates))
	}

	logging.LogInfo("manifest database written",
		"path", dbPath,
		"processed", stored.Processed,
		"unique", stored.Unique,
		"duplicates", stored.Duplicates,
		"representatives_with_duplicates", stored.Representatives)
	return nil
}
