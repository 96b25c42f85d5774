package partition

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"imagededup/logging"
)

// ManifestNames are the file names of the three manifests inside the manifest directory
type ManifestNames struct {
	Processed  string
	Unique     string
	Duplicates string
}

// DefaultManifestNames are the manifest file names used when none are configured
var DefaultManifestNames = ManifestNames{
	Processed:  "processed_images.csv",
	Unique:     "unique_images.csv",
	Duplicates: "duplicate_images.csv",
}

var (
	processedHeader = []string{"original_name", "id", "extension", "hash"}
	uniqueHeader    = []string{"id", "original_name", "hash"}
	duplicateHeader = []string{
		"duplicate_id", "duplicate_name", "hash",
		"representative_id", "representative_name", "representative_hash",
		"hamming_distance",
	}
)

// WriteManifests writes the non-empty record sets as CSV files under dir and
// returns the paths written
func WriteManifests(fs afero.Fs, dir string, names ManifestNames, m Manifest) ([]string, error) {
	var written []string
	write := func(name string, header []string, rows [][]string) error {
		if len(rows) == 0 {
			return nil
		}
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create manifest directory %s: %w", dir, err)
		}
		p := filepath.Join(dir, name)
		if err := writeCSV(fs, p, header, rows); err != nil {
			return err
		}
		logging.LogInfo("manifest written", "path", p, "rows", len(rows))
		written = append(written, p)
		return nil
	}

	processed := make([][]string, 0, len(m.Processed))
	for _, r := range m.Processed {
		processed = append(processed, []string{r.OriginalName, r.ID, r.Extension, r.Hash})
	}
	if err := write(names.Processed, processedHeader, processed); err != nil {
		return written, err
	}

	unique := make([][]string, 0, len(m.Unique))
	for _, r := range m.Unique {
		unique = append(unique, []string{r.ID, r.OriginalName, r.Hash})
	}
	if err := write(names.Unique, uniqueHeader, unique); err != nil {
		return written, err
	}

	dupes := make([][]string, 0, len(m.Duplicates))
	for _, r := range m.Duplicates {
		dupes = append(dupes, []string{
			r.DuplicateID, r.DuplicateName, r.Hash,
			r.RepresentativeID, r.RepresentativeName, r.RepresentativeHash,
			strconv.Itoa(r.HammingDistance),
		})
	}
	if err := write(names.Duplicates, duplicateHeader, dupes); err != nil {
		return written, err
	}

	return written, nil
}

func writeCSV(fs afero.Fs, path string, header []string, rows [][]string) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create manifest %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("cannot write manifest %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("cannot write manifest %s: %w", path, err)
	}
	return f.Close()
}
