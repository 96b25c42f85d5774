package database

import (
	"database/sql"
	"fmt"
	"time"

	"imagededup/logging"
	"imagededup/types"

	_ "github.com/mattn/go-sqlite3"
)

// schema is recreated on every run so the file only ever holds the latest manifests
const schema = `
	DROP TABLE IF EXISTS processed;
	DROP TABLE IF EXISTS unique_images;
	DROP TABLE IF EXISTS duplicates;
	DROP TABLE IF EXISTS runs;

	CREATE TABLE processed (
		seq INTEGER PRIMARY KEY,
		original_name TEXT NOT NULL,
		id TEXT NOT NULL,
		extension TEXT,
		hash TEXT NOT NULL
	);
	CREATE TABLE unique_images (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		original_name TEXT NOT NULL,
		hash TEXT NOT NULL
	);
	CREATE TABLE duplicates (
		seq INTEGER PRIMARY KEY,
		duplicate_id TEXT NOT NULL,
		duplicate_name TEXT NOT NULL,
		hash TEXT NOT NULL,
		representative_id TEXT NOT NULL,
		representative_name TEXT NOT NULL,
		representative_hash TEXT NOT NULL,
		hamming_distance INTEGER NOT NULL
	);
	CREATE TABLE runs (
		finished_at TEXT NOT NULL,
		processed INTEGER NOT NULL,
		unique_count INTEGER NOT NULL,
		exact_duplicates INTEGER NOT NULL,
		similar_duplicates INTEGER NOT NULL,
		errors INTEGER NOT NULL
	);
	CREATE INDEX idx_processed_hash ON processed(hash);
	CREATE INDEX idx_duplicates_representative ON duplicates(representative_id);`

// RunStats is the summary row stored next to the manifests
type RunStats struct {
	Processed         int
	Unique            int
	ExactDuplicates   int
	SimilarDuplicates int
	Errors            int
}

// InitDatabase opens dbPath and recreates the manifest tables
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create manifest tables in %s: %w", dbPath, err)
	}
	return db, nil
}

// StoreManifests writes every record set in one transaction
func StoreManifests(db *sql.DB, processed []types.ProcessedRecord, unique []types.UniqueRecord, dupes []types.DuplicateRecord, stats RunStats) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO processed (original_name, id, extension, hash) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare processed insert: %w", err)
	}
	for _, r := range processed {
		if _, err := stmt.Exec(r.OriginalName, r.ID, r.Extension, r.Hash); err != nil {
			stmt.Close()
			return fmt.Errorf("cannot insert processed row for %s: %w", r.OriginalName, err)
		}
	}
	stmt.Close()

	stmt, err = tx.Prepare(`INSERT INTO unique_images (id, original_name, hash) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare unique insert: %w", err)
	}
	for _, r := range unique {
		if _, err := stmt.Exec(r.ID, r.OriginalName, r.Hash); err != nil {
			stmt.Close()
			return fmt.Errorf("cannot insert unique row for %s: %w", r.OriginalName, err)
		}
	}
	stmt.Close()

	stmt, err = tx.Prepare(`
		INSERT INTO duplicates (
			duplicate_id, duplicate_name, hash, representative_id, representative_name, representative_hash, hamming_distance
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare duplicate insert: %w", err)
	}
	for _, r := range dupes {
		if _, err := stmt.Exec(
			r.DuplicateID,
			r.DuplicateName,
			r.Hash,
			r.RepresentativeID,
			r.RepresentativeName,
			r.RepresentativeHash,
			r.HammingDistance,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("cannot insert duplicate row for %s: %w", r.DuplicateName, err)
		}
	}
	stmt.Close()

	if _, err := tx.Exec(
		`INSERT INTO runs (finished_at, processed, unique_count, exact_duplicates, similar_duplicates, errors) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().Format(time.RFC3339),
		stats.Processed,
		stats.Unique,
		stats.ExactDuplicates,
		stats.SimilarDuplicates,
		stats.Errors,
	); err != nil {
		return fmt.Errorf("cannot insert run summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit manifests: %w", err)
	}

	logging.DebugLog("manifests stored in database",
		"processed", len(processed),
		"unique", len(unique),
		"duplicates", len(dupes))
	return nil
}

// ScanStats contains counts read back from a manifest database
type ScanStats struct {
	Processed       int
	Unique          int
	Duplicates      int
	Representatives int
}

// GetScanStats reports what a manifest database holds
func GetScanStats(db *sql.DB) (*ScanStats, error) {
	var stats ScanStats

	if err := db.QueryRow("SELECT COUNT(*) FROM processed").Scan(&stats.Processed); err != nil {
		return nil, fmt.Errorf("failed to count processed images: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM unique_images").Scan(&stats.Unique); err != nil {
		return nil, fmt.Errorf("failed to count unique images: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM duplicates").Scan(&stats.Duplicates); err != nil {
		return nil, fmt.Errorf("failed to count duplicates: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(DISTINCT representative_id) FROM duplicates").Scan(&stats.Representatives); err != nil {
		return nil, fmt.Errorf("failed to count representatives with duplicates: %w", err)
	}

	return &stats, nil
}
