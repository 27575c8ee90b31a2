package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Document is one archived copy of a metadata document.
type Document struct {
	ID                int64
	FetchRunID        sql.NullString
	FetchedAt         time.Time
	Source            string
	Name              string // "locations", "sensors" or "campaigns"
	PayloadCompressed []byte
	PayloadHash       string
	SizeBytes         int64
}

// Payload returns the decompressed document.
func (d *Document) Payload() ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(d.PayloadCompressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// StoreDocument archives a compressed copy of payload. If identical content is
// already archived for source and name, only its fetch time is refreshed and
// false is returned.
func (s *Store) StoreDocument(runID *string, source, name string, payload []byte) (bool, error) {
	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])
	now := s.now()

	var fetchRunID sql.NullString
	if runID != nil {
		fetchRunID = sql.NullString{String: *runID, Valid: true}
	}

	result, err := s.db.Exec(`
		UPDATE documents SET fetched_at = ?, fetch_run_id = ?
		WHERE source = ? AND name = ? AND payload_hash = ?
	`, now, fetchRunID, source, name, hashHex)
	if err != nil {
		return false, fmt.Errorf("touch document: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return false, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return false, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return false, fmt.Errorf("close gzip: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO documents
		(fetch_run_id, fetched_at, source, name, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fetchRunID, now, source, name, buf.Bytes(), hashHex, len(payload))
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	return true, nil
}

// LatestDocument returns the most recently fetched copy of a document, or nil
// if none is archived.
func (s *Store) LatestDocument(source, name string) (*Document, error) {
	row := s.db.QueryRow(`
		SELECT id, fetch_run_id, fetched_at, source, name, payload_compressed, payload_hash, size_bytes
		FROM documents
		WHERE source = ? AND name = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, source, name)

	var d Document
	err := row.Scan(&d.ID, &d.FetchRunID, &d.FetchedAt, &d.Source, &d.Name,
		&d.PayloadCompressed, &d.PayloadHash, &d.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type DocumentStats struct {
	TotalCount      int
	TotalSizeBytes  int64
	OldestFetchedAt time.Time
	NewestFetchedAt time.Time
	CountByName     map[string]int
	SizeByName      map[string]int64
}

// DocumentStats returns storage statistics for archived documents. Sizes are
// compressed sizes.
func (s *Store) DocumentStats() (*DocumentStats, error) {
	stats := &DocumentStats{
		CountByName: make(map[string]int),
		SizeByName:  make(map[string]int64),
	}

	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0),
		       MIN(fetched_at), MAX(fetched_at)
		FROM documents
	`)
	var oldest, newest sql.NullString
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		t, err := parseStoredTime(oldest.String)
		if err != nil {
			return nil, fmt.Errorf("parse oldest fetch time: %w", err)
		}
		stats.OldestFetchedAt = t
	}
	if newest.Valid {
		t, err := parseStoredTime(newest.String)
		if err != nil {
			return nil, fmt.Errorf("parse newest fetch time: %w", err)
		}
		stats.NewestFetchedAt = t
	}

	rows, err := s.db.Query(`
		SELECT name, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM documents
		GROUP BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		var size int64
		if err := rows.Scan(&name, &count, &size); err != nil {
			return nil, err
		}
		stats.CountByName[name] = count
		stats.SizeByName[name] = size
	}

	return stats, rows.Err()
}

// CleanupOldDocuments deletes documents fetched more than retentionDays ago.
// The latest copy of every document is kept regardless of its age.
func (s *Store) CleanupOldDocuments(retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec(`
		DELETE FROM documents
		WHERE fetched_at < ?
		  AND id NOT IN (
			SELECT d.id FROM documents d
			WHERE d.fetched_at = (
				SELECT MAX(fetched_at) FROM documents
				WHERE source = d.source AND name = d.name
			)
		  )
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
