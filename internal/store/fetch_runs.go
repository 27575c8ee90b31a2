package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FetchRun records one load of the metadata documents for auditing.
type FetchRun struct {
	ID                   string
	StartedAt            time.Time
	FinishedAt           sql.NullTime
	Source               string // "github:<owner>/<repo>@<branch>" or "local"
	DocumentsFetched     sql.NullInt64
	DocumentsFromArchive sql.NullInt64
	Success              bool
	ErrorMessage         sql.NullString
}

func (s *Store) StartFetchRun(source string) (*FetchRun, error) {
	run := &FetchRun{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		Source:    source,
	}

	_, err := s.db.Exec(`
		INSERT INTO fetch_runs (id, started_at, source, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.StartedAt, run.Source)
	if err != nil {
		return nil, fmt.Errorf("insert fetch run: %w", err)
	}
	return run, nil
}

func (s *Store) CompleteFetchRun(run *FetchRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: s.now(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE fetch_runs SET
			finished_at = ?,
			documents_fetched = ?,
			documents_from_archive = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.DocumentsFetched, run.DocumentsFromArchive, run.Success, run.ErrorMessage, run.ID)
	return err
}

type FetchHealthSummary struct {
	Date        string
	Source      string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
	Fallbacks   int64
}

// GetFetchHealth returns daily fetch summaries for the last N days.
func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	cutoff := s.now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			source,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(documents_from_archive), 0) as fallbacks
		FROM fetch_runs
		WHERE started_at > ?
		GROUP BY date, source
		ORDER BY date DESC, source
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Source, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.Fallbacks); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, documents_fetched,
			   documents_from_archive, success, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.DocumentsFetched,
			&r.DocumentsFromArchive, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
