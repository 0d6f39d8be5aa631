package storage

import (
	"database/sql"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportStorage caches analysis results per log file.
type ReportStorage struct {
	db *DB
}

// NewReportStorage creates a new report storage handler.
func NewReportStorage(db *DB) *ReportStorage {
	return &ReportStorage{db: db}
}

// Save stores or replaces the cached report for its log file.
func (s *ReportStorage) Save(cached *model.CachedReport) error {
	body, err := json.Marshal(cached.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `INSERT INTO reports (log_file, file_size, file_mod_time, generated_at, total_records, report)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT(log_file) DO UPDATE SET
			  file_size = excluded.file_size,
			  file_mod_time = excluded.file_mod_time,
			  generated_at = excluded.generated_at,
			  total_records = excluded.total_records,
			  report = excluded.report`

	return s.db.WithLock(func() error {
		_, err := s.db.Exec(query,
			cached.LogFile, cached.FileSize, cached.FileModTime.UTC(),
			cached.GeneratedAt.UTC(), cached.Report.TotalRecords, string(body))
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		return s.db.QueryRow("SELECT id FROM reports WHERE log_file = ?", cached.LogFile).Scan(&cached.ID)
	})
}

// Get returns the cached report for logFile, or nil when none exists.
func (s *ReportStorage) Get(logFile string) (*model.CachedReport, error) {
	query := `SELECT id, log_file, file_size, file_mod_time, generated_at, report
			  FROM reports WHERE log_file = ?`
	return s.scanOne(s.db.QueryRow(query, logFile))
}

// GetLatest returns the most recently generated report.
func (s *ReportStorage) GetLatest() (*model.CachedReport, error) {
	query := `SELECT id, log_file, file_size, file_mod_time, generated_at, report
			  FROM reports ORDER BY generated_at DESC, id DESC LIMIT 1`
	return s.scanOne(s.db.QueryRow(query))
}

// Fresh returns the cached report for logFile only if it was built from a
// file of the given size and modification time.
func (s *ReportStorage) Fresh(logFile string, size int64, modTime time.Time) (*model.CachedReport, error) {
	cached, err := s.Get(logFile)
	if err != nil || cached == nil {
		return nil, err
	}
	if cached.FileSize != size || !cached.FileModTime.Equal(modTime.UTC()) {
		return nil, nil
	}
	return cached, nil
}

// List returns cached report metadata, newest first, without report bodies.
func (s *ReportStorage) List() ([]model.CachedReport, error) {
	query := `SELECT id, log_file, file_size, file_mod_time, generated_at
			  FROM reports ORDER BY log_file DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []model.CachedReport
	for rows.Next() {
		var c model.CachedReport
		if err := rows.Scan(&c.ID, &c.LogFile, &c.FileSize, &c.FileModTime, &c.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of cached reports.
func (s *ReportStorage) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM reports").Scan(&count)
	return count, err
}

func (s *ReportStorage) scanOne(row *sql.Row) (*model.CachedReport, error) {
	var c model.CachedReport
	var body string
	err := row.Scan(&c.ID, &c.LogFile, &c.FileSize, &c.FileModTime, &c.GeneratedAt, &body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	c.Report = &model.Report{}
	if err := json.Unmarshal([]byte(body), c.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &c, nil
}
