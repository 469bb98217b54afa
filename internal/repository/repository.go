// Package repository implements the persistence layer over SQLite.
//
// It exposes the two operations the ingestion pipeline contracts for —
// insert and count-since-timestamp — plus the read and status-transition
// operations the admin surface needs. Records are written once and never
// deleted here; only the status column is ever updated.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftboard/feedback/internal/model"
	// Pure Go SQLite driver: no CGO, trivially cross-compiled.
	_ "modernc.org/sqlite"
)

// SQLiteRepository encapsulates the database handle.
type SQLiteRepository struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at dbPath and ensures the
// schema exists.
func New(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets readers proceed while a submission is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

// migrate runs the idempotent DDL on startup. The schema is small enough
// that "CREATE TABLE IF NOT EXISTS" on boot beats a migration tool.
func (r *SQLiteRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,

		raw_text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'other',
		severity TEXT NOT NULL DEFAULT 'medium',
		page_url TEXT,
		device_type TEXT,

		element_selector TEXT,
		element_tag TEXT,
		element_text TEXT,
		element_box TEXT,

		context_json TEXT,

		summary TEXT,
		ai_category TEXT,
		dev_question TEXT,

		status TEXT NOT NULL DEFAULT 'pending',

		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_status ON feedback(status);
	CREATE INDEX IF NOT EXISTS idx_feedback_category ON feedback(category);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
	`
	_, err := r.db.Exec(query)
	return err
}

// Create inserts a new record, generating its identifier and timestamps.
// Client timestamps are never trusted.
func (r *SQLiteRepository) Create(ctx context.Context, f *model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.Status == "" {
		f.Status = model.StatusPending
	}

	var elSelector, elTag, elText, elBox sql.NullString
	if el := f.TargetElement; el != nil {
		elSelector = sql.NullString{String: el.Selector, Valid: true}
		elTag = sql.NullString{String: el.TagName, Valid: true}
		if el.TextPreview != "" {
			elText = sql.NullString{String: el.TextPreview, Valid: true}
		}
		if el.BoundingBox != nil {
			encoded, err := json.Marshal(el.BoundingBox)
			if err != nil {
				return fmt.Errorf("failed to encode bounding box: %w", err)
			}
			elBox = sql.NullString{String: string(encoded), Valid: true}
		}
	}

	var contextJSON sql.NullString
	if len(f.Context) > 0 {
		encoded, err := json.Marshal(f.Context)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		contextJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	var summary, aiCategory, devQuestion sql.NullString
	if enh := f.Enhancement; enh != nil {
		summary = nullableString(enh.Summary)
		aiCategory = nullableString(enh.Category)
		devQuestion = nullableString(enh.DevQuestion)
	}

	query := `
	INSERT INTO feedback (
		id, raw_text, category, severity, page_url, device_type,
		element_selector, element_tag, element_text, element_box,
		context_json,
		summary, ai_category, dev_question,
		status, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.RawText, f.Category, f.Severity, nullIfEmpty(f.PageURL), nullIfEmpty(f.DeviceType),
		elSelector, elTag, elText, elBox,
		contextJSON,
		summary, aiCategory, devQuestion,
		f.Status, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

const selectColumns = `
	id, raw_text, category, severity, page_url, device_type,
	element_selector, element_tag, element_text, element_box,
	context_json,
	summary, ai_category, dev_question,
	status, created_at, updated_at`

// GetByID retrieves a single record. Returns (nil, nil) when no record
// exists: not finding a row is not an error.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM feedback WHERE id = ?`, id)
	f, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return f, nil
}

// List returns records newest first, optionally filtered by status.
func (r *SQLiteRepository) List(ctx context.Context, status string, limit, offset int) ([]*model.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + selectColumns + ` FROM feedback`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var feedbacks []*model.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedbacks = append(feedbacks, f)
	}
	return feedbacks, rows.Err()
}

// UpdateStatus performs the administrator status transition. The status enum
// is validated here as a last line of defense; the handler validates it too.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status string) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE feedback SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSince reports how many records were created at or after t. Backs the
// admin stats view and is the count-since-timestamp half of the store
// contract.
func (r *SQLiteRepository) CountSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE created_at >= ?`, t.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// CountByStatus returns record counts grouped by triage status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM feedback GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Close terminates the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFeedback(s scanner) (*model.Feedback, error) {
	f := &model.Feedback{}
	var pageURL, deviceType sql.NullString
	var elSelector, elTag, elText, elBox sql.NullString
	var contextJSON sql.NullString
	var summary, aiCategory, devQuestion sql.NullString

	err := s.Scan(
		&f.ID, &f.RawText, &f.Category, &f.Severity, &pageURL, &deviceType,
		&elSelector, &elTag, &elText, &elBox,
		&contextJSON,
		&summary, &aiCategory, &devQuestion,
		&f.Status, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.PageURL = pageURL.String
	f.DeviceType = deviceType.String

	if elSelector.Valid && elTag.Valid {
		el := &model.TargetElement{
			Selector:    elSelector.String,
			TagName:     elTag.String,
			TextPreview: elText.String,
		}
		if elBox.Valid {
			var box model.BoundingBox
			if err := json.Unmarshal([]byte(elBox.String), &box); err == nil {
				el.BoundingBox = &box
			}
		}
		f.TargetElement = el
	}

	if contextJSON.Valid {
		var m map[string]any
		if err := json.Unmarshal([]byte(contextJSON.String), &m); err == nil {
			f.Context = m
		}
	}

	if summary.Valid || aiCategory.Valid || devQuestion.Valid {
		f.Enhancement = &model.AIEnhancement{
			Summary:     stringPtr(summary),
			Category:    stringPtr(aiCategory),
			DevQuestion: stringPtr(devQuestion),
		}
	}

	return f, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
