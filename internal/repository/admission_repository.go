package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"canteenhq/canteen-checkin/internal/models"
)

// AdmissionRepository owns the server-side admission store: the subject
// roster, the visit log and the per-period meal-deduction aggregates.
type AdmissionRepository struct {
	db *sql.DB
}

func NewAdmissionRepository(db *sql.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// FindSubjectByRef resolves a subject reference to a roster entry.
// Returns (nil, nil) when no subject matches.
func (r *AdmissionRepository) FindSubjectByRef(ref models.SubjectRef) (*models.Subject, error) {
	query := `
		SELECT subject_id, name, department, entity_type
		FROM subjects
		WHERE subject_id = ?
	`

	var s models.Subject
	err := r.db.QueryRow(query, ref.Key()).Scan(&s.SubjectID, &s.Name, &s.Department, &s.EntityType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subject: %w", err)
	}
	return &s, nil
}

// SearchSubjects does a case-insensitive substring match over name and
// subject id. An empty query returns the full roster; the kiosk uses
// that form to refresh its offline snapshot.
func (r *AdmissionRepository) SearchSubjects(query string) ([]models.Subject, error) {
	var (
		rows *sql.Rows
		err  error
	)

	query = strings.TrimSpace(query)
	if query == "" {
		rows, err = r.db.Query(`
			SELECT subject_id, name, department, entity_type
			FROM subjects
			ORDER BY name ASC
		`)
	} else {
		pattern := "%" + strings.ToLower(query) + "%"
		rows, err = r.db.Query(`
			SELECT subject_id, name, department, entity_type
			FROM subjects
			WHERE LOWER(name) LIKE ? OR LOWER(subject_id) LIKE ?
			ORDER BY name ASC
		`, pattern, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search subjects: %w", err)
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		var s models.Subject
		if err := rows.Scan(&s.SubjectID, &s.Name, &s.Department, &s.EntityType); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// CreateSubject adds a roster entry
func (r *AdmissionRepository) CreateSubject(s models.Subject) error {
	_, err := r.db.Exec(`
		INSERT INTO subjects (subject_id, name, department, entity_type)
		VALUES (?, ?, ?, ?)
	`, s.SubjectID, s.Name, s.Department, s.EntityType)
	if err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

// LastVisit returns the most recent visit time for a subject, or nil
// when the subject has never visited.
func (r *AdmissionRepository) LastVisit(subjectID string) (*time.Time, error) {
	var last time.Time
	err := r.db.QueryRow(`
		SELECT visited_at FROM visit_logs
		WHERE subject_id = ?
		ORDER BY visited_at DESC
		LIMIT 1
	`, subjectID).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last visit: %w", err)
	}
	return &last, nil
}

// RecordVisit atomically records one visit and updates the subject's
// meal-deduction aggregate for the accounting period, or rejects when a
// visit already exists inside the window. The recent-visit check and the
// insert are a single guarded statement inside one transaction, so two
// concurrent admits for the same subject cannot both succeed — which is
// what makes queued replays safe to re-submit.
func (r *AdmissionRepository) RecordVisit(subjectID, sourceType string, guestCount int, window time.Duration, now time.Time) (*models.VisitLog, *time.Time, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := now.Add(-window)
	result, err := tx.Exec(`
		INSERT INTO visit_logs (subject_id, source_type, guest_count, visited_at)
		SELECT ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM visit_logs WHERE subject_id = ? AND visited_at > ?
		)
	`, subjectID, sourceType, guestCount, now, subjectID, cutoff)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record visit: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to inspect visit insert: %w", err)
	}

	if inserted == 0 {
		// Rejected: surface the blocking visit so the caller can report
		// when the cooldown ends.
		var last time.Time
		err := tx.QueryRow(`
			SELECT visited_at FROM visit_logs
			WHERE subject_id = ?
			ORDER BY visited_at DESC
			LIMIT 1
		`, subjectID).Scan(&last)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read blocking visit: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("failed to commit rejection: %w", err)
		}
		return nil, &last, nil
	}

	visitID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read visit id: %w", err)
	}

	// The aggregate changes together with the visit or not at all
	period := now.Format("2006-01")
	_, err = tx.Exec(`
		INSERT INTO meal_deductions (subject_id, period, meal_count, guest_count, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(subject_id, period) DO UPDATE SET
			meal_count = meal_count + 1,
			guest_count = guest_count + excluded.guest_count,
			updated_at = excluded.updated_at
	`, subjectID, period, guestCount, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update meal deduction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit visit: %w", err)
	}

	return &models.VisitLog{
		ID:         visitID,
		SubjectID:  subjectID,
		SourceType: sourceType,
		GuestCount: guestCount,
		VisitedAt:  now,
	}, nil, nil
}

// MealDeduction reads the aggregate row for a subject and period
func (r *AdmissionRepository) MealDeduction(subjectID, period string) (mealCount, guestCount int, err error) {
	err = r.db.QueryRow(`
		SELECT meal_count, guest_count FROM meal_deductions
		WHERE subject_id = ? AND period = ?
	`, subjectID, period).Scan(&mealCount, &guestCount)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read meal deduction: %w", err)
	}
	return mealCount, guestCount, nil
}

// VisitCount counts recorded visits for a subject
func (r *AdmissionRepository) VisitCount(subjectID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM visit_logs WHERE subject_id = ?`, subjectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}
