package queue

import (
	"database/sql"
	"fmt"
	"time"

	"canteenhq/canteen-checkin/internal/models"

	"go.uber.org/zap"
)

// PendingQueue is the durable, ordered store of check-in operations that
// could not be confirmed against the server. Entries survive process
// restarts; that is the whole point of the queue, so persistence failures
// are returned to the caller rather than swallowed.
type PendingQueue struct {
	db           *sql.DB
	dedupeWindow time.Duration
	retention    time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewPendingQueue creates a queue over an opened kiosk database
func NewPendingQueue(db *sql.DB, dedupeWindow, retention time.Duration, logger *zap.Logger) *PendingQueue {
	return &PendingQueue{
		db:           db,
		dedupeWindow: dedupeWindow,
		retention:    retention,
		logger:       logger,
		now:          time.Now,
	}
}

// Enqueue appends an operation with status pending. If a pending entry for
// the same subject was enqueued within the dedupe window, the call is a
// no-op: a rapid double-submission must not create two queue entries.
func (q *PendingQueue) Enqueue(op models.QueuedCheckIn) error {
	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := q.now().Add(-q.dedupeWindow)
	var duplicates int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM pending_checkins
		WHERE subject_key = ? AND enqueued_at > ?
	`, op.Ref.Key(), cutoff).Scan(&duplicates)
	if err != nil {
		return fmt.Errorf("failed to check for duplicates: %w", err)
	}

	if duplicates > 0 {
		q.logger.Debug("Duplicate enqueue suppressed",
			zap.String("subject_key", op.Ref.Key()),
		)
		return nil
	}

	_, err = tx.Exec(`
		INSERT INTO pending_checkins
			(id, subject_key, qr_payload, employee_id, contractor_id, source_type, guest_count, enqueued_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.ID,
		op.Ref.Key(),
		op.Ref.QRPayload,
		op.Ref.EmployeeID,
		op.Ref.ContractorID,
		op.SourceType,
		op.GuestCount,
		op.EnqueuedAt,
		models.QueueStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue check-in: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enqueue: %w", err)
	}

	q.logger.Info("Check-in queued for later sync",
		zap.String("id", op.ID),
		zap.String("subject_key", op.Ref.Key()),
		zap.String("source_type", op.SourceType),
	)
	return nil
}

// List returns all entries in enqueue order. Entries older than the
// retention horizon are pruned first and never replayed.
func (q *PendingQueue) List() ([]models.QueuedCheckIn, error) {
	if err := q.prune(); err != nil {
		return nil, err
	}

	rows, err := q.db.Query(`
		SELECT id, qr_payload, employee_id, contractor_id, source_type, guest_count, enqueued_at, status, last_error
		FROM pending_checkins
		ORDER BY enqueued_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending check-ins: %w", err)
	}
	defer rows.Close()

	var ops []models.QueuedCheckIn
	for rows.Next() {
		var op models.QueuedCheckIn
		var lastError sql.NullString
		err := rows.Scan(
			&op.ID,
			&op.Ref.QRPayload,
			&op.Ref.EmployeeID,
			&op.Ref.ContractorID,
			&op.SourceType,
			&op.GuestCount,
			&op.EnqueuedAt,
			&op.Status,
			&lastError,
		)
		if err != nil {
			q.logger.Error("Failed to scan queued check-in", zap.Error(err))
			continue
		}
		if lastError.Valid {
			op.LastError = &lastError.String
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// Remove deletes an entry by id. Removing a non-existent id is not an error.
func (q *PendingQueue) Remove(id string) error {
	_, err := q.db.Exec(`DELETE FROM pending_checkins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queued check-in: %w", err)
	}
	return nil
}

// UpdateStatus records the sync outcome for an entry
func (q *PendingQueue) UpdateStatus(id, status string, lastErr error) error {
	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	_, err := q.db.Exec(`
		UPDATE pending_checkins SET status = ?, last_error = ? WHERE id = ?
	`, status, errText, id)
	if err != nil {
		return fmt.Errorf("failed to update queued check-in: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued entries
func (q *PendingQueue) PendingCount() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_checkins`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending check-ins: %w", err)
	}
	return count, nil
}

func (q *PendingQueue) prune() error {
	cutoff := q.now().Add(-q.retention)
	result, err := q.db.Exec(`DELETE FROM pending_checkins WHERE enqueued_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune expired check-ins: %w", err)
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		q.logger.Info("Pruned expired queued check-ins", zap.Int64("count", removed))
	}
	return nil
}
