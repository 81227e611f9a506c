package queue

import (
	"path/filepath"
	"testing"
	"time"

	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.New(path, database.KioskMigrations, zap.NewNop())
	require.NoError(t, err)
	return db
}

func newTestQueue(t *testing.T) *PendingQueue {
	t.Helper()
	db := openTestDB(t, filepath.Join(t.TempDir(), "kiosk.db"))
	t.Cleanup(func() { db.Close() })
	return NewPendingQueue(db.DB, time.Minute, 24*time.Hour, zap.NewNop())
}

func employeeOp(employeeID string, at time.Time) models.QueuedCheckIn {
	return models.NewQueuedCheckIn(
		models.SubjectRef{EmployeeID: employeeID},
		models.SourceQR,
		0,
		at,
	)
}

func TestEnqueueDedupesWithinWindow(t *testing.T) {
	q := newTestQueue(t)
	now := time.Now()

	require.NoError(t, q.Enqueue(employeeOp("E100", now)))
	require.NoError(t, q.Enqueue(employeeOp("E100", now.Add(2*time.Second))))

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 1, "double-submission within the dedupe window must not create two entries")
}

func TestEnqueueKeepsDistinctSubjects(t *testing.T) {
	q := newTestQueue(t)
	now := time.Now()

	require.NoError(t, q.Enqueue(employeeOp("E100", now)))
	require.NoError(t, q.Enqueue(employeeOp("E200", now)))

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 2)
}

func TestEnqueueAllowsSameSubjectAfterWindow(t *testing.T) {
	q := newTestQueue(t)
	base := time.Now().Add(-10 * time.Minute)

	require.NoError(t, q.Enqueue(employeeOp("E100", base)))

	// First entry is now well outside the dedupe window
	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)

	require.NoError(t, q.Enqueue(employeeOp("E100", time.Now())))

	ops, err = q.List()
	require.NoError(t, err)
	require.Len(t, ops, 2)
}

func TestListPreservesEnqueueOrder(t *testing.T) {
	q := newTestQueue(t)
	base := time.Now()

	require.NoError(t, q.Enqueue(employeeOp("E300", base)))
	require.NoError(t, q.Enqueue(employeeOp("E100", base.Add(time.Second))))
	require.NoError(t, q.Enqueue(employeeOp("E200", base.Add(2*time.Second))))

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 3)
	require.Equal(t, "E300", ops[0].Ref.EmployeeID)
	require.Equal(t, "E100", ops[1].Ref.EmployeeID)
	require.Equal(t, "E200", ops[2].Ref.EmployeeID)
}

func TestListPrunesExpiredEntries(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(employeeOp("E100", time.Now().Add(-25*time.Hour))))
	require.NoError(t, q.Enqueue(employeeOp("E200", time.Now())))

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "E200", ops[0].Ref.EmployeeID)
}

func TestQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.db")

	db := openTestDB(t, path)
	q := NewPendingQueue(db.DB, time.Minute, 24*time.Hour, zap.NewNop())
	op := employeeOp("E100", time.Now())
	require.NoError(t, q.Enqueue(op))
	require.NoError(t, db.Close())

	// Simulated process restart: reopen the same file
	db = openTestDB(t, path)
	defer db.Close()
	q = NewPendingQueue(db.DB, time.Minute, 24*time.Hour, zap.NewNop())

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, op.ID, ops[0].ID)
	require.Equal(t, "E100", ops[0].Ref.EmployeeID)
	require.Equal(t, models.QueueStatusPending, ops[0].Status)
}

func TestRemoveIsIdempotent(t *testing.T) {
	q := newTestQueue(t)
	op := employeeOp("E100", time.Now())
	require.NoError(t, q.Enqueue(op))

	require.NoError(t, q.Remove(op.ID))
	require.NoError(t, q.Remove(op.ID))
	require.NoError(t, q.Remove("no-such-id"))

	count, err := q.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUpdateStatusRecordsError(t *testing.T) {
	q := newTestQueue(t)
	op := employeeOp("E100", time.Now())
	require.NoError(t, q.Enqueue(op))

	require.NoError(t, q.UpdateStatus(op.ID, models.QueueStatusFailed, assertErr("backend exploded")))

	ops, err := q.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, models.QueueStatusFailed, ops[0].Status)
	require.NotNil(t, ops[0].LastError)
	require.Equal(t, "backend exploded", *ops[0].LastError)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
