package repository

import (
	"path/filepath"
	"testing"
	"time"

	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *AdmissionRepository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "admission.db"), database.AdmissionMigrations, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewAdmissionRepository(db.DB)
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID: "E100", Name: "Alice Johnson", EntityType: models.EntityEmployee,
	}))
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID: "CONTRACTOR_7", Name: "Carol Deng", EntityType: models.EntityContractor,
	}))
	return repo
}

const window = 4 * time.Hour

func TestRecordVisitAcceptsFirstRejectsSecond(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()

	visit, blocking, err := repo.RecordVisit("E100", models.SourceQR, 2, window, now)
	require.NoError(t, err)
	require.NotNil(t, visit)
	require.Nil(t, blocking)

	// Replay inside the window: rejected, nothing recorded twice
	visit, blocking, err = repo.RecordVisit("E100", models.SourceQR, 2, window, now.Add(30*time.Second))
	require.NoError(t, err)
	require.Nil(t, visit)
	require.NotNil(t, blocking)
	assert.WithinDuration(t, now, *blocking, time.Second)

	count, err := repo.VisitCount("E100")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "exactly one visit despite the replay")

	meals, guests, err := repo.MealDeduction("E100", now.Format("2006-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, meals, "exactly one accounting increment despite the replay")
	assert.Equal(t, 2, guests)
}

func TestRecordVisitAcceptsAfterWindowExpires(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()

	_, _, err := repo.RecordVisit("E100", models.SourceQR, 0, window, now)
	require.NoError(t, err)

	visit, blocking, err := repo.RecordVisit("E100", models.SourceManual, 0, window, now.Add(window+time.Minute))
	require.NoError(t, err)
	require.NotNil(t, visit)
	require.Nil(t, blocking)

	count, err := repo.VisitCount("E100")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMealDeductionAggregatesWithinPeriod(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	_, _, err := repo.RecordVisit("E100", models.SourceQR, 1, window, base)
	require.NoError(t, err)
	_, _, err = repo.RecordVisit("E100", models.SourceQR, 3, window, base.AddDate(0, 0, 1))
	require.NoError(t, err)

	meals, guests, err := repo.MealDeduction("E100", "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 2, meals)
	assert.Equal(t, 4, guests)

	// A visit in the next month opens a new aggregate row
	_, _, err = repo.RecordVisit("E100", models.SourceQR, 0, window, base.AddDate(0, 1, 0))
	require.NoError(t, err)

	meals, guests, err = repo.MealDeduction("E100", "2026-04")
	require.NoError(t, err)
	assert.Equal(t, 1, meals)
	assert.Equal(t, 0, guests)
}

func TestVisitsAreIndependentAcrossSubjects(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()

	_, _, err := repo.RecordVisit("E100", models.SourceQR, 0, window, now)
	require.NoError(t, err)

	visit, _, err := repo.RecordVisit("CONTRACTOR_7", models.SourceManual, 0, window, now)
	require.NoError(t, err)
	require.NotNil(t, visit, "one subject's cooldown must not block another")
}

func TestFindSubjectByRef(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name string
		ref  models.SubjectRef
		want string
	}{
		{name: "by employee id", ref: models.SubjectRef{EmployeeID: "E100"}, want: "E100"},
		{name: "by contractor id", ref: models.SubjectRef{ContractorID: "7"}, want: "CONTRACTOR_7"},
		{name: "by qr payload", ref: models.SubjectRef{QRPayload: "E100"}, want: "E100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := repo.FindSubjectByRef(tt.ref)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, tt.want, s.SubjectID)
		})
	}

	s, err := repo.FindSubjectByRef(models.SubjectRef{EmployeeID: "E999"})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSearchSubjects(t *testing.T) {
	repo := newTestRepo(t)

	all, err := repo.SearchSubjects("")
	require.NoError(t, err)
	assert.Len(t, all, 2, "empty query returns the full roster for snapshot refresh")

	matches, err := repo.SearchSubjects("ALICE")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "E100", matches[0].SubjectID)
}
