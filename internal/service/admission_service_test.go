package service

import (
	"path/filepath"
	"testing"
	"time"

	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdmission(t *testing.T, cooldown, dedupe time.Duration) *AdmissionService {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "admission.db"), database.AdmissionMigrations, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewAdmissionRepository(db.DB)
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID: "E100", Name: "Alice Johnson", EntityType: models.EntityEmployee,
	}))
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID: "CONTRACTOR_7", Name: "Carol Deng", EntityType: models.EntityContractor,
	}))

	return NewAdmissionService(repo, cooldown, dedupe, zap.NewNop())
}

func TestAdmitThenReplayIsRejected(t *testing.T) {
	s := newTestAdmission(t, 4*time.Hour, time.Minute)
	ref := models.SubjectRef{EmployeeID: "E100"}

	first, err := s.Admit(ref, models.SourceQR, 1)
	require.NoError(t, err)
	require.True(t, first.Accepted)
	require.NotNil(t, first.Visit)

	second, err := s.Admit(ref, models.SourceQR, 1)
	require.NoError(t, err)
	require.False(t, second.Accepted, "replay within the window must not create a second visit")
	require.NotNil(t, second.CooldownEndsAt)
	assert.WithinDuration(t, first.Visit.VisitedAt.Add(4*time.Hour), *second.CooldownEndsAt, time.Second)
}

func TestCheckAdmissionReflectsCooldown(t *testing.T) {
	s := newTestAdmission(t, 4*time.Hour, time.Minute)
	ref := models.SubjectRef{EmployeeID: "E100"}

	status, err := s.CheckAdmission(ref)
	require.NoError(t, err)
	assert.False(t, status.AlreadyAdmitted)
	assert.Nil(t, status.LastAdmittedAt)

	_, err = s.Admit(ref, models.SourceQR, 0)
	require.NoError(t, err)

	status, err = s.CheckAdmission(ref)
	require.NoError(t, err)
	assert.True(t, status.AlreadyAdmitted)
	require.NotNil(t, status.CooldownEndsAt)
	require.NotNil(t, status.LastAdmittedAt)
}

func TestDedupeWindowBackstopsShortCooldown(t *testing.T) {
	// With the business cooldown effectively disabled, the anti-replay
	// window still collapses near-simultaneous duplicates.
	s := newTestAdmission(t, 0, time.Minute)
	ref := models.SubjectRef{EmployeeID: "E100"}

	first, err := s.Admit(ref, models.SourceQR, 0)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := s.Admit(ref, models.SourceQR, 0)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
}

func TestAdmitContractorIgnoresGuests(t *testing.T) {
	s := newTestAdmission(t, 4*time.Hour, time.Minute)

	result, err := s.Admit(models.SubjectRef{ContractorID: "7"}, models.SourceManual, 5)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	assert.Equal(t, 0, result.Visit.GuestCount, "guests ride on employee accounts only")
}

func TestAdmitValidation(t *testing.T) {
	s := newTestAdmission(t, 4*time.Hour, time.Minute)

	_, err := s.Admit(models.SubjectRef{}, models.SourceQR, 0)
	assert.ErrorIs(t, err, models.ErrInvalidSubjectRef)

	_, err = s.Admit(models.SubjectRef{EmployeeID: "E100", ContractorID: "7"}, models.SourceQR, 0)
	assert.ErrorIs(t, err, models.ErrInvalidSubjectRef)

	_, err = s.Admit(models.SubjectRef{EmployeeID: "E999"}, models.SourceQR, 0)
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = s.Admit(models.SubjectRef{EmployeeID: "E100"}, models.SourceQR, -1)
	assert.Error(t, err)
}
