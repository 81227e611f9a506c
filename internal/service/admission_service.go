package service

import (
	"errors"
	"time"

	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/repository"

	"go.uber.org/zap"
)

// ErrSubjectNotFound is returned when no employee or contractor matches
// the reference.
var ErrSubjectNotFound = errors.New("employee or contractor not found")

// AdmissionStatus is the read-only answer to a check-only query
type AdmissionStatus struct {
	Subject         models.Subject
	AlreadyAdmitted bool
	LastAdmittedAt  *time.Time
	CooldownEndsAt  *time.Time
}

// AdmitResult is the outcome of an admit attempt
type AdmitResult struct {
	Accepted       bool
	Subject        models.Subject
	Visit          *models.VisitLog
	LastAdmittedAt *time.Time
	CooldownEndsAt *time.Time
}

// AdmissionService is the server-side authority: it accepts or rejects a
// check-in based on the rolling cooldown window and records the visit
// plus its accounting effect exactly once.
type AdmissionService struct {
	repo     *repository.AdmissionRepository
	cooldown time.Duration
	dedupe   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdmissionService creates the admission authority. cooldown is the
// business rule window; dedupe is the shorter anti-replay window that
// collapses near-simultaneous duplicates and only matters when it is
// longer than the configured cooldown.
func NewAdmissionService(repo *repository.AdmissionRepository, cooldown, dedupe time.Duration, logger *zap.Logger) *AdmissionService {
	return &AdmissionService{
		repo:     repo,
		cooldown: cooldown,
		dedupe:   dedupe,
		logger:   logger,
		now:      time.Now,
	}
}

// barrier is the effective rejection window for an admit
func (s *AdmissionService) barrier() time.Duration {
	if s.cooldown < s.dedupe {
		return s.dedupe
	}
	return s.cooldown
}

// CheckAdmission reports whether the subject is inside the cooldown
// window. Read-only, no side effects.
func (s *AdmissionService) CheckAdmission(ref models.SubjectRef) (*AdmissionStatus, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	subject, err := s.repo.FindSubjectByRef(ref)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}

	status := &AdmissionStatus{Subject: *subject}

	last, err := s.repo.LastVisit(subject.SubjectID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		status.LastAdmittedAt = last
		endsAt := last.Add(s.barrier())
		if s.now().Before(endsAt) {
			status.AlreadyAdmitted = true
			status.CooldownEndsAt = &endsAt
		}
	}

	return status, nil
}

// Admit attempts to record a visit. Idempotent under replay within the
// cooldown window: a queued operation whose live counterpart already
// succeeded is rejected here instead of double-counting the deduction.
func (s *AdmissionService) Admit(ref models.SubjectRef, sourceType string, guestCount int) (*AdmitResult, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if guestCount < 0 {
		return nil, errors.New("guest count must not be negative")
	}
	if sourceType != models.SourceQR && sourceType != models.SourceManual {
		sourceType = models.SourceManual
	}

	subject, err := s.repo.FindSubjectByRef(ref)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}

	// Guests ride on employee accounts only
	if subject.EntityType == models.EntityContractor {
		guestCount = 0
	}

	visit, blocking, err := s.repo.RecordVisit(subject.SubjectID, sourceType, guestCount, s.barrier(), s.now())
	if err != nil {
		return nil, err
	}

	if visit == nil {
		endsAt := blocking.Add(s.barrier())
		s.logger.Info("Check-in rejected, subject in cooldown",
			zap.String("subject_id", subject.SubjectID),
			zap.Time("cooldown_ends_at", endsAt),
		)
		return &AdmitResult{
			Accepted:       false,
			Subject:        *subject,
			LastAdmittedAt: blocking,
			CooldownEndsAt: &endsAt,
		}, nil
	}

	s.logger.Info("Check-in admitted",
		zap.String("subject_id", subject.SubjectID),
		zap.String("source_type", sourceType),
		zap.Int("guest_count", guestCount),
	)
	return &AdmitResult{
		Accepted: true,
		Subject:  *subject,
		Visit:    visit,
	}, nil
}

// Search answers roster queries for the kiosk
func (s *AdmissionService) Search(query string) ([]models.Subject, error) {
	return s.repo.SearchSubjects(query)
}
