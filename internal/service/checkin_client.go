package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"canteenhq/canteen-checkin/internal/cache"
	"canteenhq/canteen-checkin/internal/client"
	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/netmon"
	"canteenhq/canteen-checkin/internal/queue"

	"go.uber.org/zap"
)

// AdmissionAPI is the slice of the backend the orchestrator needs
type AdmissionAPI interface {
	CheckAdmission(ref models.SubjectRef) (*models.CheckStatusResponse, error)
	Commit(ref models.SubjectRef, sourceType string, guestCount int) (*models.CheckInResponse, error)
	SearchSubjects(query string) ([]models.Subject, error)
}

// Request is a check-in attempt from the kiosk UI
type Request struct {
	Ref        models.SubjectRef
	SourceType string
	GuestCount int
}

// OutcomeKind classifies the result of a check-in attempt
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeRestricted OutcomeKind = "restricted"
	OutcomeQueued     OutcomeKind = "queued"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome is the result of CheckIn. These four variants are the only
// things the UI ever sees; transport and storage errors never escape.
type Outcome struct {
	Kind           OutcomeKind     `json:"kind"`
	Subject        *models.Subject `json:"subject,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CooldownEndsAt *time.Time      `json:"cooldownEndsAt,omitempty"`
	// Authoritative is false when a restriction comes from the local
	// history estimate rather than the server.
	Authoritative bool `json:"authoritative"`
}

// SyncReport summarizes one reconciliation pass for UI display
type SyncReport struct {
	Ran       bool `json:"ran"`
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
}

// CheckInClient orchestrates check-in attempts across the network
// monitor, the local cache and the pending queue, and reconciles the
// queue against the server once connectivity returns.
type CheckInClient struct {
	api     AdmissionAPI
	queue   *queue.PendingQueue
	cache   *cache.LocalCache
	network *netmon.Monitor
	retry   RetryPolicy
	logger  *zap.Logger

	syncInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	syncing  bool

	unsubscribe func()
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewCheckInClient creates the orchestrator. All collaborators are
// injected; the client owns no global state.
func NewCheckInClient(
	api AdmissionAPI,
	pending *queue.PendingQueue,
	localCache *cache.LocalCache,
	network *netmon.Monitor,
	retry RetryPolicy,
	syncInterval time.Duration,
	logger *zap.Logger,
) *CheckInClient {
	return &CheckInClient{
		api:          api,
		queue:        pending,
		cache:        localCache,
		network:      network,
		retry:        retry,
		logger:       logger,
		syncInterval: syncInterval,
		now:          time.Now,
		inFlight:     make(map[string]struct{}),
		stopChan:     make(chan struct{}),
	}
}

// CheckIn processes one check-in attempt. Expected conditions
// (restriction, queueing) are outcomes, never errors.
func (c *CheckInClient) CheckIn(req Request) Outcome {
	if err := req.Ref.Validate(); err != nil {
		return Outcome{Kind: OutcomeFailed, Reason: err.Error()}
	}
	if req.GuestCount < 0 {
		return Outcome{Kind: OutcomeFailed, Reason: "guest count must not be negative"}
	}
	if req.SourceType == "" {
		req.SourceType = models.SourceManual
	}

	key := req.Ref.Key()

	// Reject overlapping in-flight calls for the same subject instead of
	// racing two requests (double-tap, scanner re-fire).
	c.mu.Lock()
	if _, busy := c.inFlight[key]; busy {
		c.mu.Unlock()
		return Outcome{Kind: OutcomeFailed, Reason: "already processing"}
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	if c.network.IsOnline() {
		outcome, fellOffline := c.attemptLive(req)
		if !fellOffline {
			return outcome
		}
	}

	return c.queueOffline(req)
}

// attemptLive runs the two-phase online path: check admission first so
// the UI gets a distinct "already checked in" answer, then commit. A
// transport failure at either step falls back to the offline path.
func (c *CheckInClient) attemptLive(req Request) (Outcome, bool) {
	status, err := c.api.CheckAdmission(req.Ref)
	if err != nil {
		if isTransport(err) {
			c.network.ReportFailure()
			return Outcome{}, true
		}
		return c.failedOutcome(err), false
	}
	c.network.ReportSuccess()

	if status.AlreadyCheckedIn {
		return Outcome{
			Kind:           OutcomeRestricted,
			Reason:         "already checked in within cooldown window",
			CooldownEndsAt: status.CooldownEndsAt,
			Authoritative:  true,
		}, false
	}

	resp, err := c.api.Commit(req.Ref, req.SourceType, req.GuestCount)
	if err != nil {
		if isTransport(err) {
			c.network.ReportFailure()
			return Outcome{}, true
		}

		var restricted *client.RestrictedError
		if errors.As(err, &restricted) {
			// Lost a race between the check and the commit
			return Outcome{
				Kind:           OutcomeRestricted,
				Reason:         restricted.Message,
				CooldownEndsAt: restricted.CooldownEndsAt,
				Authoritative:  true,
			}, false
		}
		return c.failedOutcome(err), false
	}
	c.network.ReportSuccess()

	subjectID := req.Ref.Key()
	if resp.Data != nil {
		subjectID = resp.Data.SubjectID
	}
	c.cache.RecordLocalCheckIn(subjectID, req.SourceType)

	c.logger.Info("Check-in accepted",
		zap.String("subject_id", subjectID),
		zap.String("source_type", req.SourceType),
	)
	return Outcome{Kind: OutcomeSuccess, Subject: resp.Data, Authoritative: true}, false
}

// queueOffline handles the offline path: estimate the cooldown from
// local history, otherwise enqueue for later reconciliation.
func (c *CheckInClient) queueOffline(req Request) Outcome {
	key := req.Ref.Key()

	if cs := c.cache.GetCooldownStatus(key); cs.InCooldown {
		endsAt := cs.CooldownEndsAt
		return Outcome{
			Kind:           OutcomeRestricted,
			Reason:         "already checked in recently (local estimate)",
			CooldownEndsAt: &endsAt,
			Authoritative:  false,
		}
	}

	op := models.NewQueuedCheckIn(req.Ref, req.SourceType, req.GuestCount, c.now())
	if err := c.queue.Enqueue(op); err != nil {
		// Degraded mode: report queued optimistically. If the store is
		// truly gone the attempt is lost, which we accept over blocking
		// the scan line.
		c.logger.Error("Failed to persist queued check-in",
			zap.Error(err),
			zap.String("subject_key", key),
		)
	}
	c.cache.RecordLocalCheckIn(key, req.SourceType)

	return Outcome{
		Kind:   OutcomeQueued,
		Reason: "backend unreachable, check-in stored for sync",
	}
}

func (c *CheckInClient) failedOutcome(err error) Outcome {
	var notFound *client.NotFoundError
	if errors.As(err, &notFound) {
		return Outcome{Kind: OutcomeFailed, Reason: notFound.Message}
	}
	var validation *client.ValidationError
	if errors.As(err, &validation) {
		return Outcome{Kind: OutcomeFailed, Reason: validation.Message}
	}
	c.logger.Error("Check-in failed", zap.Error(err))
	return Outcome{Kind: OutcomeFailed, Reason: err.Error()}
}

type replayClass int

const (
	replaySuccess replayClass = iota
	replaySkipped
	replayFailed
)

// SyncQueue drains the pending queue against the server. Single-flight: a
// second call while one is running returns immediately with Ran=false.
// Per-item errors end up in the report, never as a returned error.
func (c *CheckInClient) SyncQueue() SyncReport {
	c.mu.Lock()
	if c.syncing {
		c.mu.Unlock()
		return SyncReport{}
	}
	c.syncing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	if !c.network.IsOnline() {
		return SyncReport{}
	}

	ops, err := c.queue.List()
	if err != nil {
		c.logger.Error("Failed to load pending queue for sync", zap.Error(err))
		return SyncReport{Ran: true}
	}

	report := SyncReport{Ran: true}
	handled := make(map[string]bool)

	for _, op := range ops {
		// If a replay flipped us offline, leave the rest pending
		if !c.network.IsOnline() {
			break
		}

		report.Processed++
		key := op.Ref.Key()

		// A stale duplicate that slipped past enqueue dedupe: the subject
		// was already reconciled earlier in this pass.
		if handled[key] {
			c.removeQueued(op.ID)
			report.Skipped++
			continue
		}

		class, replayErr := c.replay(op)
		switch class {
		case replaySuccess:
			c.removeQueued(op.ID)
			handled[key] = true
			report.Succeeded++
		case replaySkipped:
			c.removeQueued(op.ID)
			handled[key] = true
			report.Skipped++
		case replayFailed:
			report.Failed++
			if err := c.queue.UpdateStatus(op.ID, models.QueueStatusFailed, replayErr); err != nil {
				c.logger.Error("Failed to record sync failure", zap.Error(err), zap.String("id", op.ID))
			}
		}
	}

	c.logger.Info("Queue sync completed",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

// replay pushes one queued operation through the same check-then-commit
// path as a live check-in. The server re-validates: the local cooldown
// estimate is never trusted here.
func (c *CheckInClient) replay(op models.QueuedCheckIn) (replayClass, error) {
	var status *models.CheckStatusResponse
	err := c.retry.Do(func() error {
		s, err := c.api.CheckAdmission(op.Ref)
		if err != nil {
			return err
		}
		status = s
		return nil
	}, isTransport)
	if err != nil {
		if isTransport(err) {
			c.network.ReportFailure()
		}
		return replayFailed, err
	}

	if status.AlreadyCheckedIn {
		// The effect already exists server-side (the live call got
		// through before connectivity visibly dropped).
		return replaySkipped, nil
	}

	err = c.retry.Do(func() error {
		_, err := c.api.Commit(op.Ref, op.SourceType, op.GuestCount)
		return err
	}, isTransport)
	if err != nil {
		var restricted *client.RestrictedError
		if errors.As(err, &restricted) {
			return replaySkipped, nil
		}
		if isTransport(err) {
			c.network.ReportFailure()
		}
		return replayFailed, err
	}

	c.cache.RecordLocalCheckIn(op.Ref.Key(), op.SourceType)
	return replaySuccess, nil
}

func (c *CheckInClient) removeQueued(id string) {
	if err := c.queue.Remove(id); err != nil {
		c.logger.Error("Failed to remove reconciled check-in", zap.Error(err), zap.String("id", id))
	}
}

// Search answers a roster query, server-side when online and from the
// cached snapshot otherwise.
func (c *CheckInClient) Search(query string) []models.Subject {
	if c.network.IsOnline() {
		subjects, err := c.api.SearchSubjects(query)
		if err == nil {
			c.network.ReportSuccess()
			return subjects
		}
		if isTransport(err) {
			c.network.ReportFailure()
		} else {
			c.logger.Error("Search failed", zap.Error(err))
		}
	}
	return c.cache.SearchCachedSubjects(query)
}

// RefreshSnapshot fetches the full roster into the offline cache
func (c *CheckInClient) RefreshSnapshot() error {
	subjects, err := c.api.SearchSubjects("")
	if err != nil {
		if isTransport(err) {
			c.network.ReportFailure()
		}
		return fmt.Errorf("failed to refresh subject snapshot: %w", err)
	}
	c.network.ReportSuccess()
	c.cache.CacheSubjects(subjects)
	c.logger.Info("Subject snapshot refreshed", zap.Int("count", len(subjects)))
	return nil
}

// Status reports kiosk state for the UI
func (c *CheckInClient) Status() map[string]interface{} {
	pending, err := c.queue.PendingCount()
	if err != nil {
		c.logger.Error("Failed to read pending count", zap.Error(err))
	}
	return map[string]interface{}{
		"online":         c.network.IsOnline(),
		"pending":        pending,
		"snapshot_fresh": c.cache.SnapshotFresh(),
	}
}

// Start purges expired local history, subscribes to online transitions
// and launches the background sync loop.
func (c *CheckInClient) Start() {
	c.cache.PurgeExpired()

	c.unsubscribe = c.network.OnOnline(func() {
		go func() {
			if !c.cache.SnapshotFresh() {
				if err := c.RefreshSnapshot(); err != nil {
					c.logger.Warn("Snapshot refresh on reconnect failed", zap.Error(err))
				}
			}
			c.SyncQueue()
		}()
	})

	if !c.cache.SnapshotFresh() {
		go func() {
			if err := c.RefreshSnapshot(); err != nil {
				c.logger.Warn("Initial snapshot refresh failed", zap.Error(err))
			}
		}()
	}

	c.wg.Add(1)
	go c.syncLoop()

	c.logger.Info("Check-in client started")
}

// Stop terminates the background sync loop after one final drain attempt
func (c *CheckInClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.wg.Wait()
	c.logger.Info("Check-in client stopped")
}

func (c *CheckInClient) syncLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if pending, err := c.queue.PendingCount(); err == nil && pending > 0 {
				c.SyncQueue()
			}
		case <-c.stopChan:
			// One last drain before shutdown
			c.SyncQueue()
			return
		}
	}
}

func isTransport(err error) bool {
	var te *client.TransportError
	return errors.As(err, &te)
}
