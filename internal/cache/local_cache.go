package cache

import (
	"database/sql"
	"strings"
	"time"

	"canteenhq/canteen-checkin/internal/models"

	"go.uber.org/zap"
)

const fetchedAtKey = "subjects_fetched_at"

// CooldownStatus is the offline estimate of a subject's cooldown state,
// computed from local check-in history. Never authoritative.
type CooldownStatus struct {
	InCooldown     bool
	CooldownEndsAt time.Time
}

// LocalCache persists a snapshot of known subjects for offline search and
// a rolling local check-in history for offline cooldown estimates.
// Persistence errors are logged and swallowed: cache unavailability must
// never block a check-in attempt, it only degrades offline accuracy.
type LocalCache struct {
	db          *sql.DB
	snapshotTTL time.Duration
	cooldown    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewLocalCache creates a cache over an opened kiosk database
func NewLocalCache(db *sql.DB, snapshotTTL, cooldown time.Duration, logger *zap.Logger) *LocalCache {
	return &LocalCache{
		db:          db,
		snapshotTTL: snapshotTTL,
		cooldown:    cooldown,
		logger:      logger,
		now:         time.Now,
	}
}

// CacheSubjects replaces the snapshot and stamps its fetch time
func (c *LocalCache) CacheSubjects(subjects []models.Subject) {
	tx, err := c.db.Begin()
	if err != nil {
		c.logger.Error("Failed to begin snapshot transaction", zap.Error(err))
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_subjects`); err != nil {
		c.logger.Error("Failed to clear subject snapshot", zap.Error(err))
		return
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cached_subjects (subject_id, name, department, entity_type)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		c.logger.Error("Failed to prepare snapshot insert", zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, s := range subjects {
		if _, err := stmt.Exec(s.SubjectID, s.Name, s.Department, s.EntityType); err != nil {
			c.logger.Error("Failed to cache subject", zap.Error(err), zap.String("subject_id", s.SubjectID))
		}
	}

	fetchedAt := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`
		INSERT INTO cache_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fetchedAtKey, fetchedAt); err != nil {
		c.logger.Error("Failed to stamp snapshot fetch time", zap.Error(err))
		return
	}

	if err := tx.Commit(); err != nil {
		c.logger.Error("Failed to commit subject snapshot", zap.Error(err))
		return
	}

	c.logger.Debug("Subject snapshot cached", zap.Int("count", len(subjects)))
}

// CachedSubjects returns the last snapshot regardless of expiry. The
// caller decides whether to trust a stale snapshot.
func (c *LocalCache) CachedSubjects() []models.Subject {
	rows, err := c.db.Query(`
		SELECT subject_id, name, department, entity_type
		FROM cached_subjects
		ORDER BY name ASC
	`)
	if err != nil {
		c.logger.Error("Failed to read subject snapshot", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		var s models.Subject
		if err := rows.Scan(&s.SubjectID, &s.Name, &s.Department, &s.EntityType); err != nil {
			c.logger.Error("Failed to scan cached subject", zap.Error(err))
			continue
		}
		subjects = append(subjects, s)
	}
	return subjects
}

// SnapshotFresh reports whether the snapshot is younger than its TTL
func (c *LocalCache) SnapshotFresh() bool {
	var value string
	err := c.db.QueryRow(`SELECT value FROM cache_meta WHERE key = ?`, fetchedAtKey).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Error("Failed to read snapshot fetch time", zap.Error(err))
		}
		return false
	}

	fetchedAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		c.logger.Error("Corrupted snapshot fetch time", zap.Error(err), zap.String("value", value))
		return false
	}

	return c.now().Sub(fetchedAt) < c.snapshotTTL
}

// SearchCachedSubjects does a case-insensitive substring match over the
// name and subject id fields. An empty query returns nothing: offline
// search must never accidentally surface the entire roster.
func (c *LocalCache) SearchCachedSubjects(query string) []models.Subject {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	needle := strings.ToLower(query)
	var matches []models.Subject
	for _, s := range c.CachedSubjects() {
		if strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.SubjectID), needle) {
			matches = append(matches, s)
		}
	}
	return matches
}

// RecordLocalCheckIn appends a local history entry stamped now
func (c *LocalCache) RecordLocalCheckIn(subjectID, sourceType string) {
	_, err := c.db.Exec(`
		INSERT INTO local_checkins (subject_id, source_type, checked_in_at)
		VALUES (?, ?, ?)
	`, subjectID, sourceType, c.now())
	if err != nil {
		c.logger.Error("Failed to record local check-in",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return
	}

	c.logger.Debug("Local check-in recorded",
		zap.String("subject_id", subjectID),
		zap.String("source_type", sourceType),
	)
}

// GetCooldownStatus estimates the cooldown state from the most recent
// local check-in record for the subject.
func (c *LocalCache) GetCooldownStatus(subjectID string) CooldownStatus {
	var last time.Time
	err := c.db.QueryRow(`
		SELECT checked_in_at FROM local_checkins
		WHERE subject_id = ?
		ORDER BY checked_in_at DESC
		LIMIT 1
	`, subjectID).Scan(&last)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Error("Failed to read local check-in history", zap.Error(err))
		}
		return CooldownStatus{}
	}

	endsAt := last.Add(c.cooldown)
	if c.now().Before(endsAt) {
		return CooldownStatus{InCooldown: true, CooldownEndsAt: endsAt}
	}
	return CooldownStatus{}
}

// PurgeExpired removes local check-in records older than the cooldown
// window. Called opportunistically on load.
func (c *LocalCache) PurgeExpired() {
	cutoff := c.now().Add(-c.cooldown)
	result, err := c.db.Exec(`DELETE FROM local_checkins WHERE checked_in_at < ?`, cutoff)
	if err != nil {
		c.logger.Error("Failed to purge expired local check-ins", zap.Error(err))
		return
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		c.logger.Debug("Purged expired local check-ins", zap.Int64("count", removed))
	}
}
