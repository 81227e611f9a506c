package database

// KioskMigrations creates the kiosk-local durable state: the pending
// check-in queue, the cached subject snapshot and the local check-in
// history. Restart recovers exactly the prior state from these tables.
var KioskMigrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	// Pending check-in queue
	`CREATE TABLE IF NOT EXISTS pending_checkins (
		id TEXT PRIMARY KEY,
		subject_key TEXT NOT NULL,
		qr_payload TEXT NOT NULL DEFAULT '',
		employee_id TEXT NOT NULL DEFAULT '',
		contractor_id TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL,
		guest_count INTEGER NOT NULL DEFAULT 0,
		enqueued_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_checkins_subject ON pending_checkins(subject_key)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_checkins_enqueued ON pending_checkins(enqueued_at)`,
	// Cached subject snapshot for offline search
	`CREATE TABLE IF NOT EXISTS cached_subjects (
		subject_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT,
		entity_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// Local check-in history for offline cooldown estimates
	`CREATE TABLE IF NOT EXISTS local_checkins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		checked_in_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_local_checkins_subject ON local_checkins(subject_id, checked_in_at)`,
}

// AdmissionMigrations creates the server-side admission store: the subject
// roster, the visit log and the per-period meal-deduction aggregates.
var AdmissionMigrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		subject_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT,
		entity_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS visit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
		source_type TEXT NOT NULL,
		guest_count INTEGER NOT NULL DEFAULT 0,
		visited_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visit_logs_subject ON visit_logs(subject_id, visited_at)`,
	// One aggregate row per subject per accounting period (calendar month)
	`CREATE TABLE IF NOT EXISTS meal_deductions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
		period TEXT NOT NULL,
		meal_count INTEGER NOT NULL DEFAULT 0,
		guest_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(subject_id, period)
	)`,
}
