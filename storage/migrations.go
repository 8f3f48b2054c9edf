package storage

import "fmt"

// migrations run in order; PRAGMA user_version tracks the last applied index.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS admin_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'info',
		category TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL,
		risk_score REAL NOT NULL DEFAULT 0,
		geo TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_logs_correlation ON admin_logs(correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_logs_created ON admin_logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_logs_severity ON admin_logs(severity)`,
	`CREATE TABLE IF NOT EXISTS security_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		log_id INTEGER REFERENCES admin_logs(id),
		event_type TEXT NOT NULL,
		threat_level TEXT NOT NULL DEFAULT 'medium',
		detection_rule TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		false_positive INTEGER NOT NULL DEFAULT 0,
		resolved_by TEXT NOT NULL DEFAULT '',
		resolved_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_correlation ON security_events(correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_created ON security_events(created_at)`,
	`CREATE TABLE IF NOT EXISTS log_alert_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_name TEXT NOT NULL,
		conditions TEXT NOT NULL,
		notification_channels TEXT NOT NULL DEFAULT '[]',
		enabled INTEGER NOT NULL DEFAULT 1,
		severity_threshold TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.WriteDB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.WriteDB.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
		if _, err := s.WriteDB.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("failed to bump schema version to %d: %w", i+1, err)
		}
	}
	if version < len(migrations) {
		s.Logger.Infow("Applied schema migrations", "from", version, "to", len(migrations))
	}
	return nil
}
