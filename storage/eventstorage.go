package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"logwarden/core"

	"go.uber.org/zap"
)

// EventStorage handles security event persistence. Events are append-only;
// resolution is the only permitted mutation and deletion is not offered.
type EventStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewEventStorage creates a security event storage handler.
func NewEventStorage(sqlite *SQLite, logger *zap.SugaredLogger) *EventStorage {
	return &EventStorage{sqlite: sqlite, logger: logger}
}

const eventColumns = `id, log_id, event_type, threat_level, detection_rule,
		correlation_id, resolution, false_positive, resolved_by, resolved_at, created_at`

// InsertSecurityEvent persists an event and sets its generated ID.
func (es *EventStorage) InsertSecurityEvent(ctx context.Context, ev *core.SecurityEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var logID sql.NullInt64
	if ev.LogID != nil {
		logID = sql.NullInt64{Int64: *ev.LogID, Valid: true}
	}
	result, err := es.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO security_events (log_id, event_type, threat_level,
			detection_rule, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		logID, ev.EventType, ev.ThreatLevel, ev.DetectionRule,
		ev.CorrelationID, formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted event id: %w", err)
	}
	ev.ID = id
	return nil
}

// GetSecurityEvent retrieves one event by ID.
func (es *EventStorage) GetSecurityEvent(ctx context.Context, id int64) (*core.SecurityEvent, error) {
	row := es.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM security_events WHERE id = ?", id)
	ev, err := scanSecurityEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security event: %w", err)
	}
	return ev, nil
}

// ListSecurityEvents returns a page of events, newest first, with the total
// count. unresolvedOnly limits the listing to open events.
func (es *EventStorage) ListSecurityEvents(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]core.SecurityEvent, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	where := ""
	if unresolvedOnly {
		where = " WHERE resolved_at IS NULL"
	}

	var total int64
	if err := es.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM security_events"+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count security events: %w", err)
	}

	rows, err := es.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM security_events"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events, err := scanSecurityEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// GetSecurityEventsByCorrelation returns all events sharing a correlation id,
// oldest first.
func (es *EventStorage) GetSecurityEventsByCorrelation(ctx context.Context, correlationID string) ([]core.SecurityEvent, error) {
	rows, err := es.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM security_events WHERE correlation_id = ? ORDER BY created_at ASC, id ASC",
		correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlated security events: %w", err)
	}
	defer rows.Close()
	return scanSecurityEvents(rows)
}

// ResolveSecurityEvent marks an event resolved with notes and an optional
// false-positive flag. Resolving an already-resolved event fails with
// ErrEventResolved.
func (es *EventStorage) ResolveSecurityEvent(ctx context.Context, id int64, notes string, falsePositive bool, resolvedBy string) (*core.SecurityEvent, error) {
	result, err := es.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE security_events
		SET resolution = ?, false_positive = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`,
		notes, boolToInt(falsePositive), resolvedBy, formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve security event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check resolve result: %w", err)
	}
	if affected == 0 {
		if _, err := es.GetSecurityEvent(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrEventResolved
	}
	return es.GetSecurityEvent(ctx, id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecurityEventInto(scanner rowScanner, ev *core.SecurityEvent) error {
	var logID sql.NullInt64
	var resolvedAt sql.NullString
	var falsePositive int
	var createdAt string
	if err := scanner.Scan(
		&ev.ID, &logID, &ev.EventType, &ev.ThreatLevel, &ev.DetectionRule,
		&ev.CorrelationID, &ev.Resolution, &falsePositive, &ev.ResolvedBy,
		&resolvedAt, &createdAt,
	); err != nil {
		return err
	}
	if logID.Valid {
		id := logID.Int64
		ev.LogID = &id
	}
	ev.FalsePositive = falsePositive != 0
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return fmt.Errorf("failed to parse resolved_at: %w", err)
		}
		ev.ResolvedAt = &t
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	ev.CreatedAt = t
	return nil
}

func scanSecurityEvent(row *sql.Row) (*core.SecurityEvent, error) {
	var ev core.SecurityEvent
	if err := scanSecurityEventInto(row, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func scanSecurityEvents(rows *sql.Rows) ([]core.SecurityEvent, error) {
	var events []core.SecurityEvent
	for rows.Next() {
		var ev core.SecurityEvent
		if err := scanSecurityEventInto(rows, &ev); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
