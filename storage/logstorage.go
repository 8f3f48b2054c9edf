package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"logwarden/core"

	"go.uber.org/zap"
)

// LogStorage handles log entry persistence.
type LogStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewLogStorage creates a log entry storage handler.
func NewLogStorage(sqlite *SQLite, logger *zap.SugaredLogger) *LogStorage {
	return &LogStorage{sqlite: sqlite, logger: logger}
}

const logColumns = `id, actor_id, action, target_type, target_id, details, severity,
		category, ip_address, user_agent, session_id, correlation_id,
		risk_score, geo, metadata, created_at`

// InsertLogEntry persists an entry and sets its generated ID. The entry must
// already be normalized (severity, timestamp, correlation id).
func (ls *LogStorage) InsertLogEntry(ctx context.Context, e *core.LogEntry) error {
	var geoJSON, metadataJSON sql.NullString
	if e.Geo != nil {
		data, err := json.Marshal(e.Geo)
		if err != nil {
			return fmt.Errorf("failed to marshal geo location: %w", err)
		}
		geoJSON = sql.NullString{String: string(data), Valid: true}
	}
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	result, err := ls.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO admin_logs (actor_id, action, target_type, target_id, details,
			severity, category, ip_address, user_agent, session_id,
			correlation_id, risk_score, geo, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ActorID, e.Action, e.TargetType, e.TargetID, e.Details,
		e.Severity, e.Category, e.IPAddress, e.UserAgent, e.SessionID,
		e.CorrelationID, e.RiskScore, geoJSON, metadataJSON, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted log id: %w", err)
	}
	e.ID = id
	return nil
}

// buildLogFilterClause translates filters into a WHERE clause and arguments.
func buildLogFilterClause(f core.LogFilters) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action LIKE ?")
		args = append(args, "%"+f.Action+"%")
	}
	if f.Query != "" {
		clauses = append(clauses, "(details LIKE ? OR metadata LIKE ?)")
		needle := "%" + f.Query + "%"
		args = append(args, needle, needle)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListLogEntries returns a filtered page of entries, newest first, along with
// the total matching count.
func (ls *LogStorage) ListLogEntries(ctx context.Context, f core.LogFilters) ([]core.LogEntry, int64, error) {
	f.Normalize()
	where, args := buildLogFilterClause(f)

	var total int64
	if err := ls.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count log entries: %w", err)
	}

	query := "SELECT " + logColumns + " FROM admin_logs" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := ls.sqlite.ReadDB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanLogEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GetLogEntriesByCorrelation returns all entries sharing a correlation id,
// oldest first.
func (ls *LogStorage) GetLogEntriesByCorrelation(ctx context.Context, correlationID string) ([]core.LogEntry, error) {
	query := "SELECT " + logColumns + " FROM admin_logs WHERE correlation_id = ? ORDER BY created_at ASC, id ASC"
	rows, err := ls.sqlite.ReadDB.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlated log entries: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// GetRecentLogEntries returns the newest limit entries for export.
func (ls *LogStorage) GetRecentLogEntries(ctx context.Context, limit int) ([]core.LogEntry, error) {
	query := "SELECT " + logColumns + " FROM admin_logs ORDER BY created_at DESC, id DESC LIMIT ?"
	rows, err := ls.sqlite.ReadDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent log entries: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// GetTrend buckets entry counts by day or hour over [from, to]. Buckets with
// no entries are omitted.
func (ls *LogStorage) GetTrend(ctx context.Context, f core.LogFilters, bucket string) ([]core.TrendBucket, error) {
	var format string
	switch bucket {
	case core.BucketDay:
		format = "%Y-%m-%d"
	case core.BucketHour:
		format = "%Y-%m-%dT%H"
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
	}

	where, args := buildLogFilterClause(core.LogFilters{From: f.From, To: f.To})
	query := fmt.Sprintf(`
		SELECT strftime('%s', created_at) AS bucket, COUNT(*) AS count
		FROM admin_logs%s
		GROUP BY bucket
		ORDER BY bucket ASC`, format, where)

	rows, err := ls.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend buckets: %w", err)
	}
	defer rows.Close()

	var buckets []core.TrendBucket
	for rows.Next() {
		var b core.TrendBucket
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trend bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetStats summarizes log activity over an optional time window.
func (ls *LogStorage) GetStats(ctx context.Context, f core.LogFilters) (*core.LogStats, error) {
	where, args := buildLogFilterClause(core.LogFilters{From: f.From, To: f.To})

	stats := &core.LogStats{
		BySeverity: make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	row := ls.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT CASE WHEN actor_id != '' THEN actor_id END),
		       COUNT(DISTINCT CASE WHEN ip_address != '' THEN ip_address END)
		FROM admin_logs`+where, args...)
	if err := row.Scan(&stats.Total, &stats.UniqueActors, &stats.UniqueIPs); err != nil {
		return nil, fmt.Errorf("failed to query log totals: %w", err)
	}

	sevRows, err := ls.sqlite.ReadDB.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM admin_logs"+where+" GROUP BY severity", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query severity breakdown: %w", err)
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var count int64
		if err := sevRows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity breakdown: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := sevRows.Err(); err != nil {
		return nil, err
	}

	catWhere := " WHERE category != ''"
	if where != "" {
		catWhere = where + " AND category != ''"
	}
	catRows, err := ls.sqlite.ReadDB.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM admin_logs"+catWhere+" GROUP BY category", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query category breakdown: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var category string
		var count int64
		if err := catRows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category breakdown: %w", err)
		}
		stats.ByCategory[category] = count
	}
	return stats, catRows.Err()
}

func scanLogEntries(rows *sql.Rows) ([]core.LogEntry, error) {
	var entries []core.LogEntry
	for rows.Next() {
		var e core.LogEntry
		var geoJSON, metadataJSON sql.NullString
		var createdAt string
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID,
			&e.Details, &e.Severity, &e.Category, &e.IPAddress, &e.UserAgent,
			&e.SessionID, &e.CorrelationID, &e.RiskScore, &geoJSON, &metadataJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		if geoJSON.Valid && geoJSON.String != "" {
			if err := json.Unmarshal([]byte(geoJSON.String), &e.Geo); err != nil {
				return nil, fmt.Errorf("failed to parse geo location: %w", err)
			}
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
