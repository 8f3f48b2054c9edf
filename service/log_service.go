package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"logwarden/core"
	"logwarden/metrics"

	"go.uber.org/zap"
)

// ErrInvalidInput marks request-level validation failures. Handlers map it to
// a 400 response.
var ErrInvalidInput = errors.New("invalid input")

// Export limits.
const (
	DefaultExportRows = 1000
	MaxExportRows     = 10000
)

// LogStore defines the log persistence operations the service needs. Defined
// here, on the consumer side.
type LogStore interface {
	InsertLogEntry(ctx context.Context, e *core.LogEntry) error
	ListLogEntries(ctx context.Context, f core.LogFilters) ([]core.LogEntry, int64, error)
	GetLogEntriesByCorrelation(ctx context.Context, correlationID string) ([]core.LogEntry, error)
	GetRecentLogEntries(ctx context.Context, limit int) ([]core.LogEntry, error)
	GetTrend(ctx context.Context, f core.LogFilters, bucket string) ([]core.TrendBucket, error)
	GetStats(ctx context.Context, f core.LogFilters) (*core.LogStats, error)
}

// EventStore defines the security event reads the service needs.
type EventStore interface {
	GetSecurityEventsByCorrelation(ctx context.Context, correlationID string) ([]core.SecurityEvent, error)
	ListSecurityEvents(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]core.SecurityEvent, int64, error)
	ResolveSecurityEvent(ctx context.Context, id int64, notes string, falsePositive bool, resolvedBy string) (*core.SecurityEvent, error)
}

// Evaluator schedules background threat detection and rule evaluation for a
// persisted entry.
type Evaluator interface {
	Enqueue(entry *core.LogEntry)
}

// Broadcaster pushes best-effort messages to live subscribers by topic.
type Broadcaster interface {
	Broadcast(topic, messageType string, payload interface{})
}

// LogService owns the ingestion path and all log-derived read models:
// listings, correlation timelines, trends, stats and exports.
type LogService struct {
	logs        LogStore
	events      EventStore
	evaluator   Evaluator
	broadcaster Broadcaster
	logger      *zap.SugaredLogger
}

// NewLogService creates the log service. The broadcaster may be nil when no
// live transport is attached.
func NewLogService(logs LogStore, events EventStore, evaluator Evaluator, broadcaster Broadcaster, logger *zap.SugaredLogger) *LogService {
	return &LogService{
		logs:        logs,
		events:      events,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// IngestResult is what the ingesting caller gets back synchronously. Alerting
// outcomes are never part of it; evaluation runs in the background.
type IngestResult struct {
	ID            int64  `json:"id"`
	CorrelationID string `json:"correlation_id"`
}

// Ingest normalizes and persists an entry, then hands it to the background
// evaluator. Persistence failure is the only error the caller sees.
func (s *LogService) Ingest(ctx context.Context, entry *core.LogEntry) (*IngestResult, error) {
	if entry.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	entry.Normalize()

	if err := s.logs.InsertLogEntry(ctx, entry); err != nil {
		metrics.IngestFailures.Inc()
		return nil, fmt.Errorf("failed to persist log entry: %w", err)
	}
	metrics.LogsIngested.WithLabelValues(entry.Severity).Inc()

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(core.TopicLogStream, core.MessageLogNew, entry)
	}
	s.evaluator.Enqueue(entry)

	return &IngestResult{ID: entry.ID, CorrelationID: entry.CorrelationID}, nil
}

// LogPage is a filtered listing plus the total matching count.
type LogPage struct {
	Entries []core.LogEntry `json:"entries"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Search returns a filtered page of entries, newest first.
func (s *LogService) Search(ctx context.Context, f core.LogFilters) (*LogPage, error) {
	f.Normalize()
	entries, total, err := s.logs.ListLogEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []core.LogEntry{}
	}
	return &LogPage{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Timeline returns the merged chronological view of everything that shares a
// correlation id: the log entries and the security events they produced.
func (s *LogService) Timeline(ctx context.Context, correlationID string) ([]core.TimelineItem, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrInvalidInput)
	}
	logs, err := s.logs.GetLogEntriesByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.GetSecurityEventsByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return core.MergeTimeline(logs, events), nil
}

// Trends buckets entry counts by day or hour over the filter window.
func (s *LogService) Trends(ctx context.Context, f core.LogFilters, bucket string) ([]core.TrendBucket, error) {
	buckets, err := s.logs.GetTrend(ctx, f, bucket)
	if err != nil {
		return nil, err
	}
	if buckets == nil {
		buckets = []core.TrendBucket{}
	}
	return buckets, nil
}

// Stats summarizes log activity over the filter window.
func (s *LogService) Stats(ctx context.Context, f core.LogFilters) (*core.LogStats, error) {
	return s.logs.GetStats(ctx, f)
}

// ClampExportLimit applies the export row defaults and cap.
func ClampExportLimit(limit int) int {
	if limit <= 0 {
		return DefaultExportRows
	}
	if limit > MaxExportRows {
		return MaxExportRows
	}
	return limit
}

var exportHeader = []string{
	"id", "created_at", "actor_id", "action", "target_type", "target_id",
	"severity", "category", "ip_address", "correlation_id", "risk_score", "details",
}

// ExportCSV streams the newest limit entries as CSV.
func (s *LogService) ExportCSV(ctx context.Context, limit int, w io.Writer) error {
	entries, err := s.logs.GetRecentLogEntries(ctx, ClampExportLimit(limit))
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			e.ActorID,
			e.Action,
			e.TargetType,
			e.TargetID,
			e.Severity,
			e.Category,
			e.IPAddress,
			e.CorrelationID,
			strconv.FormatFloat(e.RiskScore, 'f', -1, 64),
			e.Details,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON streams the newest limit entries as a JSON array.
func (s *LogService) ExportJSON(ctx context.Context, limit int, w io.Writer) error {
	entries, err := s.logs.GetRecentLogEntries(ctx, ClampExportLimit(limit))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []core.LogEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// EventPage is a security event listing plus the total count.
type EventPage struct {
	Events []core.SecurityEvent `json:"events"`
	Total  int64                `json:"total"`
}

// ListEvents returns a page of security events, newest first.
func (s *LogService) ListEvents(ctx context.Context, unresolvedOnly bool, limit, offset int) (*EventPage, error) {
	events, total, err := s.events.ListSecurityEvents(ctx, unresolvedOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []core.SecurityEvent{}
	}
	return &EventPage{Events: events, Total: total}, nil
}

// ResolveEvent closes a security event with resolution notes.
func (s *LogService) ResolveEvent(ctx context.Context, id int64, notes string, falsePositive bool, resolvedBy string) (*core.SecurityEvent, error) {
	if resolvedBy == "" {
		return nil, fmt.Errorf("%w: resolved_by is required", ErrInvalidInput)
	}
	ev, err := s.events.ResolveSecurityEvent(ctx, id, notes, falsePositive, resolvedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Security event resolved",
		"event_id", id, "resolved_by", resolvedBy, "false_positive", falsePositive)
	return ev, nil
}
