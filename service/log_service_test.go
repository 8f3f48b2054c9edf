package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"logwarden/core"
	"logwarden/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLogStore struct {
	inserted  []*core.LogEntry
	insertErr error
	entries   []core.LogEntry
	recent    []core.LogEntry
	trend     []core.TrendBucket
	stats     *core.LogStats
	lastFilt  core.LogFilters
}

func (f *fakeLogStore) InsertLogEntry(ctx context.Context, e *core.LogEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	e.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, e)
	return nil
}

func (f *fakeLogStore) ListLogEntries(ctx context.Context, filt core.LogFilters) ([]core.LogEntry, int64, error) {
	f.lastFilt = filt
	return f.entries, int64(len(f.entries)), nil
}

func (f *fakeLogStore) GetLogEntriesByCorrelation(ctx context.Context, correlationID string) ([]core.LogEntry, error) {
	return f.entries, nil
}

func (f *fakeLogStore) GetRecentLogEntries(ctx context.Context, limit int) ([]core.LogEntry, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeLogStore) GetTrend(ctx context.Context, filt core.LogFilters, bucket string) ([]core.TrendBucket, error) {
	if bucket != core.BucketDay && bucket != core.BucketHour {
		return nil, storage.ErrInvalidBucket
	}
	return f.trend, nil
}

func (f *fakeLogStore) GetStats(ctx context.Context, filt core.LogFilters) (*core.LogStats, error) {
	return f.stats, nil
}

type fakeEventStore struct {
	events     []core.SecurityEvent
	resolved   *core.SecurityEvent
	resolveErr error
}

func (f *fakeEventStore) GetSecurityEventsByCorrelation(ctx context.Context, correlationID string) ([]core.SecurityEvent, error) {
	return f.events, nil
}

func (f *fakeEventStore) ListSecurityEvents(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]core.SecurityEvent, int64, error) {
	return f.events, int64(len(f.events)), nil
}

func (f *fakeEventStore) ResolveSecurityEvent(ctx context.Context, id int64, notes string, falsePositive bool, resolvedBy string) (*core.SecurityEvent, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolved, nil
}

type fakeEvaluator struct {
	enqueued []*core.LogEntry
}

func (f *fakeEvaluator) Enqueue(entry *core.LogEntry) {
	f.enqueued = append(f.enqueued, entry)
}

type broadcastCall struct {
	topic       string
	messageType string
}

type recordingBroadcaster struct {
	calls []broadcastCall
}

func (r *recordingBroadcaster) Broadcast(topic, messageType string, payload interface{}) {
	r.calls = append(r.calls, broadcastCall{topic, messageType})
}

func newLogService(logs *fakeLogStore, events *fakeEventStore, eval *fakeEvaluator, b Broadcaster) *LogService {
	return NewLogService(logs, events, eval, b, zap.NewNop().Sugar())
}

func TestIngest_RequiresAction(t *testing.T) {
	svc := newLogService(&fakeLogStore{}, &fakeEventStore{}, &fakeEvaluator{}, nil)

	_, err := svc.Ingest(context.Background(), &core.LogEntry{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIngest_PersistsBroadcastsAndEnqueues(t *testing.T) {
	logs := &fakeLogStore{}
	eval := &fakeEvaluator{}
	bc := &recordingBroadcaster{}
	svc := newLogService(logs, &fakeEventStore{}, eval, bc)

	res, err := svc.Ingest(context.Background(), &core.LogEntry{Action: "USER_LOGIN"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ID)
	assert.NotEmpty(t, res.CorrelationID, "normalization assigns a correlation id")

	require.Len(t, logs.inserted, 1)
	assert.Equal(t, core.SeverityInfo, logs.inserted[0].Severity)

	require.Len(t, bc.calls, 1)
	assert.Equal(t, core.TopicLogStream, bc.calls[0].topic)
	assert.Equal(t, core.MessageLogNew, bc.calls[0].messageType)

	require.Len(t, eval.enqueued, 1)
	assert.Same(t, logs.inserted[0], eval.enqueued[0])
}

func TestIngest_InsertFailureSkipsEvaluation(t *testing.T) {
	logs := &fakeLogStore{insertErr: errors.New("disk full")}
	eval := &fakeEvaluator{}
	bc := &recordingBroadcaster{}
	svc := newLogService(logs, &fakeEventStore{}, eval, bc)

	_, err := svc.Ingest(context.Background(), &core.LogEntry{Action: "X"})
	assert.Error(t, err)
	assert.Empty(t, eval.enqueued)
	assert.Empty(t, bc.calls)
}

func TestSearch_NormalizesFiltersAndNeverReturnsNilSlice(t *testing.T) {
	logs := &fakeLogStore{}
	svc := newLogService(logs, &fakeEventStore{}, &fakeEvaluator{}, nil)

	page, err := svc.Search(context.Background(), core.LogFilters{Limit: 99999})
	require.NoError(t, err)
	assert.NotNil(t, page.Entries)
	assert.Equal(t, 1000, logs.lastFilt.Limit, "limit is capped before hitting the store")
}

func TestTimeline_RequiresCorrelationID(t *testing.T) {
	svc := newLogService(&fakeLogStore{}, &fakeEventStore{}, &fakeEvaluator{}, nil)

	_, err := svc.Timeline(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTimeline_MergesLogsAndEvents(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	logs := &fakeLogStore{entries: []core.LogEntry{{ID: 1, Action: "LOGIN", CreatedAt: t0}}}
	events := &fakeEventStore{events: []core.SecurityEvent{{ID: 5, CreatedAt: t0.Add(time.Second)}}}
	svc := newLogService(logs, events, &fakeEvaluator{}, nil)

	items, err := svc.Timeline(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, core.TimelineKindLog, items[0].Kind)
	assert.Equal(t, core.TimelineKindEvent, items[1].Kind)
}

func TestClampExportLimit(t *testing.T) {
	assert.Equal(t, DefaultExportRows, ClampExportLimit(0))
	assert.Equal(t, DefaultExportRows, ClampExportLimit(-5))
	assert.Equal(t, 500, ClampExportLimit(500))
	assert.Equal(t, MaxExportRows, ClampExportLimit(MaxExportRows+1))
}

func TestExportCSV_HeaderAndQuoting(t *testing.T) {
	logs := &fakeLogStore{recent: []core.LogEntry{{
		ID:            3,
		ActorID:       "alice",
		Action:        "NOTE_ADD",
		Severity:      core.SeverityInfo,
		CorrelationID: "corr-1",
		RiskScore:     7.5,
		Details:       `said "hello", then left`,
		CreatedAt:     time.Date(2026, 3, 10, 12, 0, 5, 0, time.UTC),
	}}}
	svc := newLogService(logs, &fakeEventStore{}, &fakeEvaluator{}, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), 10, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(exportHeader, ","), lines[0])
	assert.Contains(t, lines[1], "2026-03-10 12:00:05")
	assert.Contains(t, lines[1], `"said ""hello"", then left"`, "embedded quotes are CSV-escaped")
	assert.Contains(t, lines[1], "7.5")
}

func TestExportJSON_EmitsArrayEvenWhenEmpty(t *testing.T) {
	svc := newLogService(&fakeLogStore{}, &fakeEventStore{}, &fakeEvaluator{}, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportJSON(context.Background(), 10, &buf))

	var out []core.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Empty(t, out)
}

func TestResolveEvent_RequiresResolvedBy(t *testing.T) {
	svc := newLogService(&fakeLogStore{}, &fakeEventStore{}, &fakeEvaluator{}, nil)

	_, err := svc.ResolveEvent(context.Background(), 1, "notes", false, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolveEvent_PropagatesStoreErrors(t *testing.T) {
	events := &fakeEventStore{resolveErr: storage.ErrEventResolved}
	svc := newLogService(&fakeLogStore{}, events, &fakeEvaluator{}, nil)

	_, err := svc.ResolveEvent(context.Background(), 1, "notes", false, "alice")
	assert.ErrorIs(t, err, storage.ErrEventResolved)
}
