package alert

import (
	"context"
	"strconv"
	"time"

	"logwarden/core"
	"logwarden/detect"
	"logwarden/metrics"

	"go.uber.org/zap"
)

// DefaultSeverity is the threat level attached to a trigger when the rule
// defines no severity threshold.
const DefaultSeverity = "warn"

// RuleSource supplies the enabled rule set. It is re-read on every evaluated
// entry; there is deliberately no caching between entries.
type RuleSource interface {
	GetEnabledAlertRules(ctx context.Context) ([]core.AlertRule, error)
}

// EventRecorder persists security events derived from triggers and
// detections.
type EventRecorder interface {
	InsertSecurityEvent(ctx context.Context, event *core.SecurityEvent) error
}

// Dispatcher sends an alert payload to one configured channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref core.ChannelRef, payload core.AlertPayload) error
}

// Broadcaster pushes best-effort messages to live subscribers by topic.
type Broadcaster interface {
	Broadcast(topic, messageType string, payload interface{})
}

// Engine evaluates alert rules against ingested log entries and owns the
// trigger path: suppression, event recording, live broadcast and
// notification fan-out. Nothing in here propagates an error to the ingesting
// caller; every failure terminates with a log line where it happened.
type Engine struct {
	rules       RuleSource
	events      EventRecorder
	dispatcher  Dispatcher
	broadcaster Broadcaster
	suppressor  Suppressor
	logger      *zap.SugaredLogger
}

// NewEngine creates an alert engine. All collaborators are required except
// the broadcaster, which may be nil when no live transport is attached.
func NewEngine(rules RuleSource, events EventRecorder, dispatcher Dispatcher, broadcaster Broadcaster, suppressor Suppressor, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		rules:       rules,
		events:      events,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		suppressor:  suppressor,
		logger:      logger,
	}
}

// EvaluateRules fetches the full enabled rule set and evaluates each rule's
// condition tree against the entry, triggering every match. A rule-store read
// failure aborts evaluation for this entry entirely; there is no retry or
// backlog, which drops alerting for entries arriving during a store outage.
func (e *Engine) EvaluateRules(ctx context.Context, entry *core.LogEntry) {
	rules, err := e.rules.GetEnabledAlertRules(ctx)
	if err != nil {
		e.logger.Errorw("Failed to load enabled alert rules, skipping evaluation for entry",
			"log_id", entry.ID, "correlation_id", entry.CorrelationID, "error", err)
		return
	}

	for i := range rules {
		rule := &rules[i]
		cond, err := rule.Condition()
		if err != nil {
			e.logger.Warnw("Alert rule has an undecodable condition document, treating as non-match",
				"rule_id", rule.ID, "error", err)
			continue
		}
		if !detect.EvaluateCondition(entry, cond) {
			continue
		}
		severity := rule.SeverityThreshold
		if severity == "" {
			severity = DefaultSeverity
		}
		e.Trigger(ctx, rule, entry, severity)
	}
}

// Trigger runs the alert path for one matched rule:
//
//  1. Consult the suppressor; a trigger inside the window is dropped with no
//     side effects.
//  2. Mark the window BEFORE dispatching, so a fully-failed dispatch still
//     counts as alerted.
//  3. Record a security event linked to the entry.
//  4. Best-effort broadcast to live admin subscribers.
//  5. Fan out to the rule's channels; per-channel failures are logged and
//     never abort the loop.
func (e *Engine) Trigger(ctx context.Context, rule *core.AlertRule, entry *core.LogEntry, severity string) {
	key := SuppressionKey(rule.ID, entry)
	allowed, err := e.suppressor.Allow(ctx, key)
	if err != nil {
		e.logger.Warnw("Suppression check failed", "key", key, "error", err)
	}
	if !allowed {
		metrics.AlertsSuppressed.Inc()
		return
	}

	event := &core.SecurityEvent{
		EventType:     core.EventTypeAlertTrigger,
		ThreatLevel:   severity,
		DetectionRule: strconv.FormatInt(rule.ID, 10),
		CreatedAt:     time.Now().UTC(),
	}
	if entry != nil {
		event.CorrelationID = entry.CorrelationID
		if entry.ID != 0 {
			id := entry.ID
			event.LogID = &id
		}
	}
	if err := e.events.InsertSecurityEvent(ctx, event); err != nil {
		e.logger.Errorw("Failed to record alert trigger event", "rule_id", rule.ID, "error", err)
	}
	metrics.AlertsTriggered.WithLabelValues(severity).Inc()

	payload := core.AlertPayload{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: severity,
		Log:      entry,
		Event:    event,
	}
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(core.TopicAdmins, core.MessageSecurityAlert, payload)
	}

	for _, ref := range rule.Channels {
		if err := e.dispatcher.Dispatch(ctx, ref, payload); err != nil {
			e.logger.Errorw("Notification channel dispatch failed",
				"rule_id", rule.ID, "channel_type", ref.Type, "error", err)
		}
	}
}

// RecordDetection persists a security event for a static threat detection.
func (e *Engine) RecordDetection(ctx context.Context, entry *core.LogEntry, det detect.Detection) {
	if !det.Detected {
		return
	}
	metrics.ThreatsDetected.WithLabelValues(det.Rule).Inc()
	event := &core.SecurityEvent{
		EventType:     core.EventTypeThreatDetected,
		ThreatLevel:   det.ThreatLevel,
		DetectionRule: det.Rule,
		CorrelationID: entry.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}
	if entry.ID != 0 {
		id := entry.ID
		event.LogID = &id
	}
	if err := e.events.InsertSecurityEvent(ctx, event); err != nil {
		e.logger.Errorw("Failed to record threat detection event",
			"rule", det.Rule, "log_id", entry.ID, "error", err)
	}
}
