package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"logwarden/core"

	"go.uber.org/zap"
)

// RuleStorage handles alert rule persistence.
type RuleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewRuleStorage creates an alert rule storage handler.
func NewRuleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *RuleStorage {
	return &RuleStorage{sqlite: sqlite, logger: logger}
}

const ruleColumns = `id, rule_name, conditions, notification_channels, enabled,
		severity_threshold, created_by, created_at, updated_at`

// CreateAlertRule persists a rule and sets its generated ID and timestamps.
// The condition document must already be validated.
func (rs *RuleStorage) CreateAlertRule(ctx context.Context, rule *core.AlertRule) error {
	channels, err := marshalChannels(rule.Channels)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	result, err := rs.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO log_alert_rules (rule_name, conditions, notification_channels,
			enabled, severity_threshold, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, string(rule.Conditions), channels, boolToInt(rule.Enabled),
		rule.SeverityThreshold, rule.CreatedBy, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted rule id: %w", err)
	}
	rule.ID = id
	return nil
}

// GetAlertRule retrieves one rule by ID.
func (rs *RuleStorage) GetAlertRule(ctx context.Context, id int64) (*core.AlertRule, error) {
	row := rs.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM log_alert_rules WHERE id = ?", id)
	rule, err := scanAlertRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

// ListAlertRules returns all rules, newest first.
func (rs *RuleStorage) ListAlertRules(ctx context.Context) ([]core.AlertRule, error) {
	rows, err := rs.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM log_alert_rules ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()
	return scanAlertRules(rows)
}

// GetEnabledAlertRules returns the rules the pipeline evaluates against every
// ingested entry, oldest first so earlier rules fire first.
func (rs *RuleStorage) GetEnabledAlertRules(ctx context.Context) ([]core.AlertRule, error) {
	rows, err := rs.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM log_alert_rules WHERE enabled = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled alert rules: %w", err)
	}
	defer rows.Close()
	return scanAlertRules(rows)
}

// UpdateAlertRule overwrites an existing rule's mutable fields and bumps
// updated_at.
func (rs *RuleStorage) UpdateAlertRule(ctx context.Context, rule *core.AlertRule) error {
	channels, err := marshalChannels(rule.Channels)
	if err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	result, err := rs.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE log_alert_rules
		SET rule_name = ?, conditions = ?, notification_channels = ?,
			enabled = ?, severity_threshold = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, string(rule.Conditions), channels, boolToInt(rule.Enabled),
		rule.SeverityThreshold, formatTime(rule.UpdatedAt), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteAlertRule removes a rule by ID.
func (rs *RuleStorage) DeleteAlertRule(ctx context.Context, id int64) error {
	result, err := rs.sqlite.WriteDB.ExecContext(ctx,
		"DELETE FROM log_alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func marshalChannels(channels []core.ChannelRef) (string, error) {
	if channels == nil {
		channels = []core.ChannelRef{}
	}
	data, err := json.Marshal(channels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification channels: %w", err)
	}
	return string(data), nil
}

func scanAlertRuleInto(scanner rowScanner, rule *core.AlertRule) error {
	var conditions, channels, createdAt, updatedAt string
	var enabled int
	if err := scanner.Scan(
		&rule.ID, &rule.Name, &conditions, &channels, &enabled,
		&rule.SeverityThreshold, &rule.CreatedBy, &createdAt, &updatedAt,
	); err != nil {
		return err
	}
	rule.Conditions = json.RawMessage(conditions)
	rule.Enabled = enabled != 0
	if channels != "" {
		if err := json.Unmarshal([]byte(channels), &rule.Channels); err != nil {
			return fmt.Errorf("failed to parse notification channels: %w", err)
		}
	}
	var err error
	if rule.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return nil
}

func scanAlertRule(row *sql.Row) (*core.AlertRule, error) {
	var rule core.AlertRule
	if err := scanAlertRuleInto(row, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanAlertRules(rows *sql.Rows) ([]core.AlertRule, error) {
	var rules []core.AlertRule
	for rows.Next() {
		var rule core.AlertRule
		if err := scanAlertRuleInto(rows, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
