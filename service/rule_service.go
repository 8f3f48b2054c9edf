package service

import (
	"context"
	"encoding/json"
	"fmt"

	"logwarden/alert"
	"logwarden/core"
	"logwarden/detect"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RuleStore defines the alert rule persistence operations the service needs.
type RuleStore interface {
	CreateAlertRule(ctx context.Context, rule *core.AlertRule) error
	GetAlertRule(ctx context.Context, id int64) (*core.AlertRule, error)
	ListAlertRules(ctx context.Context) ([]core.AlertRule, error)
	UpdateAlertRule(ctx context.Context, rule *core.AlertRule) error
	DeleteAlertRule(ctx context.Context, id int64) error
}

// ChannelStore defines the notification channel registry operations.
type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *core.NotificationChannel) error
	GetChannel(ctx context.Context, id int64) (*core.NotificationChannel, error)
	ListChannels(ctx context.Context) ([]core.NotificationChannel, error)
	UpdateChannel(ctx context.Context, ch *core.NotificationChannel) error
	DeleteChannel(ctx context.Context, id int64) error
}

// AlertTrigger runs the full trigger path for one rule. Used by test fires.
type AlertTrigger interface {
	Trigger(ctx context.Context, rule *core.AlertRule, entry *core.LogEntry, severity string)
}

// RuleInput is the mutation payload for alert rules.
type RuleInput struct {
	Name              string            `json:"rule_name" validate:"required,max=200"`
	Conditions        json.RawMessage   `json:"conditions" validate:"required"`
	Channels          []core.ChannelRef `json:"notification_channels" validate:"omitempty,dive"`
	Enabled           *bool             `json:"enabled"`
	SeverityThreshold string            `json:"severity_threshold" validate:"omitempty,oneof=info warn warning high critical"`
	CreatedBy         string            `json:"created_by" validate:"omitempty,max=200"`
}

// ChannelInput is the mutation payload for notification channel registry
// entries.
type ChannelInput struct {
	Name    string          `json:"name" validate:"required,max=200"`
	Type    string          `json:"type" validate:"required,oneof=email webhook"`
	Config  json.RawMessage `json:"config"`
	Enabled *bool           `json:"enabled"`
}

// RuleService owns alert rule and notification channel management, plus
// on-demand rule test fires.
type RuleService struct {
	rules    RuleStore
	channels ChannelStore
	trigger  AlertTrigger
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewRuleService creates the rule service.
func NewRuleService(rules RuleStore, channels ChannelStore, trigger AlertTrigger, logger *zap.SugaredLogger) *RuleService {
	return &RuleService{
		rules:    rules,
		channels: channels,
		trigger:  trigger,
		validate: validator.New(),
		logger:   logger,
	}
}

// validateRuleInput runs payload validation: struct tags, the condition
// document and per-channel shape checks.
func (s *RuleService) validateRuleInput(in *RuleInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := detect.ValidateConditionDocument(in.Conditions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for i, ref := range in.Channels {
		switch ref.Type {
		case core.ChannelEmail:
			if len(ref.Recipients) == 0 {
				return fmt.Errorf("%w: channel %d: email channel requires recipients", ErrInvalidInput, i)
			}
		case core.ChannelWebhook:
			if ref.URL == "" {
				return fmt.Errorf("%w: channel %d: webhook channel requires a url", ErrInvalidInput, i)
			}
		default:
			return fmt.Errorf("%w: channel %d: unknown channel type %q", ErrInvalidInput, i, ref.Type)
		}
	}
	return nil
}

// CreateRule validates and persists a new alert rule. New rules default to
// enabled.
func (s *RuleService) CreateRule(ctx context.Context, in *RuleInput) (*core.AlertRule, error) {
	if err := s.validateRuleInput(in); err != nil {
		return nil, err
	}
	rule := &core.AlertRule{
		Name:              in.Name,
		Conditions:        in.Conditions,
		Channels:          in.Channels,
		Enabled:           true,
		SeverityThreshold: in.SeverityThreshold,
		CreatedBy:         in.CreatedBy,
	}
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	if err := s.rules.CreateAlertRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Infow("Alert rule created", "rule_id", rule.ID, "rule_name", rule.Name, "created_by", rule.CreatedBy)
	return rule, nil
}

// GetRule retrieves one rule by ID.
func (s *RuleService) GetRule(ctx context.Context, id int64) (*core.AlertRule, error) {
	return s.rules.GetAlertRule(ctx, id)
}

// ListRules returns all rules, newest first.
func (s *RuleService) ListRules(ctx context.Context) ([]core.AlertRule, error) {
	rules, err := s.rules.ListAlertRules(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []core.AlertRule{}
	}
	return rules, nil
}

// UpdateRule validates and overwrites an existing rule. Updates are held to
// the same condition document validation as creates, so a legacy document
// relying on sibling shadowing cannot survive an edit.
func (s *RuleService) UpdateRule(ctx context.Context, id int64, in *RuleInput) (*core.AlertRule, error) {
	if err := s.validateRuleInput(in); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetAlertRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Name = in.Name
	rule.Conditions = in.Conditions
	rule.Channels = in.Channels
	rule.SeverityThreshold = in.SeverityThreshold
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	if err := s.rules.UpdateAlertRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Infow("Alert rule updated", "rule_id", rule.ID, "rule_name", rule.Name)
	return rule, nil
}

// DeleteRule removes a rule by ID.
func (s *RuleService) DeleteRule(ctx context.Context, id int64) error {
	if err := s.rules.DeleteAlertRule(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Alert rule deleted", "rule_id", id)
	return nil
}

// TestRuleResult reports the outcome of a rule test fire.
type TestRuleResult struct {
	RuleID  int64          `json:"rule_id"`
	Matched bool           `json:"matched"`
	Entry   *core.LogEntry `json:"entry"`
}

// TestRule builds a synthetic log entry shaped to the rule's condition and
// runs it through the real trigger path: event recording, broadcast and
// notification fan-out all happen, with no persisted log entry behind them.
// Repeat test fires inside the suppression window are suppressed like any
// other trigger.
func (s *RuleService) TestRule(ctx context.Context, id int64) (*TestRuleResult, error) {
	rule, err := s.rules.GetAlertRule(ctx, id)
	if err != nil {
		return nil, err
	}
	cond, err := rule.Condition()
	if err != nil {
		return nil, fmt.Errorf("%w: rule has an undecodable condition document: %v", ErrInvalidInput, err)
	}

	entry := syntheticEntry(cond)
	entry.Normalize()

	matched := detect.EvaluateCondition(entry, cond)
	if matched {
		severity := rule.SeverityThreshold
		if severity == "" {
			severity = alert.DefaultSeverity
		}
		s.trigger.Trigger(ctx, rule, entry, severity)
	}
	s.logger.Infow("Alert rule test fired", "rule_id", rule.ID, "matched", matched)
	return &TestRuleResult{RuleID: rule.ID, Matched: matched, Entry: entry}, nil
}

// syntheticEntry derives a plausible entry from the first actionable leaf of
// the condition tree. Entries keep ID zero so the recorded event carries a
// null log reference.
func syntheticEntry(cond *core.Condition) *core.LogEntry {
	entry := &core.LogEntry{
		ActorID:  "test",
		Action:   "test",
		Details:  "synthetic test fire",
		Severity: core.SeverityInfo,
	}
	applyConditionHints(entry, cond)
	return entry
}

func applyConditionHints(entry *core.LogEntry, cond *core.Condition) {
	if cond == nil {
		return
	}
	if cond.Combined != nil {
		for i := range cond.Combined.Conditions {
			applyConditionHints(entry, &cond.Combined.Conditions[i])
			if cond.Combined.Operator == core.OperatorOr {
				break
			}
		}
		return
	}
	if cond.MatchAction != "" {
		entry.Action = cond.MatchAction
	}
	if len(cond.Severity) > 0 {
		entry.Severity = cond.Severity[0]
	}
	if len(cond.Category) > 0 {
		entry.Category = cond.Category[0]
	}
	if len(cond.IPRange) > 0 {
		entry.IPAddress = cond.IPRange[0]
	}
	if cond.RiskScoreThreshold != nil {
		entry.RiskScore = *cond.RiskScoreThreshold
	}
	if len(cond.UserRole) > 0 {
		if entry.Metadata == nil {
			entry.Metadata = map[string]interface{}{}
		}
		entry.Metadata["role"] = cond.UserRole[0]
	}
}

// validateChannelInput checks the registry payload, including the
// type-specific config document.
func (s *RuleService) validateChannelInput(in *ChannelInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(in.Config) == 0 {
		return nil
	}
	var ref core.ChannelRef
	if err := json.Unmarshal(in.Config, &ref); err != nil {
		return fmt.Errorf("%w: channel config is not valid JSON: %v", ErrInvalidInput, err)
	}
	switch in.Type {
	case core.ChannelEmail:
		if len(ref.Recipients) == 0 {
			return fmt.Errorf("%w: email channel config requires recipients", ErrInvalidInput)
		}
	case core.ChannelWebhook:
		if ref.URL == "" {
			return fmt.Errorf("%w: webhook channel config requires a url", ErrInvalidInput)
		}
	}
	return nil
}

// CreateChannel validates and persists a registry entry.
func (s *RuleService) CreateChannel(ctx context.Context, in *ChannelInput) (*core.NotificationChannel, error) {
	if err := s.validateChannelInput(in); err != nil {
		return nil, err
	}
	ch := &core.NotificationChannel{
		Name:    in.Name,
		Type:    in.Type,
		Config:  in.Config,
		Enabled: true,
	}
	if in.Enabled != nil {
		ch.Enabled = *in.Enabled
	}
	if err := s.channels.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}
	s.logger.Infow("Notification channel created", "channel_id", ch.ID, "name", ch.Name, "type", ch.Type)
	return ch, nil
}

// GetChannel retrieves one registry entry by ID.
func (s *RuleService) GetChannel(ctx context.Context, id int64) (*core.NotificationChannel, error) {
	return s.channels.GetChannel(ctx, id)
}

// ListChannels returns all registry entries.
func (s *RuleService) ListChannels(ctx context.Context) ([]core.NotificationChannel, error) {
	channels, err := s.channels.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []core.NotificationChannel{}
	}
	return channels, nil
}

// UpdateChannel validates and overwrites a registry entry.
func (s *RuleService) UpdateChannel(ctx context.Context, id int64, in *ChannelInput) (*core.NotificationChannel, error) {
	if err := s.validateChannelInput(in); err != nil {
		return nil, err
	}
	ch, err := s.channels.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.Name = in.Name
	ch.Type = in.Type
	ch.Config = in.Config
	if in.Enabled != nil {
		ch.Enabled = *in.Enabled
	}
	if err := s.channels.UpdateChannel(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// DeleteChannel removes a registry entry by ID.
func (s *RuleService) DeleteChannel(ctx context.Context, id int64) error {
	return s.channels.DeleteChannel(ctx, id)
}
