package service

import (
	"context"
	"encoding/json"
	"testing"

	"logwarden/core"
	"logwarden/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuleStore struct {
	rules  map[int64]*core.AlertRule
	nextID int64
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: map[int64]*core.AlertRule{}}
}

func (f *fakeRuleStore) CreateAlertRule(ctx context.Context, rule *core.AlertRule) error {
	f.nextID++
	rule.ID = f.nextID
	cp := *rule
	f.rules[rule.ID] = &cp
	return nil
}

func (f *fakeRuleStore) GetAlertRule(ctx context.Context, id int64) (*core.AlertRule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return nil, storage.ErrRuleNotFound
	}
	cp := *rule
	return &cp, nil
}

func (f *fakeRuleStore) ListAlertRules(ctx context.Context) ([]core.AlertRule, error) {
	var out []core.AlertRule
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuleStore) UpdateAlertRule(ctx context.Context, rule *core.AlertRule) error {
	if _, ok := f.rules[rule.ID]; !ok {
		return storage.ErrRuleNotFound
	}
	cp := *rule
	f.rules[rule.ID] = &cp
	return nil
}

func (f *fakeRuleStore) DeleteAlertRule(ctx context.Context, id int64) error {
	if _, ok := f.rules[id]; !ok {
		return storage.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

type fakeChannelStore struct {
	channels map[int64]*core.NotificationChannel
	nextID   int64
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{channels: map[int64]*core.NotificationChannel{}}
}

func (f *fakeChannelStore) CreateChannel(ctx context.Context, ch *core.NotificationChannel) error {
	f.nextID++
	ch.ID = f.nextID
	cp := *ch
	f.channels[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) GetChannel(ctx context.Context, id int64) (*core.NotificationChannel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, storage.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChannelStore) ListChannels(ctx context.Context) ([]core.NotificationChannel, error) {
	var out []core.NotificationChannel
	for _, ch := range f.channels {
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeChannelStore) UpdateChannel(ctx context.Context, ch *core.NotificationChannel) error {
	if _, ok := f.channels[ch.ID]; !ok {
		return storage.ErrChannelNotFound
	}
	cp := *ch
	f.channels[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) DeleteChannel(ctx context.Context, id int64) error {
	if _, ok := f.channels[id]; !ok {
		return storage.ErrChannelNotFound
	}
	delete(f.channels, id)
	return nil
}

type triggerCall struct {
	rule     *core.AlertRule
	entry    *core.LogEntry
	severity string
}

type fakeTrigger struct {
	calls []triggerCall
}

func (f *fakeTrigger) Trigger(ctx context.Context, rule *core.AlertRule, entry *core.LogEntry, severity string) {
	f.calls = append(f.calls, triggerCall{rule, entry, severity})
}

func newRuleService(rules RuleStore, channels ChannelStore, trigger AlertTrigger) *RuleService {
	return NewRuleService(rules, channels, trigger, zap.NewNop().Sugar())
}

func validRuleInput() *RuleInput {
	return &RuleInput{
		Name:       "bulk deletes",
		Conditions: json.RawMessage(`{"matchAction": "DELETE"}`),
		Channels: []core.ChannelRef{
			{Type: core.ChannelWebhook, URL: "http://example.test/hook"},
		},
	}
}

func TestCreateRule_DefaultsToEnabled(t *testing.T) {
	store := newFakeRuleStore()
	svc := newRuleService(store, newFakeChannelStore(), &fakeTrigger{})

	rule, err := svc.CreateRule(context.Background(), validRuleInput())
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
	assert.NotZero(t, rule.ID)
}

func TestCreateRule_RejectsInvalidPayloads(t *testing.T) {
	svc := newRuleService(newFakeRuleStore(), newFakeChannelStore(), &fakeTrigger{})
	ctx := context.Background()

	missingName := validRuleInput()
	missingName.Name = ""
	_, err := svc.CreateRule(ctx, missingName)
	assert.ErrorIs(t, err, ErrInvalidInput, "name is required")

	badSeverity := validRuleInput()
	badSeverity.SeverityThreshold = "extreme"
	_, err = svc.CreateRule(ctx, badSeverity)
	assert.ErrorIs(t, err, ErrInvalidInput, "severity must come from the known set")

	emptyCondition := validRuleInput()
	emptyCondition.Conditions = json.RawMessage(`{}`)
	_, err = svc.CreateRule(ctx, emptyCondition)
	assert.ErrorIs(t, err, ErrInvalidInput, "empty condition objects are rejected at creation")

	emailWithoutRecipients := validRuleInput()
	emailWithoutRecipients.Channels = []core.ChannelRef{{Type: core.ChannelEmail}}
	_, err = svc.CreateRule(ctx, emailWithoutRecipients)
	assert.ErrorIs(t, err, ErrInvalidInput)

	webhookWithoutURL := validRuleInput()
	webhookWithoutURL.Channels = []core.ChannelRef{{Type: core.ChannelWebhook}}
	_, err = svc.CreateRule(ctx, webhookWithoutURL)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknownChannel := validRuleInput()
	unknownChannel.Channels = []core.ChannelRef{{Type: "pager"}}
	_, err = svc.CreateRule(ctx, unknownChannel)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateRule_RejectsCombinedWithSiblingLeaves(t *testing.T) {
	svc := newRuleService(newFakeRuleStore(), newFakeChannelStore(), &fakeTrigger{})

	in := validRuleInput()
	in.Conditions = json.RawMessage(`{
		"matchAction": "DELETE",
		"combinedConditions": {"operator": "AND", "conditions": [{"severity": "high"}]}
	}`)
	_, err := svc.CreateRule(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidInput,
		"combinedConditions next to leaf fields would silently ignore the leaves")
}

func TestUpdateRule_AppliesSameValidationAsCreate(t *testing.T) {
	store := newFakeRuleStore()
	svc := newRuleService(store, newFakeChannelStore(), &fakeTrigger{})
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, validRuleInput())
	require.NoError(t, err)

	bad := validRuleInput()
	bad.Conditions = json.RawMessage(`{"regexPattern": "(unclosed"}`)
	_, err = svc.UpdateRule(ctx, rule.ID, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	good := validRuleInput()
	good.Name = "renamed"
	enabled := false
	good.Enabled = &enabled
	updated, err := svc.UpdateRule(ctx, rule.ID, good)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Enabled)
}

func TestUpdateRule_UnknownRule(t *testing.T) {
	svc := newRuleService(newFakeRuleStore(), newFakeChannelStore(), &fakeTrigger{})

	_, err := svc.UpdateRule(context.Background(), 42, validRuleInput())
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
}

func TestTestRule_MatchedFiresRealTriggerPath(t *testing.T) {
	store := newFakeRuleStore()
	trigger := &fakeTrigger{}
	svc := newRuleService(store, newFakeChannelStore(), trigger)
	ctx := context.Background()

	in := validRuleInput()
	in.Conditions = json.RawMessage(`{"matchAction": "USER_DELETE", "severity": ["high"]}`)
	in.SeverityThreshold = core.SeverityHigh
	rule, err := svc.CreateRule(ctx, in)
	require.NoError(t, err)

	res, err := svc.TestRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "USER_DELETE", res.Entry.Action, "synthetic entry is shaped to the condition")
	assert.Equal(t, core.SeverityHigh, res.Entry.Severity)
	assert.Zero(t, res.Entry.ID, "test entries are never persisted")

	require.Len(t, trigger.calls, 1)
	assert.Equal(t, rule.ID, trigger.calls[0].rule.ID)
	assert.Equal(t, core.SeverityHigh, trigger.calls[0].severity)
}

func TestTestRule_UnmatchedDoesNotTrigger(t *testing.T) {
	store := newFakeRuleStore()
	trigger := &fakeTrigger{}
	svc := newRuleService(store, newFakeChannelStore(), trigger)
	ctx := context.Background()

	// Two AND-ed severities can never both hold, so the synthetic entry
	// cannot satisfy the condition.
	in := validRuleInput()
	in.Conditions = json.RawMessage(`{
		"combinedConditions": {
			"operator": "AND",
			"conditions": [{"severity": "high"}, {"severity": "critical"}]
		}
	}`)
	rule, err := svc.CreateRule(ctx, in)
	require.NoError(t, err)

	res, err := svc.TestRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, trigger.calls)
}

func TestTestRule_UnknownRule(t *testing.T) {
	svc := newRuleService(newFakeRuleStore(), newFakeChannelStore(), &fakeTrigger{})

	_, err := svc.TestRule(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
}

func TestChannelCRUD_ValidatesConfigAgainstType(t *testing.T) {
	svc := newRuleService(newFakeRuleStore(), newFakeChannelStore(), &fakeTrigger{})
	ctx := context.Background()

	_, err := svc.CreateChannel(ctx, &ChannelInput{
		Name:   "ops",
		Type:   core.ChannelEmail,
		Config: json.RawMessage(`{"recipients": []}`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput, "email config needs at least one recipient")

	_, err = svc.CreateChannel(ctx, &ChannelInput{Name: "x", Type: "sms"})
	assert.ErrorIs(t, err, ErrInvalidInput, "unknown channel type")

	ch, err := svc.CreateChannel(ctx, &ChannelInput{
		Name:   "ops hook",
		Type:   core.ChannelWebhook,
		Config: json.RawMessage(`{"url": "http://example.test/hook"}`),
	})
	require.NoError(t, err)
	assert.True(t, ch.Enabled)

	got, err := svc.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops hook", got.Name)

	disabled := false
	updated, err := svc.UpdateChannel(ctx, ch.ID, &ChannelInput{
		Name:    "ops hook",
		Type:    core.ChannelWebhook,
		Config:  json.RawMessage(`{"url": "http://example.test/hook"}`),
		Enabled: &disabled,
	})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	require.NoError(t, svc.DeleteChannel(ctx, ch.ID))
	_, err = svc.GetChannel(ctx, ch.ID)
	assert.ErrorIs(t, err, storage.ErrChannelNotFound)
}
