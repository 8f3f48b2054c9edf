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

// ChannelStorage handles the notification channel registry.
type ChannelStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewChannelStorage creates a notification channel storage handler.
func NewChannelStorage(sqlite *SQLite, logger *zap.SugaredLogger) *ChannelStorage {
	return &ChannelStorage{sqlite: sqlite, logger: logger}
}

const channelColumns = `id, name, type, config, enabled, created_at, updated_at`

// CreateChannel persists a channel and sets its generated ID and timestamps.
func (cs *ChannelStorage) CreateChannel(ctx context.Context, ch *core.NotificationChannel) error {
	if len(ch.Config) == 0 {
		ch.Config = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	result, err := cs.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO notification_channels (name, type, config, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ch.Name, ch.Type, string(ch.Config), boolToInt(ch.Enabled),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification channel: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted channel id: %w", err)
	}
	ch.ID = id
	return nil
}

// GetChannel retrieves one channel by ID.
func (cs *ChannelStorage) GetChannel(ctx context.Context, id int64) (*core.NotificationChannel, error) {
	row := cs.sqlite.ReadDB.QueryRowContext(ctx,
		"SELECT "+channelColumns+" FROM notification_channels WHERE id = ?", id)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification channel: %w", err)
	}
	return ch, nil
}

// ListChannels returns all channels, oldest first.
func (cs *ChannelStorage) ListChannels(ctx context.Context) ([]core.NotificationChannel, error) {
	rows, err := cs.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+channelColumns+" FROM notification_channels ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query notification channels: %w", err)
	}
	defer rows.Close()

	var channels []core.NotificationChannel
	for rows.Next() {
		var ch core.NotificationChannel
		if err := scanChannelInto(rows, &ch); err != nil {
			return nil, fmt.Errorf("failed to scan notification channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// UpdateChannel overwrites an existing channel's mutable fields and bumps
// updated_at.
func (cs *ChannelStorage) UpdateChannel(ctx context.Context, ch *core.NotificationChannel) error {
	if len(ch.Config) == 0 {
		ch.Config = json.RawMessage("{}")
	}
	ch.UpdatedAt = time.Now().UTC()

	result, err := cs.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE notification_channels
		SET name = ?, type = ?, config = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		ch.Name, ch.Type, string(ch.Config), boolToInt(ch.Enabled),
		formatTime(ch.UpdatedAt), ch.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// DeleteChannel removes a channel by ID.
func (cs *ChannelStorage) DeleteChannel(ctx context.Context, id int64) error {
	result, err := cs.sqlite.WriteDB.ExecContext(ctx,
		"DELETE FROM notification_channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func scanChannelInto(scanner rowScanner, ch *core.NotificationChannel) error {
	var config, createdAt, updatedAt string
	var enabled int
	if err := scanner.Scan(
		&ch.ID, &ch.Name, &ch.Type, &config, &enabled, &createdAt, &updatedAt,
	); err != nil {
		return err
	}
	ch.Config = json.RawMessage(config)
	ch.Enabled = enabled != 0
	var err error
	if ch.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	if ch.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return nil
}

func scanChannel(row *sql.Row) (*core.NotificationChannel, error) {
	var ch core.NotificationChannel
	if err := scanChannelInto(row, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}
