package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ChannelResults carries model.ResultEvent payloads whenever a result is
// recorded, corrected or deleted.
const ChannelResults = "skijump_results"

var errNoNotifyConn = errors.New("storage: notify connection not configured")

// Listen subscribes the notify connection to channel.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return errNoNotifyConn
	}
	if _, err := db.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on a listened
// channel or ctx ends. Only one goroutine may wait at a time.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	if db.notifyConn == nil {
		return "", "", errNoNotifyConn
	}
	n, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return n.Channel, n.Payload, nil
}

// ReconnectNotify drops the notify connection, dials a fresh one and
// listens on channels again. Notifications sent in between are lost.
func (db *DB) ReconnectNotify(ctx context.Context, channels ...string) error {
	if db.notifyCfg == nil {
		return errNoNotifyConn
	}
	if db.notifyConn != nil {
		_ = db.notifyConn.Close(ctx)
	}
	conn, err := pgx.ConnectConfig(ctx, db.notifyCfg.Copy())
	if err != nil {
		return fmt.Errorf("storage: reconnect notify: %w", err)
	}
	db.notifyConn = conn
	for _, ch := range channels {
		if err := db.Listen(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

// Notify publishes payload on channel through the pool. Postgres delivers
// it when the surrounding statement commits.
func (db *DB) Notify(ctx context.Context, channel, payload string) error {
	if _, err := db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("storage: notify %s: %w", channel, err)
	}
	return nil
}
