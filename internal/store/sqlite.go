package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ledgerline/ledgerline/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, persistErr("open", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, persistErr("enable WAL", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, persistErr("migrate", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InsertMutation persists a newly captured mutation.
func (s *SQLiteStore) InsertMutation(ctx context.Context, m model.QueuedMutation) error {
	payload := string(m.Payload)
	if payload == "" {
		payload = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutations (id, entity_type, operation, payload, enqueued_at, synced, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.EntityType), string(m.Operation), payload,
		m.EnqueuedAt.UTC(), boolToInt(m.Synced), m.Attempts,
	)
	if err != nil {
		return persistErr("insert mutation", err)
	}

	return nil
}

// PendingMutations returns all unsynced mutations in enqueue order.
// rowid breaks ties for mutations enqueued within the same instant.
func (s *SQLiteStore) PendingMutations(ctx context.Context) ([]model.QueuedMutation, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, entity_type, operation, payload, enqueued_at, synced, synced_at, attempts
		FROM mutations
		WHERE synced = 0
		ORDER BY enqueued_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, persistErr("query pending mutations", err)
	}
	defer rows.Close()

	var mutations []model.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, persistErr("scan mutation", err)
		}
		mutations = append(mutations, m)
	}

	return mutations, rows.Err()
}

// MarkMutationSynced records a successful replay and bumps the attempt
// counter.
func (s *SQLiteStore) MarkMutationSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mutations
		SET synced = 1, synced_at = ?, attempts = attempts + 1
		WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return persistErr("mark mutation synced", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistErr("mark mutation synced", fmt.Errorf("mutation %s not found", id))
	}

	return nil
}

// DeleteMutation discards a mutation regardless of its state.
func (s *SQLiteStore) DeleteMutation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM mutations WHERE id = ?", id)
	if err != nil {
		return persistErr("delete mutation", err)
	}
	return nil
}

// PruneSyncedBefore deletes synced mutations whose sync time is older
// than cutoff.
func (s *SQLiteStore) PruneSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM mutations WHERE synced = 1 AND synced_at < ?",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, persistErr("prune synced mutations", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MoveMutationToDeadLetter atomically moves a pending mutation into the
// dead-letter table with the backend's rejection reason.
func (s *SQLiteStore) MoveMutationToDeadLetter(ctx context.Context, id, reason string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("begin dead-letter tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dead_mutations (id, entity_type, operation, payload, enqueued_at, attempts, reason, failed_at)
		SELECT id, entity_type, operation, payload, enqueued_at, attempts + 1, ?, ?
		FROM mutations WHERE id = ?`,
		reason, at.UTC(), id,
	)
	if err != nil {
		return persistErr("dead-letter insert", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistErr("dead-letter insert", fmt.Errorf("mutation %s not found", id))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM mutations WHERE id = ?", id); err != nil {
		return persistErr("dead-letter delete", err)
	}

	if err := tx.Commit(); err != nil {
		return persistErr("dead-letter commit", err)
	}

	return nil
}

// DeadLetters returns permanently rejected mutations, newest first.
func (s *SQLiteStore) DeadLetters(ctx context.Context) ([]model.DeadMutation, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, entity_type, operation, payload, enqueued_at, attempts, reason, failed_at
		FROM dead_mutations
		ORDER BY failed_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, persistErr("query dead letters", err)
	}
	defer rows.Close()

	var dead []model.DeadMutation
	for rows.Next() {
		d, err := scanDeadMutation(rows)
		if err != nil {
			return nil, persistErr("scan dead letter", err)
		}
		dead = append(dead, d)
	}

	return dead, rows.Err()
}

// DeleteDeadLetter discards a dead-lettered mutation.
func (s *SQLiteStore) DeleteDeadLetter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM dead_mutations WHERE id = ?", id)
	if err != nil {
		return persistErr("delete dead letter", err)
	}
	return nil
}

// UpsertNotifications inserts or updates a batch of notifications.
// An update refreshes the display fields; the read flag only moves
// towards read (local "mark as read" wins over a stale server copy).
func (s *SQLiteStore) UpsertNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("begin upsert tx", err)
	}
	defer tx.Rollback()

	for _, n := range ns {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return persistErr("encode notification data", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications (id, type, title, body, data, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type = excluded.type,
				title = excluded.title,
				body = excluded.body,
				data = excluded.data,
				read = MAX(read, excluded.read)`,
			n.ID, string(n.Type), n.Title, n.Body, string(data),
			boolToInt(n.Read), n.CreatedAt.UTC(),
		)
		if err != nil {
			return persistErr("upsert notification", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("upsert commit", err)
	}

	return nil
}

// Notifications returns up to limit notifications, newest first.
// A non-positive limit returns everything.
func (s *SQLiteStore) Notifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, type, title, body, data, read, created_at
		FROM notifications
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, persistErr("query notifications", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, persistErr("scan notification", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return persistErr("mark notification read", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1")
	if err != nil {
		return persistErr("mark all notifications read", err)
	}
	return nil
}

// TrimNotifications deletes the oldest notifications beyond cap,
// strictly by age regardless of read state.
func (s *SQLiteStore) TrimNotifications(ctx context.Context, cap int) (int64, error) {
	if cap <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE rowid NOT IN (
			SELECT rowid FROM notifications
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`,
		cap,
	)
	if err != nil {
		return 0, persistErr("trim notifications", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearNotifications removes every notification.
func (s *SQLiteStore) ClearNotifications(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM notifications")
	if err != nil {
		return persistErr("clear notifications", err)
	}
	return nil
}

// scanMutation scans a mutation row from a sqlx.Rows result set.
func scanMutation(rows *sqlx.Rows) (model.QueuedMutation, error) {
	var (
		m          model.QueuedMutation
		entityType string
		operation  string
		payload    string
		enqueuedAt time.Time
		syncedInt  int
		syncedAt   sql.NullTime
	)

	err := rows.Scan(
		&m.ID, &entityType, &operation, &payload,
		&enqueuedAt, &syncedInt, &syncedAt, &m.Attempts,
	)
	if err != nil {
		return model.QueuedMutation{}, fmt.Errorf("scanning mutation row: %w", err)
	}

	m.EntityType = model.EntityType(entityType)
	m.Operation = model.Operation(operation)
	m.Payload = json.RawMessage(payload)
	m.EnqueuedAt = enqueuedAt
	m.Synced = syncedInt != 0
	if syncedAt.Valid {
		t := syncedAt.Time
		m.SyncedAt = &t
	}

	return m, nil
}

// scanDeadMutation scans a dead-letter row from a sqlx.Rows result set.
func scanDeadMutation(rows *sqlx.Rows) (model.DeadMutation, error) {
	var (
		d          model.DeadMutation
		entityType string
		operation  string
		payload    string
		enqueuedAt time.Time
		failedAt   time.Time
	)

	err := rows.Scan(
		&d.ID, &entityType, &operation, &payload,
		&enqueuedAt, &d.Attempts, &d.Reason, &failedAt,
	)
	if err != nil {
		return model.DeadMutation{}, fmt.Errorf("scanning dead-letter row: %w", err)
	}

	d.EntityType = model.EntityType(entityType)
	d.Operation = model.Operation(operation)
	d.Payload = json.RawMessage(payload)
	d.EnqueuedAt = enqueuedAt
	d.FailedAt = failedAt

	return d, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		nType     string
		data      string
		readInt   int
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &nType, &n.Title, &n.Body, &data, &readInt, &createdAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.NotificationType(nType)
	n.Read = readInt != 0
	n.CreatedAt = createdAt
	if data != "" && data != "null" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return model.Notification{}, fmt.Errorf("decoding notification data: %w", err)
		}
	}

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
