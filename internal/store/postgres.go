package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/deskline/support-chat/internal/chat"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// Bounded retry for idempotent reads only. Mutations are never
	// retried here: a retried INSERT could duplicate a message, so an
	// unknown mutation outcome is surfaced to the caller.
	readRetries    = 3
	readRetryDelay = 100 * time.Millisecond
)

// PostgresStore implements Store on PostgreSQL. Assignment runs in a
// transaction that takes a row lock on the session, so the waiting check,
// the live capacity count, and the update are one atomic step.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres connection failed: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	dbDriver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close closes the database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity for health probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `id, customer_id, customer_name, subscription_tier, status,
	COALESCE(assigned_agent_id, ''), COALESCE(assigned_agent_name, ''),
	created_at, assigned_at, closed_at, message_count`

func (s *PostgresStore) CreateSession(ctx context.Context, customer chat.Identity) (*chat.Session, error) {
	if err := chat.ValidateIdentity(customer); err != nil {
		return nil, err
	}

	sess := &chat.Session{
		ID:               uuid.New().String(),
		CustomerID:       customer.UserID,
		CustomerName:     customer.DisplayName,
		SubscriptionTier: customer.SubscriptionTier,
		Status:           chat.StatusWaiting,
		CreatedAt:        time.Now().UTC(),
	}

	const query = `
		INSERT INTO chat_sessions (id, customer_id, customer_name, subscription_tier, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.CustomerID, sess.CustomerName, sess.SubscriptionTier, sess.Status, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	var sess *chat.Session
	err := s.withReadRetry(ctx, func() error {
		const query = `
			SELECT ` + sessionColumns + `
			FROM chat_sessions_with_counts
			WHERE id = $1`
		row := s.db.QueryRowContext(ctx, query, sessionID)
		var err error
		sess, err = scanSession(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, status string) ([]*chat.Session, error) {
	// Waiting first by created_at (longest wait on top), then active by
	// assigned_at descending (most recently engaged first).
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions_with_counts`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += `
		ORDER BY
			CASE status WHEN 'waiting' THEN 0 WHEN 'active' THEN 1 ELSE 2 END,
			CASE WHEN status = 'waiting' THEN created_at END ASC,
			CASE WHEN status = 'active' THEN assigned_at END DESC,
			created_at DESC`

	var result []*chat.Session
	err := s.withReadRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("store: list sessions: %w", err)
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			sess, err := scanSession(rows)
			if err != nil {
				return err
			}
			result = append(result, sess)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) AssignSession(ctx context.Context, sessionID, agentID, agentName string, maxConcurrent int) (*chat.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin assign: %w", err)
	}
	defer tx.Rollback()

	// Row lock closes the two-agents-one-click race: the loser blocks
	// here until the winner commits, then sees status != waiting.
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lock session: %w", err)
	}
	if status != chat.StatusWaiting {
		return nil, fmt.Errorf("store: session %s is %s: %w", sessionID, status, chat.ErrConflict)
	}

	// Live count inside the same transaction; the availability registry's
	// advertised count is advisory, this one is enforced.
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE status = 'active' AND assigned_agent_id = $1`,
		agentID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("store: count active: %w", err)
	}
	if active >= maxConcurrent {
		return nil, fmt.Errorf("store: agent %s has %d/%d active: %w", agentID, active, maxConcurrent, chat.ErrCapacityExceeded)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE chat_sessions
		SET status = 'active', assigned_agent_id = $2, assigned_agent_name = $3, assigned_at = $4
		WHERE id = $1`,
		sessionID, agentID, agentName, now)
	if err != nil {
		return nil, fmt.Errorf("store: assign update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit assign: %w", err)
	}

	return s.GetSession(ctx, sessionID)
}

func (s *PostgresStore) CloseSession(ctx context.Context, sessionID, _ string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET status = 'closed', closed_at = $2
		WHERE id = $1 AND status <> 'closed'`,
		sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing updated: already closed (no-op) or never existed (NotFound).
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: close lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID, senderType, senderName, body string) (*chat.Message, error) {
	// The closed check and the insert run in one transaction with the
	// session row locked, so a concurrent close cannot slip a message
	// into a closed session.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin append: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lock session: %w", err)
	}
	if status == chat.StatusClosed {
		return nil, fmt.Errorf("store: session %s: %w", sessionID, chat.ErrSessionClosed)
	}

	msg := &chat.Message{
		SessionID:  sessionID,
		SenderType: senderType,
		SenderName: senderName,
		Body:       body,
	}
	// clock_timestamp(), not NOW(): NOW() is the transaction-start time,
	// which can run backwards relative to id when two appends serialize
	// on the row lock. clock_timestamp() is taken here, while the lock is
	// held, so timestamps increase with ids within a session.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (session_id, sender_type, sender_name, body, created_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		RETURNING id, created_at`,
		sessionID, senderType, senderName, body).Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("store: insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, since int64) ([]*chat.Message, error) {
	var result []*chat.Message
	err := s.withReadRetry(ctx, func() error {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("store: message session lookup: %w", err)
		}
		if !exists {
			return fmt.Errorf("store: session %s: %w", sessionID, chat.ErrNotFound)
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT id, session_id, sender_type, sender_name, body, created_at
			FROM chat_messages
			WHERE session_id = $1 AND id > $2
			ORDER BY id ASC`,
			sessionID, since)
		if err != nil {
			return fmt.Errorf("store: list messages: %w", err)
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var msg chat.Message
			if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderType, &msg.SenderName, &msg.Body, &msg.Timestamp); err != nil {
				return fmt.Errorf("store: scan message: %w", err)
			}
			result = append(result, &msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) CountActiveByAgent(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.withReadRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM chat_sessions WHERE status = 'active' AND assigned_agent_id = $1`,
			agentID).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("store: count active: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountWaiting(ctx context.Context) (int, error) {
	var count int
	err := s.withReadRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM chat_sessions WHERE status = 'waiting'`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("store: count waiting: %w", err)
	}
	return count, nil
}

// withReadRetry retries transient failures of idempotent reads a bounded
// number of times. Taxonomy errors and context cancellation pass through.
func (s *PostgresStore) withReadRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readRetryDelay):
			}
		}
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

// isTransient reports whether a database error is worth retrying. Domain
// errors, row-shape errors, and cancellations are not.
func isTransient(err error) bool {
	if errors.Is(err, chat.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 = connection exceptions, 57P01 = admin shutdown.
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01"
	}
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scannable) (*chat.Session, error) {
	var sess chat.Session
	var assignedAt, closedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.CustomerID, &sess.CustomerName, &sess.SubscriptionTier, &sess.Status,
		&sess.AssignedAgentID, &sess.AssignedAgent,
		&sess.CreatedAt, &assignedAt, &closedAt, &sess.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session: %w", chat.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan session: %w", err)
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		sess.AssignedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time
		sess.ClosedAt = &t
	}
	return &sess, nil
}
