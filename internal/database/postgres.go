package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"rightblock/internal/store"
)

// PostgresStore is a store.Backend on a kv_entries table. Writes pg_notify the
// key name; Watch and Subscribe hold a pq.Listener.
type PostgresStore struct {
	conn    *sql.DB
	connStr string
	prefix  string
	log     *zap.Logger
}

func NewPostgresStore(connStr, prefix string, log *zap.Logger) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}

	ps := NewPostgresStoreFromDB(conn, connStr, prefix, log)
	if err := ps.InitSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create kv_entries: %w", err)
	}
	return ps, nil
}

// NewPostgresStoreFromDB wraps an open connection; connStr is used for listeners
func NewPostgresStoreFromDB(conn *sql.DB, connStr, prefix string, log *zap.Logger) *PostgresStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{conn: conn, connStr: connStr, prefix: prefix, log: log}
}

// InitSchema creates the kv_entries table if it doesn't exist
func (p *PostgresStore) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		entry_key VARCHAR(191) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`
	_, err := p.conn.ExecContext(ctx, query)
	return err
}

func (p *PostgresStore) changesChannel() string {
	return p.prefix + "_changes"
}

func (p *PostgresStore) debugChannel() string {
	return p.prefix + "_debug"
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.conn.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE entry_key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv_entries (entry_key, value, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (entry_key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at`
	if _, err := p.conn.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return err
	}
	return p.notify(ctx, p.changesChannel(), key)
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM kv_entries WHERE entry_key = $1`, key); err != nil {
		return err
	}
	return p.notify(ctx, p.changesChannel(), key)
}

func (p *PostgresStore) Close() error {
	return p.conn.Close()
}

func (p *PostgresStore) Publish(ctx context.Context, msg string) error {
	return p.notify(ctx, p.debugChannel(), msg)
}

func (p *PostgresStore) notify(ctx context.Context, channel, payload string) error {
	_, err := p.conn.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	return err
}

// Watch streams changed key names until ctx is done
func (p *PostgresStore) Watch(ctx context.Context) (<-chan string, error) {
	return p.listen(ctx, p.changesChannel())
}

func (p *PostgresStore) Subscribe(ctx context.Context) (<-chan string, error) {
	return p.listen(ctx, p.debugChannel())
}

func (p *PostgresStore) listen(ctx context.Context, channel string) (<-chan string, error) {
	log := p.log.With(zap.String("channel", channel))
	listener := pq.NewListener(p.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect; anything may have changed meanwhile
				if n == nil {
					continue
				}
				select {
				case out <- n.Extra:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
