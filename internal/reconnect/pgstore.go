package reconnect

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/wydcore/wyd-server/internal/reconnect/migrations"
)

var gooseOnce sync.Once
var gooseSetupErr error

// PostgresSessionStore persists encrypted session blobs in a Postgres
// table, giving reconnect-across-process-restart semantics. It follows
// the teacher's pgxpool.Pool-wrapped DB shape: a constructor that pings,
// a Close, and error-wrapped query methods.
type PostgresSessionStore struct {
	pool   *pgxpool.Pool
	cipher SessionCipher
}

// NewPostgresSessionStore opens a pool against dsn, runs pending
// migrations, and returns a ready store.
func NewPostgresSessionStore(ctx context.Context, dsn string, cipher SessionCipher) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("reconnect: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reconnect: pinging postgres: %w", err)
	}
	if err := runMigrations(ctx, dsn); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSessionStore{pool: pool, cipher: cipher}, nil
}

// runMigrations applies the store's goose migrations using a
// database/sql connection opened through the pgx stdlib driver, kept
// separate from the pgxpool.Pool used for ordinary queries.
func runMigrations(ctx context.Context, dsn string) error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		gooseSetupErr = goose.SetDialect("postgres")
	})
	if gooseSetupErr != nil {
		return fmt.Errorf("reconnect: configuring goose: %w", gooseSetupErr)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("reconnect: opening migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("reconnect: running migrations: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (p *PostgresSessionStore) Close() {
	p.pool.Close()
}

func (p *PostgresSessionStore) Save(ctx context.Context, s *Session) error {
	plain := encodeSession(s)
	cipherText, err := encodeEncrypted(p.cipher, plain)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO reconnect_sessions (session_id, ciphertext, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET ciphertext = $2, updated_at = now()
	`, s.SessionID, cipherText)
	if err != nil {
		return fmt.Errorf("reconnect: saving session %q: %w", s.SessionID, err)
	}
	return nil
}

func (p *PostgresSessionStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var cipherText []byte
	err := p.pool.QueryRow(ctx, `
		SELECT ciphertext FROM reconnect_sessions WHERE session_id = $1
	`, sessionID).Scan(&cipherText)
	if err != nil {
		return nil, fmt.Errorf("reconnect: loading session %q: %w", sessionID, err)
	}

	plain, err := decodeEncrypted(p.cipher, cipherText)
	if err != nil {
		return nil, err
	}
	return decodeSession(plain)
}

func (p *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM reconnect_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("reconnect: deleting session %q: %w", sessionID, err)
	}
	return nil
}
