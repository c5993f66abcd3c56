package gdbadmin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/run"
)

const defaultPingTimeout = 2 * time.Second

// Open connects to the PostgreSQL server hosting the geodatabase and
// verifies the connection within the configured ping timeout.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres.url is required")
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// execer is the subset of *sql.DB used for statements without rows.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresAdmin gates connections and manages sessions directly in
// PostgreSQL. Version, compress and index calls go to the wrapped Admin.
type PostgresAdmin struct {
	Admin
	db       *sql.DB
	exec     execer
	database string
}

// NewPostgresAdmin wraps next with direct session management on db.
func NewPostgresAdmin(next Admin, db *sql.DB, database string) *PostgresAdmin {
	return &PostgresAdmin{Admin: next, db: db, exec: db, database: database}
}

// AcceptConnectionsSQL returns the statement that toggles new connections.
func AcceptConnectionsSQL(database string, accept bool) string {
	return fmt.Sprintf("ALTER DATABASE %s ALLOW_CONNECTIONS %t", pgx.Identifier{database}.Sanitize(), accept)
}

const terminateSQL = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid()`

const listUsersSQL = `SELECT COALESCE(usename, ''), COALESCE(client_hostname, host(client_addr), ''), pid, backend_start
FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid()
ORDER BY backend_start`

func (p *PostgresAdmin) AcceptConnections(ctx context.Context, accept bool) error {
	if _, err := p.exec.ExecContext(ctx, AcceptConnectionsSQL(p.database, accept)); err != nil {
		return run.Fail("AcceptConnections", err, "database", p.database, "accept", fmt.Sprint(accept))
	}
	return nil
}

func (p *PostgresAdmin) DisconnectAll(ctx context.Context) error {
	if _, err := p.exec.ExecContext(ctx, terminateSQL, p.database); err != nil {
		return run.Fail("DisconnectUser", err, "database", p.database, "users", "ALL")
	}
	return nil
}

func (p *PostgresAdmin) ListUsers(ctx context.Context) ([]User, error) {
	if p.db == nil {
		return nil, run.Fail("ListUsers", errors.New("no database handle"), "database", p.database)
	}
	rows, err := p.db.QueryContext(ctx, listUsersSQL, p.database)
	if err != nil {
		return nil, run.Fail("ListUsers", err, "database", p.database)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var started sql.NullTime
		if err := rows.Scan(&u.Name, &u.Client, &u.ID, &started); err != nil {
			return nil, run.Fail("ListUsers", err, "database", p.database)
		}
		u.ConnectedAt = started.Time
		u.Direct = true
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, run.Fail("ListUsers", err, "database", p.database)
	}
	return users, nil
}
