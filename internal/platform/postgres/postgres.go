// Package postgres is a connection hub:
// a lazily-connected, pingable *sql.DB wrapper shared by every postgres
// repository in internal/adapters/postgres/*.
package postgres

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/bodaboda-insure/core/internal/platform/log"
)

// Connection is a hub which deals with postgres connections, lazily
// dialing on first use and reusing the handle afterward.
type Connection struct {
	ConnectionString string
	MaxOpenConns      int
	MaxIdleConns      int
	Logger            log.Logger

	mu sync.Mutex
	db *sql.DB
}

// GetDB returns the shared *sql.DB, connecting on first call.
func (c *Connection) GetDB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}

	db, err := sql.Open("postgres", c.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}

	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if c.Logger != nil {
		c.Logger.Info("connected to postgres")
	}

	c.db = db

	return c.db, nil
}

// DSN builds a postgres connection string from discrete parts.
func DSN(host, user, password, dbname, port string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
}
