// Package postgres stores presence events and drafts in PostgreSQL, for
// setups where several machines run passes against one shared store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	entdriver "github.com/papercomputeco/presence/pkg/storage/ent/driver"
)

const (
	applicationName = "presence"

	// A pass writes one unit at a time; the API server reads concurrently.
	maxOpenConns    = 4
	connMaxIdleTime = 5 * time.Minute

	pingTimeout = 10 * time.Second
)

// Driver is a storage.Driver over PostgreSQL.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver connects with dsn, either key/value
// ("host=localhost user=presence dbname=presence sslmode=disable") or a
// postgres:// URI, and migrates the schema.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if _, ok := cc.RuntimeParams["application_name"]; !ok {
		cc.RuntimeParams["application_name"] = applicationName
	}

	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d/%s: %w", cc.Host, cc.Port, cc.Database, err)
	}

	ed, err := entdriver.New(ctx, entsql.OpenDB(dialect.Postgres, db))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Driver{EntDriver: ed}, nil
}
