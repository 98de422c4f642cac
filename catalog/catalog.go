// Package catalog is the Catalog Store: the transactional relational
// backing store for every entity and relation the kernel tracks. It
// exposes a single write path, ExecuteAtomic, and a set of read queries;
// decoding rows into domain entities is left to the rms package, which
// owns the in-memory Registry and its caches.
package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"rmscore.evalgo.org/db"
	"rmscore.evalgo.org/rmserrors"
)

// Catalog wraps a pgx-backed connection pool with the kernel's schema
// and its single atomic-write entry point.
type Catalog struct {
	pg *db.PostgresDB
}

// Open connects to connString, ensures the schema exists, and bootstraps
// the mandatory metainfo('dbid', <hex>) row if this is a fresh database.
func Open(ctx context.Context, connString string) (*Catalog, error) {
	pg, err := db.NewPostgresDB(connString)
	if err != nil {
		return nil, &rmserrors.CatalogError{Op: "open", Err: err}
	}
	c := &Catalog{pg: pg}
	if err := c.bootstrap(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) bootstrap(ctx context.Context) error {
	if err := c.pg.Exec(ctx, schema); err != nil {
		return &rmserrors.CatalogError{Op: "bootstrap schema", Err: err}
	}

	var count int
	if err := c.pg.QueryRow(ctx, `SELECT count(*) FROM metainfo WHERE infokey = 'dbid'`).Scan(&count); err != nil {
		return &rmserrors.CatalogError{Op: "bootstrap dbid check", Err: err}
	}
	if count > 0 {
		return nil
	}

	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return &rmserrors.CatalogError{Op: "bootstrap dbid generate", Err: err}
	}
	dbid := hex.EncodeToString(b[:])
	if err := c.pg.Exec(ctx, `INSERT INTO metainfo (infokey, infovalue) VALUES ('dbid', $1)`, dbid); err != nil {
		return &rmserrors.CatalogError{Op: "bootstrap dbid insert", Err: err}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() { c.pg.Close() }

// ExecuteAtomic runs every statement inside one transaction, rolling
// back and returning rmserrors.CatalogError on any failure. This is the
// only path by which the Registry mutates the catalog.
func (c *Catalog) ExecuteAtomic(ctx context.Context, stmts []db.Statement) error {
	if err := c.pg.ExecuteAtomic(ctx, stmts); err != nil {
		return &rmserrors.CatalogError{Op: "execute_atomic", Err: err}
	}
	return nil
}

// DBID returns the database's bootstrap identity row.
func (c *Catalog) DBID(ctx context.Context) (string, error) {
	var v string
	if err := c.pg.QueryRow(ctx, `SELECT infovalue FROM metainfo WHERE infokey = 'dbid'`).Scan(&v); err != nil {
		return "", &rmserrors.CatalogError{Op: "dbid", Err: err}
	}
	return v, nil
}
