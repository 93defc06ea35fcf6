// Package datatest opens throwaway in-memory databases for repository and
// service tests.
package datatest

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/nanoid"
)

// NewSQLite returns a data layer over a private in-memory sqlite database
// that is closed when the test ends.
func NewSQLite(t testing.TB) *data.Data {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", nanoid.Lower(12))
	db, err := sql.Open(data.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		t.Fatalf("ping sqlite: %v", err)
	}

	d := data.NewWithDB(db, data.DriverSQLite, nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}
