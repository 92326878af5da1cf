//go:build cgo_sqlite

package storefile

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver the archives are opened with.
const DriverName = "sqlite3"

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open(DriverName, dataSource)
}
