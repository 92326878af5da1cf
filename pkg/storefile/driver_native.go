//go:build !cgo_sqlite

package storefile

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver the archives are opened with.
const DriverName = "sqlite"

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open(DriverName, dataSource)
}
