//go:build cgo_sqlite

package sqlite

import (
	sqliteexternal "github.com/calounx/sagas-sub011/contrib/sqlite-external"
)

const (
	driverName    = sqliteexternal.DriverName
	driverType    = sqliteexternal.DriverType
	driverPackage = sqliteexternal.DriverPackage + " (via contrib/sqlite-external)"
)
