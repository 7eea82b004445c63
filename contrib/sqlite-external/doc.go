// Package sqliteexternal registers the CGO SQLite driver for sagadb.
//
// core/sqlite imports it when built with the cgo_sqlite tag:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...
//
// Without the tag the pure Go driver (modernc.org/sqlite) is used and this
// package is empty. Both drivers report constraint, busy and missing-table
// errors with the same messages, so error classification does not depend on
// the choice.
package sqliteexternal
