// Package errors provides the error taxonomy shared by every sagadb backend.
//
// Each kind is a struct carrying context plus an Unwrap that exposes either the
// underlying cause or a category sentinel, so callers can branch with errors.Is
// on the category and errors.As on the kind.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels
var (
	// ErrConnection indicates a connection-level failure
	ErrConnection = errors.New("connection error")
	// ErrQuery indicates a statement failed to execute
	ErrQuery = errors.New("query error")
	// ErrTransaction indicates an invalid transaction operation
	ErrTransaction = errors.New("transaction error")
	// ErrSchema indicates a DDL operation failed
	ErrSchema = errors.New("schema error")
	// ErrMigration indicates a migration step failed
	ErrMigration = errors.New("migration error")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an operation the active backend cannot perform
	ErrUnsupported = errors.New("unsupported")
)

// Specific sentinels. These are wrapped by the kinds below.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrNoTable            = errors.New("no table specified")
	ErrConstraint         = errors.New("constraint violation")
	ErrTransient          = errors.New("transient conflict")
	ErrNotActive          = errors.New("no active transaction")
	ErrTransactionActive  = errors.New("transaction already active")
	ErrUnknownSavepoint   = errors.New("unknown savepoint")
	ErrTableExists        = errors.New("table already exists")
	ErrTableNotFound      = errors.New("table not found")
	ErrColumnExists       = errors.New("column already exists")
	ErrColumnNotFound     = errors.New("column not found")
	ErrIndexExists        = errors.New("index already exists")
	ErrIndexNotFound      = errors.New("index not found")
	ErrForeignKeyExists   = errors.New("foreign key already exists")
	ErrForeignKeyNotFound = errors.New("foreign key not found")
)

// ConnectionError reports a refused, timed out, unauthenticated or lost connection.
type ConnectionError struct {
	Op    string // Lifecycle operation (e.g., "connect", "ping", "query")
	State string // Backend-specific state or code, if any
	Err   error  // Underlying error, if any
}

func (e *ConnectionError) Error() string {
	msg := "connection failed"
	if e.Op != "" {
		msg = fmt.Sprintf("connection failed during %s", e.Op)
	}
	if e.State != "" {
		msg += " [" + e.State + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConnection, e.Err}
	}
	return []error{ErrConnection}
}

// QueryError reports a statement that failed to execute.
type QueryError struct {
	Statement string // Offending statement, if one was rendered
	Bindings  []any  // Positional bindings sent with the statement
	Code      string // Backend error code, if any
	Err       error  // Underlying error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("query failed")
	if e.Code != "" {
		b.WriteString(" [" + e.Code + "]")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Statement != "" {
		b.WriteString(" (statement: " + e.Statement + ")")
	}
	return b.String()
}

func (e *QueryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrQuery, e.Err}
	}
	return []error{ErrQuery}
}

// TransactionError reports an operation attempted in the wrong transaction state
// or a native commit/rollback/savepoint failure.
type TransactionError struct {
	Op  string // Operation attempted (e.g., "commit", "savepoint")
	Err error  // Underlying error
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transaction %s failed", e.Op)
}

func (e *TransactionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransaction, e.Err}
	}
	return []error{ErrTransaction}
}

// SchemaError reports a failed DDL operation.
type SchemaError struct {
	Op     string // Operation (e.g., "create table", "drop column")
	Table  string // Logical table name
	Target string // Column, index or foreign key name, if any
	Err    error  // Underlying error, usually a specific sentinel
}

func (e *SchemaError) Error() string {
	subject := e.Table
	if e.Target != "" {
		subject = e.Table + "." + e.Target
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, subject, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, subject)
}

func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSchema, e.Err}
	}
	return []error{ErrSchema}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// MigrationError wraps any failure raised while applying or reverting a migration.
type MigrationError struct {
	ID        string // Migration identifier
	Direction string // "up" or "down"
	Err       error  // Underlying error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.ID, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMigration, e.Err}
	}
	return []error{ErrMigration}
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "join condition", "XML migration")
	Input   string // Offending input, if short enough to be useful
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("failed to parse %s %q: %s", e.Format, e.Input, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or operation
type UnsupportedError struct {
	Feature string // Feature or operation that is unsupported
	Reason  string // Why it's not supported
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewValidation creates a ValidationError
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewSchema creates a SchemaError
func NewSchema(op, table, target string, err error) *SchemaError {
	return &SchemaError{
		Op:     op,
		Table:  table,
		Target: target,
		Err:    err,
	}
}

// NewQuery creates a QueryError
func NewQuery(statement string, bindings []any, err error) *QueryError {
	return &QueryError{
		Statement: statement,
		Bindings:  bindings,
		Err:       err,
	}
}

// NewTransaction creates a TransactionError
func NewTransaction(op string, err error) *TransactionError {
	return &TransactionError{Op: op, Err: err}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// transientMarkers are substrings backends use for lock and deadlock conflicts.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
	"deadlock",
	"lock wait timeout",
	"could not serialize access",
}

// IsTransient reports whether err is a lock or deadlock class failure that is
// worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		switch qe.Code {
		case "1205", "1213", "40001", "40P01", "SQLITE_BUSY", "SQLITE_LOCKED":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
