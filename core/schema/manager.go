package schema

// Manager creates, alters, drops and introspects tables. All table names are
// logical; implementations apply the connection prefix once per operation.
//
// Add operations fail with a SchemaError wrapping the matching *Exists
// sentinel when the target is already present, and every other operation
// fails with the matching *NotFound sentinel when the target is absent.
type Manager interface {
	CreateTable(t TableDefinition) error
	// CreateTableIfNotExists reports whether the table was created.
	CreateTableIfNotExists(t TableDefinition) (bool, error)
	DropTable(name string) error
	// DropTableIfExists reports whether a table was dropped.
	DropTableIfExists(name string) (bool, error)
	RenameTable(from, to string) error
	HasTable(name string) (bool, error)
	// GetTables lists logical table names in lexical order.
	GetTables() ([]string, error)
	GetTable(name string) (TableDefinition, error)

	AddColumn(table string, c ColumnDefinition) error
	DropColumn(table, column string) error
	// ModifyColumn replaces the definition of the column named c.Name().
	ModifyColumn(table string, c ColumnDefinition) error
	RenameColumn(table, from, to string) error
	HasColumn(table, column string) (bool, error)
	GetColumns(table string) ([]ColumnDefinition, error)

	AddIndex(table string, ix IndexDefinition) error
	DropIndex(table, name string) error
	RenameIndex(table, from, to string) error
	HasIndex(table, name string) (bool, error)
	GetIndexes(table string) ([]IndexDefinition, error)

	AddForeignKey(table string, fk ForeignKeyDefinition) error
	DropForeignKey(table, name string) error
	HasForeignKey(table, name string) (bool, error)
	GetForeignKeys(table string) ([]ForeignKeyDefinition, error)
}
