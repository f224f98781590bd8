package loop

import (
	"context"
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor for emitted DDL.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SchemaOptions tune CreateSQL.
type SchemaOptions struct {
	// IDType overrides the id column type, e.g. "VARCHAR(64)". Defaults to
	// INTEGER for integer keys and TEXT (VARCHAR(255) on MySQL) for text keys.
	IDType string
	// Engine is the MySQL storage engine (default InnoDB). Ignored elsewhere.
	Engine string
	// Dialect defaults to DialectSQLite.
	Dialect Dialect
}

// CreateSQL returns the statements that create a loop table. Useful for
// piping into a database shell; Create executes the sqlite flavor directly.
//
// The composite (lock_until, last_updated) index is not decoration: it is
// exactly the merged ordering Get claims by, so claims stay index-served as
// loops grow. The (last_updated) index serves Stats' staleness buckets.
//
// There is deliberately no Drop: the statement is just DROP TABLE, and
// emitting it programmatically invites disaster.
func CreateSQL(name string, keyType KeyType, opts *SchemaOptions) ([]string, error) {
	if !validLoopName.MatchString(name) {
		return nil, fmt.Errorf("%w: loop name %q must match %s", ErrInvalidArgument, name, validLoopName)
	}
	if opts == nil {
		opts = &SchemaOptions{}
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectSQLite
	}

	idType := opts.IDType
	if idType == "" {
		switch {
		case keyType == KeyText && dialect == DialectMySQL:
			idType = "VARCHAR(255)"
		case keyType == KeyText:
			idType = "TEXT"
		case dialect == DialectMySQL:
			idType = "INT"
		default:
			idType = "INTEGER"
		}
	}

	switch dialect {
	case DialectSQLite:
		return []string{
			fmt.Sprintf(strings.Join([]string{
				"CREATE TABLE %s (",
				"  id %s NOT NULL,",
				"  last_updated INTEGER DEFAULT NULL,",
				"  lock_until INTEGER DEFAULT NULL,",
				"  PRIMARY KEY (id)",
				")",
			}, "\n"), name, idType),
			fmt.Sprintf("CREATE INDEX %s_lock_until ON %s (lock_until, last_updated)", name, name),
			fmt.Sprintf("CREATE INDEX %s_last_updated ON %s (last_updated)", name, name),
		}, nil
	case DialectMySQL:
		engine := opts.Engine
		if engine == "" {
			engine = "InnoDB"
		}
		if !validLoopName.MatchString(engine) {
			return nil, fmt.Errorf("%w: storage engine %q must match %s", ErrInvalidArgument, engine, validLoopName)
		}
		return []string{
			fmt.Sprintf(strings.Join([]string{
				"CREATE TABLE `%s` (",
				"  `id` %s NOT NULL,",
				"  `last_updated` INT DEFAULT NULL,",
				"  `lock_until` INT DEFAULT NULL,",
				"  PRIMARY KEY (`id`),",
				"  INDEX (`lock_until`, `last_updated`),",
				"  INDEX (`last_updated`)",
				") ENGINE=%s",
			}, "\n"), name, idType, engine),
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown dialect %q", ErrInvalidArgument, dialect)
}

// Create makes the loop's table and indexes on its own store.
func (l *Loop) Create(ctx context.Context) error {
	stmts, err := CreateSQL(l.conf.Name, l.conf.KeyType, nil)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	return nil
}
