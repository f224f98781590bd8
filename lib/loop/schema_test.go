package loop

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderDDL(t *testing.T, name string, keyType KeyType, opts *SchemaOptions) []byte {
	t.Helper()
	stmts, err := CreateSQL(name, keyType, opts)
	require.NoError(t, err)
	return []byte(strings.Join(stmts, ";\n") + ";\n")
}

func TestCreateSQLGolden(t *testing.T) {
	g := goldie.New(t)

	g.Assert(t, "sqlite_integer", renderDDL(t, "foo_loop", KeyInteger, nil))
	g.Assert(t, "sqlite_text", renderDDL(t, "foo_loop", KeyText, nil))
	g.Assert(t, "mysql_integer", renderDDL(t, "foo_loop", KeyInteger,
		&SchemaOptions{Dialect: DialectMySQL}))
	g.Assert(t, "mysql_varchar", renderDDL(t, "foo_loop", KeyText,
		&SchemaOptions{Dialect: DialectMySQL, IDType: "VARCHAR(64)", Engine: "MyISAM"}))
}

func TestCreateSQLValidation(t *testing.T) {
	_, err := CreateSQL("foo_loop; DROP TABLE users", KeyInteger, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = CreateSQL("foo_loop", KeyInteger, &SchemaOptions{Dialect: "oracle"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = CreateSQL("foo_loop", KeyInteger,
		&SchemaOptions{Dialect: DialectMySQL, Engine: "InnoDB; DROP TABLE users"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateErrorsIfTableExists(t *testing.T) {
	l := newTestLoop(t, Config{})

	// newTestLoop already created the table
	err := l.Create(context.Background())
	assert.Error(t, err)
}
