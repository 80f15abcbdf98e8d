package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q, args := rebind(`SELECT * FROM t WHERE a=$2 AND (b=$1 OR c=$2) AND d=$10`, []any{"x", "y", 3, 4, 5, 6, 7, 8, 9, "ten"})
	assert.Equal(t, `SELECT * FROM t WHERE a=? AND (b=? OR c=?) AND d=?`, q)
	assert.Equal(t, []any{"y", "x", "y", "ten"}, args)

	q, args = rebind(`SELECT 1`, nil)
	assert.Equal(t, `SELECT 1`, q)
	assert.Nil(t, args)

	// Out of range placeholders are left alone.
	q, args = rebind(`SELECT $3`, []any{1})
	assert.Equal(t, `SELECT $3`, q)
	assert.Empty(t, args)
}

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{
		"postgres": DriverPostgres, "PGX": DriverPostgres, "sqlite3": DriverSQLite, "sqlite": DriverSQLite,
	} {
		got, err := NormalizeDriver(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeDriver("mysql")
	assert.Error(t, err)
}
