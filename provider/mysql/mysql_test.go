package mysql_test

import (
	"fmt"
	"testing"

	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/provider/mysql"
)

func TestDSN(t *testing.T) {
	dsn, err := mysql.DSN("app:secret@tcp(db:3306)/northwind?charset=utf8mb4")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	_, err = mysql.DSN("northwind")
	assert.Error(t, err)

	p := mysql.New()
	assert.Equal(t, mysql.Name, p.Name())
	assert.Equal(t, dialect.MySQL, p.Policy().Name)
	_, err = p.Pool().DB("northwind")
	assert.Error(t, err, "invalid DSN is rejected before opening")
	assert.Zero(t, p.Pool().Len())
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&driver.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{fmt.Errorf("update: %w", &driver.MySQLError{Number: 1205}), true},
		{&driver.MySQLError{Number: 1020}, true},
		{&driver.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{fmt.Errorf("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mysql.IsConflict(tt.err), "%v", tt.err)
	}
}
