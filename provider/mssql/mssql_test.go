package mssql_test

import (
	"fmt"
	"testing"

	driver "github.com/denisenkom/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/dataspace/dialect"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/provider/mssql"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		prm  *dsql.Parameter
		want any
	}{
		{"varchar", &dsql.Parameter{Type: "VarChar", Value: "Fuller"}, driver.VarChar("Fuller")},
		{"char", &dsql.Parameter{Type: "char", Value: "WA"}, driver.VarChar("WA")},
		{"nvarchar", &dsql.Parameter{Type: "nvarchar", Value: "Fuller"}, "Fuller"},
		{"untyped", &dsql.Parameter{Value: "Fuller"}, "Fuller"},
		{"int", &dsql.Parameter{Type: "varchar", Value: 7}, 7},
		{"null", &dsql.Parameter{Type: "varchar"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mssql.Convert(tt.prm))
		})
	}
}

func TestIsConflict(t *testing.T) {
	assert.True(t, mssql.IsConflict(driver.Error{Number: 1205}))
	assert.True(t, mssql.IsConflict(fmt.Errorf("update: %w", driver.Error{Number: 3960})))
	assert.False(t, mssql.IsConflict(driver.Error{Number: 2627}))
	assert.False(t, mssql.IsConflict(fmt.Errorf("plain")))
}

func TestNew(t *testing.T) {
	p := mssql.New()
	assert.Equal(t, mssql.Name, p.Name())
	assert.Equal(t, dialect.MSSQL, p.Policy().Name)
	assert.True(t, p.Policy().OutputInserted)
}
