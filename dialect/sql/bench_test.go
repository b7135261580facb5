package sql

import (
	"testing"

	"github.com/syssam/dataspace/dialect"
	"github.com/syssam/dataspace/query"
)

var benchPolicies = []dialect.Policy{sqlitePolicy, mysqlPolicy, postgresPolicy, mssqlPolicy}

func BenchmarkBuild_Simple(b *testing.B) {
	for _, p := range benchPolicies {
		b.Run(p.Name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				q := query.New("Employees").Select("EmployeeID", "LastName", "FirstName")
				_, _, _ = Build(p, q)
			}
		})
	}
}

func BenchmarkBuild_Complex(b *testing.B) {
	for _, p := range benchPolicies {
		b.Run(p.Name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				e := query.New("Employees").As("e")
				o := query.New("Orders").As("o")
				e.Select(e.C("LastName"), o.C("OrderID").Count().As("Orders")).
					InnerJoin(o).On(e.C("EmployeeID").EQ(o.C("EmployeeID"))).
					Where(
						e.C("Region").In("WA", "OR"),
						query.ConjOr, query.LParen,
						e.C("LastName").Like("F%"), e.C("HireDate").GTE("1993-01-01"),
						query.RParen,
					).
					GroupBy(e.C("LastName")).
					OrderBy(e.C("LastName").Asc()).
					Page(2, 20)
				_, _, _ = Build(p, e)
			}
		})
	}
}

func BenchmarkInsertCommand(b *testing.B) {
	cols := employeeColumns()
	for _, p := range benchPolicies {
		b.Run(p.Name, func(b *testing.B) {
			cache := NewParameterCache()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tpl := cache.Get("Northwind.Employees", cols, nil)
				_, _, _ = InsertCommand(p, employeesTarget, cols, tpl, addedEmployee(), SaveOptions{})
			}
		})
	}
}

func BenchmarkUpdateCommand(b *testing.B) {
	cols := employeeColumns()
	for _, p := range benchPolicies {
		b.Run(p.Name, func(b *testing.B) {
			cache := NewParameterCache()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tpl := cache.Get("Northwind.Employees", cols, nil)
				_, _, _ = UpdateCommand(p, employeesTarget, cols, tpl, modifiedEmployee(), SaveOptions{})
			}
		})
	}
}
