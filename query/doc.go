// Package query provides the dialect-neutral query model used by dataspace.
//
// A Query describes one logical SELECT: its source (a table, a view or another
// query), the selected expressions, joins, filters, grouping, ordering, set
// operations and paging. It carries no SQL text; the dialect/sql package
// renders it for a specific dialect.
//
// # Building queries
//
//	q := query.New("Employees").
//	    Where(query.C("EmployeeID").GT(5), query.C("LastName").Like("G%")).
//	    OrderBy(query.C("LastName").Asc())
//
// # Filters
//
// Where and Having accept a flat stream of items in the order they should
// appear: comparisons, conjunction markers and parenthesis markers. The
// stream is folded into a tree of groups, so parentheses and AND/OR/NOT
// placement in the generated SQL follow insertion order exactly:
//
//	q.Where(
//	    query.C("Country").EQ("UK"),
//	    query.ConjAnd, query.LParen,
//	    query.C("City").EQ("London"), query.ConjOr, query.C("City").EQ("Leeds"),
//	    query.RParen,
//	)
//
// The same filter can be written with the group helpers:
//
//	q.Where(query.C("Country").EQ("UK"), query.Or(query.C("City").EQ("London"), query.C("City").EQ("Leeds")))
//
// # Literal passthrough
//
// A column name wrapped in angle brackets is emitted verbatim without
// quoting, which allows raw SQL fragments:
//
//	query.C("<COUNT(DISTINCT City)>").As("Cities")
package query
