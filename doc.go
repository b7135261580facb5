// Package dataspace decouples entity code from concrete database backends.
//
// Entity code describes what it needs in a DataRequest: a query.Query for
// reads, save packets or a Table for writes, column metadata and the
// connection to use. A Registry resolves the request's provider by name and
// hands the request over; the provider renders dialect SQL, enlists the
// command in the ambient transaction scope (see package txscope) and
// returns a DataResponse.
//
//	reg := dataspace.NewRegistry()
//	reg.Register("sqlite", sqlite.New())
//
//	q := query.New("Employees").
//		Where(query.C("EmployeeID").GT(5), query.C("LastName").Like("G%")).
//		OrderBy(query.C("LastName").Asc())
//	resp, err := reg.LoadTable(ctx, &dataspace.DataRequest{
//		ProviderName:     "sqlite",
//		ConnectionString: "file:northwind.db",
//		Query:            q,
//	})
//
// Providers never return errors directly. Failures are stored in
// DataResponse.Err, and the Registry converts that slot into the returned
// error after the call so LastQuery stays available for diagnostics.
package dataspace
