// Package provider implements dataspace.Provider over database/sql.
//
// A Provider renders SQL with the dialect/sql builder, enlists every
// command in the ambient transaction scope of package txscope and reports
// failures through DataResponse.Err. The dialect subpackages construct
// providers for concrete drivers:
//
//	reg := dataspace.NewRegistry()
//	reg.Register(sqlite.Name, sqlite.New())
//	reg.Register(postgres.Name, postgres.New(provider.WithTracer(stats)))
//
// SaveTable persists packets in a Required scope. Inserts write generated
// identities and database defaults back into the packet and its buffered
// row; updates and deletes that match no row report a concurrency
// conflict.
package provider
