package provider_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dataspace"
	"github.com/syssam/dataspace/dialect"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/provider"
	"github.com/syssam/dataspace/query"
	"github.com/syssam/dataspace/txscope"
)

const connStr = "main"

// recorder collects trace events.
type recorder struct {
	mu     sync.Mutex
	events []dsql.TraceEvent
}

func (r *recorder) Trace(_ context.Context, ev dsql.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func newProvider(t *testing.T, d string, opts ...provider.Option) (*provider.Provider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	p := provider.New(d, dialect.MustLookup(d), d, append([]provider.Option{provider.WithDB(connStr, db)}, opts...)...)
	t.Cleanup(func() { p.Close() })
	return p, mock
}

func employeeColumns() dataspace.Columns {
	return dataspace.Columns{
		{Name: "EmployeeID", Ordinal: 1, NativeType: "INTEGER", IsInPrimaryKey: true, IsAutoIncrement: true},
		{Name: "LastName", Ordinal: 2, NativeType: "VARCHAR", CharacterMaxLength: 20},
		{Name: "FirstName", Ordinal: 3, NativeType: "VARCHAR", CharacterMaxLength: 10},
		{Name: "Region", Ordinal: 4, NativeType: "VARCHAR", HasDefault: true, Default: "'WA'"},
		{Name: "Version", Ordinal: 5, NativeType: "INTEGER", IsEntitySpacesConcurrency: true},
	}
}

func saveRequest() *dataspace.DataRequest {
	return &dataspace.DataRequest{
		ConnectionString: connStr,
		Columns:          employeeColumns(),
		Metadata:         &dataspace.ProviderMetadata{Destination: "Employees"},
	}
}

func TestLoadTable(t *testing.T) {
	rec := &recorder{}
	p, mock := newProvider(t, dialect.SQLite, provider.WithTracer(rec))
	mock.ExpectQuery(`SELECT * FROM "Employees" WHERE "EmployeeID" > @EmployeeID1 AND "LastName" LIKE @LastName2 ORDER BY "LastName" ASC`).
		WithArgs(sql.Named("EmployeeID1", 5), sql.Named("LastName2", "G%")).
		WillReturnRows(sqlmock.NewRows([]string{"EmployeeID", "LastName"}).
			AddRow(int64(7), "King").
			AddRow(int64(9), "Gray"))

	resp := p.LoadTable(context.Background(), &dataspace.DataRequest{
		ConnectionString: connStr,
		Query: query.New("Employees").
			Where(query.C("EmployeeID").GT(5), query.C("LastName").Like("G%")).
			OrderBy(query.C("LastName").Asc()),
	})
	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Table)
	assert.Equal(t, "Employees", resp.Table.Name)
	assert.Equal(t, []string{"EmployeeID", "LastName"}, resp.Table.Columns)
	require.Len(t, resp.Table.Rows, 2)
	assert.Equal(t, dataspace.Unchanged, resp.Table.Rows[0].State)
	assert.Equal(t, "Gray", resp.Table.Rows[1].Values["LastName"])
	assert.Contains(t, resp.LastQuery, `ORDER BY "LastName" ASC`)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "load_table", ev.Action)
	assert.Equal(t, dialect.SQLite, ev.Dialect)
	assert.Empty(t, ev.ScopeID)
	assert.Equal(t, map[string]any{"EmployeeID1": 5, "LastName2": "G%"}, ev.ParamsBefore)
}

func TestLoadTableErrors(t *testing.T) {
	t.Run("construction", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		resp := p.LoadTable(context.Background(), &dataspace.DataRequest{
			ConnectionString: connStr,
			Query:            query.New("Employees").Select(query.C("<COUNT(*)")),
		})
		assert.True(t, dataspace.IsConstructionError(resp.Err))
		assert.Nil(t, resp.Table)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no query", func(t *testing.T) {
		p, _ := newProvider(t, dialect.SQLite)
		resp := p.LoadTable(context.Background(), &dataspace.DataRequest{ConnectionString: connStr})
		assert.True(t, dataspace.IsConstructionError(resp.Err))
	})

	t.Run("execution", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectQuery(`SELECT * FROM "Missing"`).WillReturnError(errors.New("no such table: Missing"))
		resp := p.LoadTable(context.Background(), &dataspace.DataRequest{
			ConnectionString: connStr,
			Query:            query.New("Missing"),
		})
		require.True(t, dataspace.IsExecutionError(resp.Err))
		var ee *dataspace.ExecutionError
		require.ErrorAs(t, resp.Err, &ee)
		assert.Equal(t, `SELECT * FROM "Missing"`, ee.LastQuery)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("request defaults", func(t *testing.T) {
		p, mock := newProvider(t, dialect.Postgres)
		mock.ExpectQuery(`SELECT * FROM "hr"."v_Employees"`).
			WillReturnRows(sqlmock.NewRows([]string{"EmployeeID"}))
		resp := p.LoadTable(context.Background(), &dataspace.DataRequest{
			ConnectionString: connStr,
			Schema:           "hr",
			Metadata:         &dataspace.ProviderMetadata{Source: "v_Employees"},
			Query:            query.New("Employees"),
		})
		require.NoError(t, resp.Err)
		assert.Empty(t, resp.Table.Rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("request defaults leave query unchanged", func(t *testing.T) {
		p, mock := newProvider(t, dialect.Postgres)
		mock.ExpectQuery(`SELECT * FROM "hr"."v_Employees"`).
			WillReturnRows(sqlmock.NewRows([]string{"EmployeeID"}))
		mock.ExpectQuery(`SELECT * FROM "sales"."Employees"`).
			WillReturnRows(sqlmock.NewRows([]string{"EmployeeID"}))
		q := query.New("Employees")
		resp := p.LoadTable(context.Background(), &dataspace.DataRequest{
			ConnectionString: connStr,
			Schema:           "hr",
			Metadata:         &dataspace.ProviderMetadata{Source: "v_Employees"},
			Query:            q,
		})
		require.NoError(t, resp.Err)
		assert.Empty(t, q.SchemaName())
		assert.Equal(t, "Employees", q.SourceName())

		resp = p.LoadTable(context.Background(), &dataspace.DataRequest{
			ConnectionString: connStr,
			Schema:           "sales",
			Query:            q,
		})
		require.NoError(t, resp.Err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("non query", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectExec(`DELETE FROM "Log" WHERE "Age" > @Days`).
			WithArgs(sql.Named("Days", 30)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		resp := p.ExecuteNonQuery(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			CommandText:      `DELETE FROM "Log" WHERE "Age" > @Days`,
			Parameters:       []*dataspace.Param{{Name: "Days", Value: 30}},
		})
		require.NoError(t, resp.Err)
		assert.Equal(t, int64(3), resp.RowsAffected)
		assert.Nil(t, resp.OutputParams)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scalar", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectQuery(`SELECT COUNT(*) AS "Total" FROM "Employees"`).
			WillReturnRows(sqlmock.NewRows([]string{"Total"}).AddRow(int64(9)))
		resp := p.ExecuteScalar(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			Query:            query.New("Employees").Count("Total"),
		})
		require.NoError(t, resp.Err)
		assert.Equal(t, int64(9), resp.Scalar)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reader", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectQuery(`SELECT "LastName" FROM "Employees"`).
			WillReturnRows(sqlmock.NewRows([]string{"LastName"}).AddRow("Davolio").AddRow("Fuller"))
		resp := p.ExecuteReader(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			CommandText:      `SELECT "LastName" FROM "Employees"`,
		})
		require.NoError(t, resp.Err)
		var names []string
		for resp.Reader.Next() {
			var s string
			require.NoError(t, resp.Reader.Scan(&s))
			names = append(names, s)
		}
		require.NoError(t, resp.Reader.Err())
		require.NoError(t, resp.Reader.Close())
		assert.Equal(t, []string{"Davolio", "Fuller"}, names)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("data set", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectQuery(`SELECT 1 AS a; SELECT 2 AS b`).
			WillReturnRows(
				sqlmock.NewRows([]string{"a"}).AddRow(int64(1)),
				sqlmock.NewRows([]string{"b"}).AddRow(int64(2)),
			)
		resp := p.FillDataSet(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			CommandText:      `SELECT 1 AS a; SELECT 2 AS b`,
		})
		require.NoError(t, resp.Err)
		require.Len(t, resp.Tables, 2)
		assert.Equal(t, int64(2), resp.Tables[1].Rows[0].Values["b"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fill table", func(t *testing.T) {
		p, mock := newProvider(t, dialect.MySQL)
		mock.ExpectQuery("SELECT `City` FROM `Customers` WHERE `Country` = ?").
			WithArgs("UK").
			WillReturnRows(sqlmock.NewRows([]string{"City"}).AddRow("London"))
		resp := p.FillTable(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			Table:            dataspace.NewTable("Cities"),
			CommandText:      "SELECT `City` FROM `Customers` WHERE `Country` = ?",
			Parameters:       []*dataspace.Param{{Name: "Country", Value: "UK"}},
		})
		require.NoError(t, resp.Err)
		assert.Equal(t, "Cities", resp.Table.Name)
		assert.Equal(t, "London", resp.Table.Rows[0].Values["City"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("application name", func(t *testing.T) {
		p, mock := newProvider(t, dialect.Postgres)
		mock.ExpectExec(`SET application_name = 'payroll'`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`VACUUM`).WillReturnResult(sqlmock.NewResult(0, 0))
		resp := p.ExecuteNonQuery(ctx, &dataspace.DataRequest{
			ConnectionString: connStr,
			Application:      "payroll",
			CommandText:      `VACUUM`,
		})
		require.NoError(t, resp.Err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to run", func(t *testing.T) {
		p, _ := newProvider(t, dialect.SQLite)
		resp := p.ExecuteScalar(ctx, &dataspace.DataRequest{ConnectionString: connStr})
		assert.True(t, dataspace.IsConstructionError(resp.Err))
	})
}

func TestSaveInsert(t *testing.T) {
	rec := &recorder{}
	p, mock := newProvider(t, dialect.SQLite, provider.WithTracer(rec))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "Employees" ("LastName", "FirstName", "Version") VALUES (@LastName, @FirstName, 1)`).
		WithArgs(sql.Named("LastName", "Davolio"), sql.Named("FirstName", "Nancy")).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(`SELECT last_insert_rowid()`).
		WillReturnRows(sqlmock.NewRows([]string{"last_insert_rowid()"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT "Region", "Version" FROM "Employees" WHERE "EmployeeID" = @EmployeeID1`).
		WithArgs(sql.Named("EmployeeID1", int64(10))).
		WillReturnRows(sqlmock.NewRows([]string{"Region", "Version"}).AddRow("WA", int64(1)))
	mock.ExpectCommit()

	table := dataspace.NewTable("Employees", "EmployeeID", "LastName", "FirstName", "Region", "Version")
	row := table.AddRow(map[string]any{"LastName": "Davolio", "FirstName": "Nancy"})
	req := saveRequest()
	req.Table = table
	resp := p.SaveTable(context.Background(), req)
	require.NoError(t, resp.Err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(1), resp.RowsAffected)
	assert.Equal(t, int64(10), row.Values["EmployeeID"])
	assert.Equal(t, "WA", row.Values["Region"])
	assert.Equal(t, int64(1), row.Values["Version"])
	assert.Equal(t, dataspace.Unchanged, row.State)
	assert.Equal(t, int64(10), row.Original["EmployeeID"])

	assert.Equal(t, []string{"save_table", "identity", "refresh"}, rec.actions())
	scope := rec.events[0].ScopeID
	assert.NotEmpty(t, scope)
	for _, ev := range rec.events {
		assert.Equal(t, scope, ev.ScopeID)
	}
}

func TestSaveReturning(t *testing.T) {
	p, mock := newProvider(t, dialect.Postgres)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "Employees" ("LastName", "FirstName", "Version") VALUES ($1, $2, 1) RETURNING "EmployeeID", "Region", "Version"`).
		WithArgs("Davolio", "Nancy").
		WillReturnRows(sqlmock.NewRows([]string{"EmployeeID", "Region", "Version"}).AddRow(int64(3), "WA", int64(1)))
	mock.ExpectCommit()

	pkt := &dataspace.SavePacket{
		RowState:        dataspace.Added,
		CurrentValues:   map[string]any{"LastName": "Davolio", "FirstName": "Nancy"},
		ModifiedColumns: []string{"LastName", "FirstName"},
	}
	req := saveRequest()
	req.Packet = pkt
	resp := p.SaveTable(context.Background(), req)
	require.NoError(t, resp.Err)
	assert.Equal(t, int64(3), pkt.CurrentValues["EmployeeID"])
	assert.Equal(t, int64(1), pkt.CurrentValues["Version"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func modified(id, version int64, name string) *dataspace.SavePacket {
	return &dataspace.SavePacket{
		RowState:        dataspace.Modified,
		CurrentValues:   map[string]any{"EmployeeID": id, "LastName": name, "Version": version},
		OriginalValues:  map[string]any{"EmployeeID": id, "LastName": "Fuler", "Version": version},
		ModifiedColumns: []string{"LastName"},
	}
}

func deleted(id, version int64) *dataspace.SavePacket {
	return &dataspace.SavePacket{
		RowState:       dataspace.Deleted,
		CurrentValues:  map[string]any{"EmployeeID": id, "Version": version},
		OriginalValues: map[string]any{"EmployeeID": id, "Version": version},
	}
}

const (
	updateEmployee = `UPDATE "Employees" SET "LastName" = @LastName, "Version" = "Version" + 1 WHERE "EmployeeID" = @OrigEmployeeID AND "Version" = @OrigVersion`
	deleteEmployee = `DELETE FROM "Employees" WHERE "EmployeeID" = @OrigEmployeeID AND "Version" = @OrigVersion`
)

func TestSaveUpdate(t *testing.T) {
	t.Run("refreshes version", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec(updateEmployee).
			WithArgs(sql.Named("LastName", "Fuller"), sql.Named("OrigEmployeeID", int64(7)), sql.Named("OrigVersion", int64(3))).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT "Version" FROM "Employees" WHERE "EmployeeID" = @EmployeeID1`).
			WithArgs(sql.Named("EmployeeID1", int64(7))).
			WillReturnRows(sqlmock.NewRows([]string{"Version"}).AddRow(int64(4)))
		mock.ExpectCommit()

		pkt := modified(7, 3, "Fuller")
		req := saveRequest()
		req.Packet = pkt
		resp := p.SaveTable(context.Background(), req)
		require.NoError(t, resp.Err)
		assert.Equal(t, int64(4), pkt.CurrentValues["Version"])
		assert.Equal(t, updateEmployee, resp.LastQuery)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost update", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec(updateEmployee).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		req := saveRequest()
		req.Packets = []*dataspace.SavePacket{modified(7, 3, "Fuller"), modified(8, 1, "Buchanan")}
		resp := p.SaveTable(context.Background(), req)
		require.Error(t, resp.Err)
		assert.True(t, dataspace.IsConcurrencyError(resp.Err))
		var pe *dataspace.PacketError
		require.ErrorAs(t, resp.Err, &pe)
		assert.Equal(t, 0, pe.Index)
		assert.Same(t, req.Packets[0], pe.Packet)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no changes", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		pkt := modified(7, 3, "Fuller")
		pkt.ModifiedColumns = nil
		req := saveRequest()
		req.Packet = pkt
		resp := p.SaveTable(context.Background(), req)
		require.NoError(t, resp.Err)
		assert.Zero(t, resp.RowsAffected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver conflict", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		mock.ExpectBegin()
		mock.ExpectExec(updateEmployee).WillReturnError(errors.New("database is locked"))
		mock.ExpectRollback()
		req := saveRequest()
		req.Packet = modified(7, 3, "Fuller")
		resp := p.SaveTable(context.Background(), req)
		var ce *dataspace.ConcurrencyError
		require.ErrorAs(t, resp.Err, &ce)
		assert.Equal(t, "Employees", ce.Table)
		assert.Equal(t, "update", ce.Op)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveContinueOnError(t *testing.T) {
	expect := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectExec(deleteEmployee).
			WithArgs(sql.Named("OrigEmployeeID", int64(1)), sql.Named("OrigVersion", int64(1))).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(deleteEmployee).
			WithArgs(sql.Named("OrigEmployeeID", int64(2)), sql.Named("OrigVersion", int64(1))).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	t.Run("callback", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		expect(mock)
		var failed []*dataspace.SavePacket
		req := saveRequest()
		req.Packets = []*dataspace.SavePacket{deleted(1, 1), deleted(2, 1)}
		req.ContinueOnError = true
		req.OnError = func(pkt *dataspace.SavePacket, err error) {
			assert.True(t, dataspace.IsConcurrencyError(err))
			failed = append(failed, pkt)
		}
		resp := p.SaveTable(context.Background(), req)
		require.NoError(t, resp.Err)
		assert.Equal(t, int64(1), resp.RowsAffected)
		assert.Equal(t, []*dataspace.SavePacket{req.Packets[0]}, failed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("collected", func(t *testing.T) {
		p, mock := newProvider(t, dialect.SQLite)
		expect(mock)
		req := saveRequest()
		req.Packets = []*dataspace.SavePacket{deleted(1, 1), deleted(2, 1)}
		req.ContinueOnError = true
		resp := p.SaveTable(context.Background(), req)
		var pe *dataspace.PacketError
		require.ErrorAs(t, resp.Err, &pe)
		assert.Equal(t, 0, pe.Index)
		assert.Equal(t, int64(1), resp.RowsAffected)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveMixedBatch(t *testing.T) {
	p, mock := newProvider(t, dialect.SQLite)
	req := saveRequest()
	req.Packets = []*dataspace.SavePacket{
		deleted(1, 1),
		{RowState: dataspace.Unchanged},
		modified(2, 1, "Fuller"),
	}
	resp := p.SaveTable(context.Background(), req)
	assert.True(t, dataspace.IsConstructionError(resp.Err))
	assert.ErrorIs(t, resp.Err, dataspace.ErrMixedBatch)
	require.NoError(t, mock.ExpectationsWereMet())

	req.Packets = []*dataspace.SavePacket{{RowState: dataspace.Unchanged}}
	resp = p.SaveTable(context.Background(), req)
	require.NoError(t, resp.Err)
	assert.Zero(t, resp.RowsAffected)
}

func TestSaveStoredProcedure(t *testing.T) {
	p, mock := newProvider(t, dialect.Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`CALL "proc_EmployeesUpdate"($1, $2, $3, $4, $5)`).
		WithArgs(int64(7), "Fuller", nil, nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	req := saveRequest()
	req.Access = dataspace.AccessStoredProcedure
	req.Metadata.SPUpdate = "proc_EmployeesUpdate"
	req.Packet = modified(7, 3, "Fuller")
	resp := p.SaveTable(context.Background(), req)
	var ce *dataspace.ConcurrencyError
	require.ErrorAs(t, resp.Err, &ce)
	assert.Equal(t, "update", ce.Op)
	require.NoError(t, mock.ExpectationsWereMet())

	req.Packet = deleted(7, 3)
	resp = p.SaveTable(context.Background(), req)
	assert.True(t, dataspace.IsConstructionError(resp.Err), "no delete procedure configured")
}

func TestSaveJoinsAmbientScope(t *testing.T) {
	p, mock := newProvider(t, dialect.SQLite)
	mock.ExpectBegin()
	mock.ExpectExec(deleteEmployee).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx, scope := txscope.Enter(context.Background(), txscope.Required, sql.LevelDefault)
	table := dataspace.NewTable("Employees", "EmployeeID", "Version")
	row := table.Load(map[string]any{"EmployeeID": int64(5), "Version": int64(2)})
	row.Delete()
	req := saveRequest()
	req.Table = table
	resp := p.SaveTable(ctx, req)
	require.NoError(t, resp.Err)
	assert.Equal(t, dataspace.Deleted, row.State, "row is accepted when the outer scope commits")

	require.NoError(t, scope.Close())
	assert.Equal(t, dataspace.Deleted, row.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPool(t *testing.T) {
	pool := provider.NewPool("sqlmock")
	_, err := pool.DB("")
	assert.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	pool.Add(connStr, db)
	got, err := pool.DB(connStr)
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Equal(t, 1, pool.Len())
	require.NoError(t, pool.Close())
	assert.Zero(t, pool.Len())
}
