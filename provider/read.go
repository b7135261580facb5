package provider

import (
	"context"

	"github.com/syssam/dataspace"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/txscope"
)

// LoadTable reads the rows selected by the request's query, or calls the
// load procedure in stored procedure mode.
func (p *Provider) LoadTable(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "load_table"
	resp := &dataspace.DataResponse{}
	cmd, err := p.loadCommand(req)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	rs, err := p.fetch(ctx, req, op, cmd, resp)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.Table = newTable(tableName(req), rs)
	return resp
}

// FillTable reads the first result set of a raw command into a table.
func (p *Provider) FillTable(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "fill_table"
	resp := &dataspace.DataResponse{}
	cmd, err := p.command(req, true)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	rs, err := p.fetch(ctx, req, op, cmd, resp)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.Table = newTable(tableName(req), rs)
	return resp
}

// FillDataSet reads every result set of a raw command.
func (p *Provider) FillDataSet(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "fill_dataset"
	resp := &dataspace.DataResponse{}
	cmd, err := p.command(req, true)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	if err := p.attach(ctx, req, cmd); err != nil {
		return resp.Fail(op, err)
	}
	defer p.release(ctx, cmd)
	rows, err := p.query(ctx, req, op, cmd)
	if err != nil {
		return resp.Fail(op, err)
	}
	sets, err := dsql.ScanResultSets(rows)
	if err != nil {
		return resp.Fail(op, err)
	}
	for i, rs := range sets {
		name := ""
		if i == 0 {
			name = tableName(req)
		}
		resp.Tables = append(resp.Tables, newTable(name, rs))
	}
	resp.OutputParams = cmd.Outputs()
	return resp
}

// ExecuteReader runs a raw command and returns its open rows. Closing the
// reader releases the connection unless it belongs to a transaction scope.
func (p *Provider) ExecuteReader(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "execute_reader"
	resp := &dataspace.DataResponse{}
	cmd, err := p.command(req, true)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	if err := p.attach(ctx, req, cmd); err != nil {
		return resp.Fail(op, err)
	}
	rows, err := p.query(ctx, req, op, cmd)
	if err != nil {
		p.release(ctx, cmd)
		return resp.Fail(op, err)
	}
	resp.Reader = dsql.WithCloser(rows, func() error {
		return txscope.DeEnlist(ctx, cmd)
	})
	return resp
}

// ExecuteScalar returns the first column of the first row.
func (p *Provider) ExecuteScalar(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "execute_scalar"
	resp := &dataspace.DataResponse{}
	cmd, err := p.command(req, true)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	rs, err := p.fetch(ctx, req, op, cmd, resp)
	if err != nil {
		return resp.Fail(op, err)
	}
	if len(rs.Rows) > 0 && len(rs.Columns) > 0 {
		resp.Scalar = rs.Rows[0][rs.Columns[0]]
	}
	return resp
}

// ExecuteNonQuery runs a raw command and reports the affected rows and
// output parameter values.
func (p *Provider) ExecuteNonQuery(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "execute_non_query"
	resp := &dataspace.DataResponse{}
	cmd, err := p.command(req, false)
	if err != nil {
		return resp.Fail(op, err)
	}
	resp.LastQuery = cmd.Text
	if err := p.attach(ctx, req, cmd); err != nil {
		return resp.Fail(op, err)
	}
	defer p.release(ctx, cmd)
	res, err := p.exec(ctx, req, op, cmd)
	if err != nil {
		return resp.Fail(op, dsql.Classify(err, tableName(req), op, p.classify))
	}
	if resp.RowsAffected, err = res.RowsAffected(); err != nil {
		return resp.Fail(op, err)
	}
	resp.OutputParams = cmd.Outputs()
	return resp
}

// fetch runs cmd on an enlisted connection and reads its first result set.
func (p *Provider) fetch(ctx context.Context, req *dataspace.DataRequest, op string, cmd *dsql.Command, resp *dataspace.DataResponse) (dsql.ResultSet, error) {
	if err := p.attach(ctx, req, cmd); err != nil {
		return dsql.ResultSet{}, err
	}
	defer p.release(ctx, cmd)
	rs, err := p.queryMaps(ctx, req, op, cmd)
	if err != nil {
		return rs, dsql.Classify(err, tableName(req), op, p.classify)
	}
	resp.OutputParams = cmd.Outputs()
	return rs, nil
}

// loadCommand builds the command of LoadTable. The request's catalog,
// schema and metadata source qualify a query that does not set its own,
// without changing the query.
func (p *Provider) loadCommand(req *dataspace.DataRequest) (*dsql.Command, error) {
	if req.Access == dataspace.AccessStoredProcedure {
		name := req.CommandText
		if name == "" && req.Metadata != nil {
			name = req.Metadata.SPLoadAll
		}
		if name == "" {
			return nil, dataspace.Constructionf("load_table: no load procedure")
		}
		return dsql.ProcCommand(p.policy, name, params(req.Parameters), true)
	}
	if req.Query == nil {
		return nil, dataspace.Constructionf("load_table: request has no query")
	}
	d := dsql.Defaults{Catalog: req.Catalog, Schema: req.Schema}
	if req.Metadata != nil {
		d.Source = req.Metadata.Source
	}
	text, prms, err := dsql.BuildWith(p.policy, req.Query, d)
	if err != nil {
		return nil, err
	}
	return dsql.NewCommand(p.policy, text, prms...), nil
}

// command builds a raw command from the request: a procedure call in
// stored procedure mode, the rendered query, or the command text.
func (p *Provider) command(req *dataspace.DataRequest, rows bool) (*dsql.Command, error) {
	switch {
	case req.Access == dataspace.AccessStoredProcedure:
		return dsql.ProcCommand(p.policy, req.CommandText, params(req.Parameters), rows)
	case req.Query != nil:
		text, prms, err := dsql.Build(p.policy, req.Query)
		if err != nil {
			return nil, err
		}
		return dsql.NewCommand(p.policy, text, prms...), nil
	case req.CommandText != "":
		return dsql.NewCommand(p.policy, req.CommandText, params(req.Parameters)...), nil
	default:
		return nil, dataspace.Constructionf("request has neither a query nor command text")
	}
}

func params(in []*dataspace.Param) []*dsql.Parameter {
	out := make([]*dsql.Parameter, len(in))
	for i, prm := range in {
		out[i] = &dsql.Parameter{
			Name:      prm.Name,
			Column:    prm.Column,
			Direction: prm.Direction,
			Value:     prm.Value,
		}
	}
	return out
}

func tableName(req *dataspace.DataRequest) string {
	switch {
	case req.Table != nil && req.Table.Name != "":
		return req.Table.Name
	case req.Query != nil:
		return req.Query.Table()
	case req.Metadata != nil:
		return req.Metadata.Source
	}
	return ""
}

func newTable(name string, rs dsql.ResultSet) *dataspace.Table {
	t := dataspace.NewTable(name, rs.Columns...)
	for _, row := range rs.Rows {
		t.Load(row)
	}
	return t
}
