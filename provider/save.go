package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/dataspace"
	dsql "github.com/syssam/dataspace/dialect/sql"
	"github.com/syssam/dataspace/txscope"
)

// saveEnv is the per-request state shared by the packets of a save.
type saveEnv struct {
	req    *dataspace.DataRequest
	cols   dataspace.Columns
	tpl    *dsql.Templates
	target dsql.Target
	opts   dsql.SaveOptions
	resp   *dataspace.DataResponse
}

// SaveTable persists the request's packets, or the changed rows of its
// table, inside a Required transaction scope. Packets are processed in
// order. Without ContinueOnError the first failure aborts the save and
// rolls the scope back; with it, failing packets are handed to OnError and
// the remaining packets proceed.
func (p *Provider) SaveTable(ctx context.Context, req *dataspace.DataRequest) *dataspace.DataResponse {
	const op = "save_table"
	resp := &dataspace.DataResponse{}
	packets, err := packetsOf(req)
	if err != nil {
		return resp.Fail(op, err)
	}
	if len(packets) == 0 {
		return resp
	}
	env, err := p.saveEnv(req, resp)
	if err != nil {
		return resp.Fail(op, err)
	}

	ctx, scope := txscope.Enter(ctx, txscope.Required, sql.LevelDefault)
	defer scope.Close()
	var failed []error
	for i, pkt := range packets {
		n, err := p.savePacket(ctx, env, pkt)
		if err != nil {
			pe := &dataspace.PacketError{Index: i, Packet: pkt, Err: err}
			if !req.ContinueOnError {
				return resp.Fail(op, pe)
			}
			p.log.DebugContext(ctx, "provider: packet failed", "provider", p.name, "index", i, "state", pkt.RowState, "error", err)
			if req.OnError != nil {
				req.OnError(pkt, err)
			} else {
				failed = append(failed, pe)
			}
			continue
		}
		resp.RowsAffected += n
		accept(ctx, pkt)
	}
	if err := scope.Complete(); err != nil {
		return resp.Fail(op, err)
	}
	return resp.Fail(op, dataspace.NewAggregateError(failed...))
}

// packetsOf returns the packets to persist and checks that a batch is
// either all deletes or all inserts and updates.
func packetsOf(req *dataspace.DataRequest) ([]*dataspace.SavePacket, error) {
	var all []*dataspace.SavePacket
	switch {
	case req.Packet != nil:
		all = []*dataspace.SavePacket{req.Packet}
	case len(req.Packets) > 0:
		all = req.Packets
	case req.Table != nil:
		all = req.Table.Packets()
	}
	packets := slices.DeleteFunc(slices.Clone(all), func(pkt *dataspace.SavePacket) bool {
		switch pkt.RowState {
		case dataspace.Added, dataspace.Modified, dataspace.Deleted:
			return false
		}
		return true
	})
	if len(packets) == 0 {
		return nil, nil
	}
	deletes := packets[0].RowState == dataspace.Deleted
	for i, pkt := range packets {
		if (pkt.RowState == dataspace.Deleted) != deletes {
			return nil, dataspace.NewConstructionError(fmt.Errorf("%w: packet %d is %s but the batch starts with %s",
				dataspace.ErrMixedBatch, i, pkt.RowState, packets[0].RowState))
		}
	}
	return packets, nil
}

func (p *Provider) saveEnv(req *dataspace.DataRequest, resp *dataspace.DataResponse) (*saveEnv, error) {
	if len(req.Columns) == 0 {
		return nil, dataspace.Constructionf("save_table: request has no column metadata")
	}
	req.Audit.Apply(req.Columns)
	types := p.types
	dest := ""
	if md := req.Metadata; md != nil {
		dest = md.Destination
		if len(md.Types) > 0 {
			types = maps.Clone(p.types)
			if types == nil {
				types = make(map[string]string, len(md.Types))
			}
			maps.Copy(types, md.Types)
		}
	}
	if dest == "" && req.Table != nil {
		dest = req.Table.Name
	}
	return &saveEnv{
		req:    req,
		cols:   req.Columns,
		tpl:    p.cache.Get(req.EntityTypeID, req.Columns, types),
		target: dsql.Target{Catalog: req.Catalog, Schema: req.Schema, Table: dest},
		opts: dsql.SaveOptions{
			Audit:          req.Audit,
			UserName:       req.UserName,
			Now:            p.now,
			IgnoreComputed: req.IgnoreComputedColumns,
		},
		resp: resp,
	}, nil
}

func (p *Provider) savePacket(ctx context.Context, env *saveEnv, pkt *dataspace.SavePacket) (int64, error) {
	if env.req.Access == dataspace.AccessStoredProcedure {
		return p.saveProc(ctx, env, pkt)
	}
	switch pkt.RowState {
	case dataspace.Added:
		return p.insert(ctx, env, pkt)
	case dataspace.Modified:
		return p.update(ctx, env, pkt)
	case dataspace.Deleted:
		return p.delete(ctx, env, pkt)
	}
	return 0, nil
}

func (p *Provider) insert(ctx context.Context, env *saveEnv, pkt *dataspace.SavePacket) (int64, error) {
	cmd, plan, err := dsql.InsertCommand(p.policy, env.target, env.cols, env.tpl, pkt, env.opts)
	if err != nil {
		return 0, err
	}
	env.resp.LastQuery = cmd.Text
	if err := p.attach(ctx, env.req, cmd); err != nil {
		return 0, err
	}
	defer p.release(ctx, cmd)
	if plan.Returning {
		rs, err := p.queryMaps(ctx, env.req, "save_table", cmd)
		if err != nil {
			return 0, p.classifyErr(err, env, "insert")
		}
		if len(rs.Rows) == 0 {
			return 0, fmt.Errorf("provider: insert into %s returned no row", env.target.Table)
		}
		writeBack(pkt, rs.Rows[0], plan.Refresh)
		return 1, nil
	}
	res, err := p.exec(ctx, env.req, "save_table", cmd)
	if err != nil {
		return 0, p.classifyErr(err, env, "insert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if env.req.BulkSave {
		return n, nil
	}
	refresh := plan.Refresh
	if plan.Identity != "" && p.policy.LastIdentity != "" {
		if err := p.identity(ctx, env, cmd, pkt, plan.Identity); err != nil {
			return n, err
		}
		refresh = slices.DeleteFunc(slices.Clone(refresh), func(c string) bool { return c == plan.Identity })
	}
	return n, p.refresh(ctx, env, cmd, pkt, refresh)
}

func (p *Provider) update(ctx context.Context, env *saveEnv, pkt *dataspace.SavePacket) (int64, error) {
	cmd, plan, err := dsql.UpdateCommand(p.policy, env.target, env.cols, env.tpl, pkt, env.opts)
	if errors.Is(err, dsql.ErrNoChanges) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	env.resp.LastQuery = cmd.Text
	if err := p.attach(ctx, env.req, cmd); err != nil {
		return 0, err
	}
	defer p.release(ctx, cmd)
	if plan.Returning {
		rs, err := p.queryMaps(ctx, env.req, "save_table", cmd)
		if err != nil {
			return 0, p.classifyErr(err, env, "update")
		}
		if len(rs.Rows) == 0 {
			return 0, dataspace.NewConcurrencyError(env.target.Table, "update", nil)
		}
		writeBack(pkt, rs.Rows[0], plan.Refresh)
		return 1, nil
	}
	res, err := p.exec(ctx, env.req, "save_table", cmd)
	if err != nil {
		return 0, p.classifyErr(err, env, "update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, dataspace.NewConcurrencyError(env.target.Table, "update", nil)
	}
	if env.req.BulkSave {
		return n, nil
	}
	return n, p.refresh(ctx, env, cmd, pkt, plan.Refresh)
}

func (p *Provider) delete(ctx context.Context, env *saveEnv, pkt *dataspace.SavePacket) (int64, error) {
	cmd, err := dsql.DeleteCommand(p.policy, env.target, env.cols, env.tpl, pkt)
	if err != nil {
		return 0, err
	}
	env.resp.LastQuery = cmd.Text
	if err := p.attach(ctx, env.req, cmd); err != nil {
		return 0, err
	}
	defer p.release(ctx, cmd)
	res, err := p.exec(ctx, env.req, "save_table", cmd)
	if err != nil {
		return 0, p.classifyErr(err, env, "delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, dataspace.NewConcurrencyError(env.target.Table, "delete", nil)
	}
	return n, nil
}

// saveProc persists a packet through the procedure named in the provider
// metadata. Output parameters are copied back into the packet, and an
// update or delete affecting no rows is a concurrency conflict.
func (p *Provider) saveProc(ctx context.Context, env *saveEnv, pkt *dataspace.SavePacket) (int64, error) {
	var proc, op string
	if md := env.req.Metadata; md != nil {
		switch pkt.RowState {
		case dataspace.Added:
			proc, op = md.SPInsert, "insert"
		case dataspace.Modified:
			proc, op = md.SPUpdate, "update"
		case dataspace.Deleted:
			proc, op = md.SPDelete, "delete"
		}
	}
	if proc == "" {
		return 0, dataspace.Constructionf("save_table: no %s procedure for %s", pkt.RowState, env.target.Table)
	}
	cmd, err := dsql.ProcSaveCommand(p.policy, proc, env.cols, env.tpl, pkt)
	if err != nil {
		return 0, err
	}
	env.resp.LastQuery = cmd.Text
	if err := p.attach(ctx, env.req, cmd); err != nil {
		return 0, err
	}
	defer p.release(ctx, cmd)
	res, err := p.exec(ctx, env.req, "save_table", cmd)
	if err != nil {
		return 0, p.classifyErr(err, env, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 && pkt.RowState != dataspace.Added {
		return 0, dataspace.NewConcurrencyError(env.target.Table, op, nil)
	}
	for _, prm := range cmd.Params {
		if prm.Direction != dataspace.Input && prm.Column != "" {
			pkt.Set(prm.Column, prm.Value)
		}
	}
	return n, nil
}

// identity reads the identity generated by the INSERT on the same
// connection.
func (p *Provider) identity(ctx context.Context, env *saveEnv, cmd *dsql.Command, pkt *dataspace.SavePacket, column string) error {
	next := p.follow(env.req, cmd, dsql.NewCommand(p.policy, p.policy.LastIdentity))
	rs, err := p.queryMaps(ctx, env.req, "identity", next)
	if err != nil {
		return fmt.Errorf("provider: read identity of %s: %w", env.target.Table, err)
	}
	if len(rs.Rows) > 0 && len(rs.Columns) > 0 {
		pkt.Set(column, rs.Rows[0][rs.Columns[0]])
	}
	return nil
}

// refresh re-reads columns whose value the database assigned.
func (p *Provider) refresh(ctx context.Context, env *saveEnv, cmd *dsql.Command, pkt *dataspace.SavePacket, columns []string) error {
	keys := env.cols.Sorted().PrimaryKeys()
	if len(columns) == 0 || len(keys) == 0 {
		return nil
	}
	sel, err := dsql.SelectByKey(p.policy, env.target, columns, keys, pkt.CurrentValues)
	if err != nil {
		return err
	}
	rs, err := p.queryMaps(ctx, env.req, "refresh", p.follow(env.req, cmd, sel))
	if err != nil {
		return fmt.Errorf("provider: refresh %s: %w", env.target.Table, err)
	}
	if len(rs.Rows) > 0 {
		writeBack(pkt, rs.Rows[0], columns)
	}
	return nil
}

func (p *Provider) classifyErr(err error, env *saveEnv, op string) error {
	return dsql.Classify(err, env.target.Table, op, p.classify)
}

func writeBack(pkt *dataspace.SavePacket, row map[string]any, columns []string) {
	for _, c := range columns {
		if v, ok := row[c]; ok {
			pkt.Set(c, v)
		}
	}
}

// accept marks the packet's buffered row as saved once the enclosing
// transaction commits.
func accept(ctx context.Context, pkt *dataspace.SavePacket) {
	if pkt.Row == nil {
		return
	}
	fn := func() {
		if pkt.RowState == dataspace.Deleted {
			pkt.Row.State = dataspace.Invalid
			return
		}
		pkt.Row.AcceptChanges()
	}
	if !txscope.RegisterCommitCallback(ctx, fn) {
		fn()
	}
}
