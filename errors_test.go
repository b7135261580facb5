package dataspace_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dataspace"
)

func TestConcurrencyError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := dataspace.NewConcurrencyError("Employees", "update", nil)
		assert.Equal(t, "dataspace: concurrency conflict on update Employees: no rows affected", err.Error())

		cause := errors.New("deadlock detected")
		err = dataspace.NewConcurrencyError("Employees", "delete", cause)
		assert.Equal(t, "dataspace: concurrency conflict on delete Employees: deadlock detected", err.Error())
		assert.Same(t, cause, errors.Unwrap(err))
	})

	t.Run("IsConcurrencyError", func(t *testing.T) {
		err := dataspace.NewConcurrencyError("Orders", "update", nil)
		assert.True(t, errors.Is(err, dataspace.ErrConcurrency))
		assert.True(t, dataspace.IsConcurrencyError(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, dataspace.IsConcurrencyError(wrapped))

		// Sentinel error
		assert.True(t, dataspace.IsConcurrencyError(dataspace.ErrConcurrency))

		// Non-matching error
		assert.False(t, dataspace.IsConcurrencyError(errors.New("other error")))
		assert.False(t, dataspace.IsConcurrencyError(nil))
	})
}

func TestConstructionError(t *testing.T) {
	t.Run("Wrap", func(t *testing.T) {
		assert.Nil(t, dataspace.NewConstructionError(nil))
		err := dataspace.NewConstructionError(errors.New("bad"))
		assert.Equal(t, "dataspace: invalid query construction: bad", err.Error())
		assert.True(t, errors.Is(err, dataspace.ErrConstruction))
		assert.True(t, dataspace.IsConstructionError(err))
	})

	t.Run("NoDoubleWrap", func(t *testing.T) {
		err := dataspace.Constructionf("unknown operator %d", 42)
		again := dataspace.NewConstructionError(fmt.Errorf("build: %w", err))
		var ce *dataspace.ConstructionError
		require.True(t, errors.As(again, &ce))
		assert.Equal(t, "unknown operator 42", ce.Err.Error())
	})
}

func TestExecutionError(t *testing.T) {
	cause := errors.New("no such table: Employees")
	err := dataspace.NewExecutionError("load_table", `SELECT * FROM "Employees"`, cause)
	assert.Equal(t, "dataspace: load_table: no such table: Employees", err.Error())
	assert.True(t, dataspace.IsExecutionError(fmt.Errorf("wrap: %w", err)))
	assert.False(t, dataspace.IsExecutionError(cause))
	assert.ErrorIs(t, err, cause)
}

func TestPacketError(t *testing.T) {
	cause := dataspace.NewConcurrencyError("Orders", "update", nil)
	err := &dataspace.PacketError{Index: 3, Packet: &dataspace.SavePacket{RowState: dataspace.Modified}, Err: cause}
	assert.Contains(t, err.Error(), "save packet 3 (Modified)")
	assert.True(t, dataspace.IsConcurrencyError(err))
}

func TestRollbackError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &dataspace.RollbackError{Err: cause}
	assert.Equal(t, "dataspace: rollback failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestAggregateError(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, dataspace.NewAggregateError())
		assert.NoError(t, dataspace.NewAggregateError(nil, nil))
	})

	t.Run("Single", func(t *testing.T) {
		err := errors.New("single error")
		assert.Equal(t, err, dataspace.NewAggregateError(err))
		assert.Equal(t, err, dataspace.NewAggregateError(nil, err, nil))
	})

	t.Run("Multiple", func(t *testing.T) {
		err1 := errors.New("error 1")
		err2 := errors.New("error 2")
		err := dataspace.NewAggregateError(err1, err2)

		var aggErr *dataspace.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Len(t, aggErr.Errors, 2)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.ErrorIs(t, err, err1)
		assert.ErrorIs(t, err, err2)
	})
}

func TestResponseFail(t *testing.T) {
	resp := &dataspace.DataResponse{LastQuery: "DELETE FROM t"}
	resp.Fail("save_table", errors.New("disk full"))
	var ee *dataspace.ExecutionError
	require.True(t, errors.As(resp.Err, &ee))
	assert.Equal(t, "DELETE FROM t", ee.LastQuery)

	resp = &dataspace.DataResponse{}
	resp.Fail("save_table", dataspace.NewConcurrencyError("t", "delete", nil))
	assert.False(t, dataspace.IsExecutionError(resp.Err))
	assert.True(t, dataspace.IsConcurrencyError(resp.Err))

	assert.NoError(t, (&dataspace.DataResponse{}).Fail("x", nil).Err)
}
