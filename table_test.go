package dataspace_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dataspace"
)

func TestTablePackets(t *testing.T) {
	tbl := dataspace.NewTable("Employees", "EmployeeID", "FirstName", "LastName")
	tbl.Load(map[string]any{"EmployeeID": int64(1), "FirstName": "Nancy", "LastName": "Davolio"})
	changed := tbl.Load(map[string]any{"EmployeeID": int64(2), "FirstName": "Andrew", "LastName": "Fuller"})
	gone := tbl.Load(map[string]any{"EmployeeID": int64(3), "FirstName": "Janet", "LastName": "Leverling"})
	added := tbl.AddRow(map[string]any{"FirstName": "Laura", "LastName": "Callahan"})
	discarded := tbl.AddRow(map[string]any{"FirstName": "Temp"})

	changed.Set("LastName", "Fuller-Smith")
	gone.Delete()
	discarded.Delete()

	packets := tbl.Packets()
	require.Len(t, packets, 3)

	assert.Equal(t, dataspace.Modified, packets[0].RowState)
	assert.Equal(t, []string{"LastName"}, packets[0].ModifiedColumns)
	assert.Equal(t, "Fuller", packets[0].Original("LastName"))
	assert.Equal(t, int64(2), packets[0].Original("EmployeeID"))

	assert.Equal(t, dataspace.Deleted, packets[1].RowState)
	assert.Empty(t, packets[1].ModifiedColumns)

	assert.Equal(t, dataspace.Added, packets[2].RowState)
	assert.Equal(t, []string{"FirstName", "LastName"}, packets[2].ModifiedColumns)

	packets[2].Set("EmployeeID", int64(9))
	assert.Equal(t, int64(9), added.Values["EmployeeID"], "generated values reach the buffered row")

	added.AcceptChanges()
	assert.Equal(t, dataspace.Unchanged, added.State)
	assert.Equal(t, int64(9), added.Original["EmployeeID"])
}

func TestRowState(t *testing.T) {
	assert.Equal(t, 0, int(dataspace.Invalid))
	assert.Equal(t, 2, int(dataspace.Unchanged))
	assert.Equal(t, 4, int(dataspace.Added))
	assert.Equal(t, 8, int(dataspace.Deleted))
	assert.Equal(t, 16, int(dataspace.Modified))
	assert.Equal(t, "Modified", dataspace.Modified.String())
	assert.Equal(t, "RowState(3)", dataspace.RowState(3).String())
}

func TestCodec(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	in := []*dataspace.SavePacket{
		{
			RowState:        dataspace.Modified,
			CurrentValues:   map[string]any{"EmployeeID": int64(2), "LastName": "Fuller", "HireDate": stamp},
			OriginalValues:  map[string]any{"EmployeeID": int64(2), "LastName": "Fulller"},
			ModifiedColumns: []string{"LastName"},
			Entity:          "not serialized",
		},
		{RowState: dataspace.Added, CurrentValues: map[string]any{"LastName": "Peacock"}},
	}
	data, err := dataspace.MarshalPackets(in)
	require.NoError(t, err)

	out, err := dataspace.UnmarshalPackets(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, dataspace.Modified, out[0].RowState)
	assert.Equal(t, "Fuller", out[0].CurrentValues["LastName"])
	assert.Equal(t, []string{"LastName"}, out[0].ModifiedColumns)
	assert.True(t, stamp.Equal(out[0].CurrentValues["HireDate"].(time.Time)))
	assert.Nil(t, out[0].Entity)
	assert.Equal(t, dataspace.Added, out[1].RowState)

	t.Run("integers decode as int64", func(t *testing.T) {
		data, err := dataspace.MarshalPackets([]*dataspace.SavePacket{{
			RowState: dataspace.Modified,
			CurrentValues: map[string]any{
				"Small": int(5), "Byte": uint8(200), "Short": int16(-300),
				"Wide": uint32(70000), "Big": int64(math.MaxInt64), "Huge": uint64(math.MaxUint64),
				"Ratio": 1.5,
			},
			OriginalValues: map[string]any{"Small": int(4)},
		}})
		require.NoError(t, err)
		out, err := dataspace.UnmarshalPackets(data)
		require.NoError(t, err)
		cur := out[0].CurrentValues
		assert.Equal(t, int64(5), cur["Small"])
		assert.Equal(t, int64(200), cur["Byte"])
		assert.Equal(t, int64(-300), cur["Short"])
		assert.Equal(t, int64(70000), cur["Wide"])
		assert.Equal(t, int64(math.MaxInt64), cur["Big"])
		assert.Equal(t, uint64(math.MaxUint64), cur["Huge"])
		assert.Equal(t, 1.5, cur["Ratio"])
		assert.Equal(t, int64(4), out[0].OriginalValues["Small"])
	})

	bad, err := dataspace.MarshalPackets([]*dataspace.SavePacket{{RowState: dataspace.RowState(3)}})
	require.NoError(t, err)
	_, err = dataspace.UnmarshalPackets(bad)
	assert.ErrorContains(t, err, "invalid state 3")
}

func TestColumns(t *testing.T) {
	cols := dataspace.Columns{
		{Name: "order_id", Ordinal: 2, IsInPrimaryKey: true, IsAutoIncrement: true},
		{Name: "customer id", Ordinal: 1},
		{Name: "Stamp", PropertyName: "RowVersion", Ordinal: 3, IsConcurrency: true},
		{Name: "DateAdded", Ordinal: 4},
		{Name: "AddedBy", Ordinal: 5},
	}
	assert.Equal(t, "OrderId", cols[0].Property())
	assert.Equal(t, "CustomerId", cols[1].Property())
	assert.Equal(t, "RowVersion", cols[2].Property())
	assert.Same(t, cols[2], cols.FindByProperty("RowVersion"))
	assert.Same(t, cols[0], cols.AutoIncrement())
	assert.Equal(t, []string{"order_id"}, cols.PrimaryKeys().Names())
	assert.Equal(t, []string{"customer id", "order_id", "Stamp", "DateAdded", "AddedBy"}, cols.Sorted().Names())
	assert.True(t, cols[2].Generated())

	audit := dataspace.Audit{
		DateAdded: dataspace.AuditColumn{Enabled: true, Column: "DateAdded", ServerSide: true},
		AddedBy:   dataspace.AuditColumn{Enabled: false, Column: "AddedBy"},
	}
	audit.Apply(cols)
	assert.Equal(t, dataspace.DateAdded, cols[3].Special)
	assert.Equal(t, dataspace.NotSpecial, cols[4].Special)
	assert.True(t, audit.IsSpecial(cols[3]))
	assert.False(t, audit.IsSpecial(cols[4]))
}
