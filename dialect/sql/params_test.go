package sql

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dataspace"
)

func TestTemplateFor(t *testing.T) {
	c := &dataspace.Column{Name: "UnitPrice", NativeType: "DECIMAL", NumericPrecision: 10, NumericScale: 2}
	tpl := TemplateFor(c, "")
	assert.Equal(t, ParameterTemplate{Name: "UnitPrice", Column: "UnitPrice", Type: "decimal", Precision: 10, Scale: 2}, tpl)

	tpl = TemplateFor(c, "MONEY")
	assert.Equal(t, "money", tpl.Type)

	tpl = TemplateFor(&dataspace.Column{Name: "order id"}, "")
	assert.Equal(t, "OrderId", tpl.Name)
	assert.Equal(t, "order id", tpl.Column)

	tpl = TemplateFor(&dataspace.Column{Name: "x", PropertyName: "Total$"}, "")
	assert.Equal(t, "Total", tpl.Name)
}

func TestTemplateInstantiate(t *testing.T) {
	tpl := ParameterTemplate{Name: "LastName", Column: "LastName", Type: "varchar", Size: 20}
	a := tpl.Instantiate("Davolio")
	b := tpl.Instantiate("Fuller")
	assert.NotSame(t, a, b)
	assert.Equal(t, "Davolio", a.Value)
	assert.Equal(t, "Fuller", b.Value)
	assert.Equal(t, int64(20), b.Size)

	a.Value = "changed"
	assert.Equal(t, "Fuller", b.Value)

	orig := tpl.InstantiateAs("OrigLastName", "Fuler")
	assert.Equal(t, "OrigLastName", orig.Name)
	assert.Equal(t, "LastName", orig.Column)
	assert.Equal(t, "LastName", tpl.Name)
	assert.Equal(t, "OrigLastName=Fuler", orig.String())
}

func TestTemplates(t *testing.T) {
	cols := employeeColumns()
	tpl := NewTemplates(cols, map[string]string{"Region": "NCHAR"})
	assert.Equal(t, 5, tpl.Len())

	r, ok := tpl.Lookup("Region")
	require.True(t, ok)
	assert.Equal(t, "nchar", r.Type)
	_, ok = tpl.Lookup("Missing")
	assert.False(t, ok)

	var none *Templates
	_, ok = none.Lookup("Region")
	assert.False(t, ok)
	assert.Zero(t, none.Len())
	assert.Equal(t, "Notes", none.template(&dataspace.Column{Name: "Notes"}).Name)
}

func TestParameterCache(t *testing.T) {
	cache := NewParameterCache()
	cols := employeeColumns()

	const workers = 16
	var (
		wg  sync.WaitGroup
		got = make([]*Templates, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = cache.Get("Northwind.Employees", cols, nil)
		}()
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, cache.Len())

	t.Run("distinct entity types", func(t *testing.T) {
		for i := range 3 {
			cache.Get(fmt.Sprintf("Entity%d", i), cols, nil)
		}
		assert.Equal(t, 4, cache.Len())
		assert.NotSame(t, got[0], cache.Get("Entity0", cols, nil))
	})

	t.Run("bypass", func(t *testing.T) {
		a := cache.Get("", cols, nil)
		b := cache.Get("", cols, nil)
		assert.NotSame(t, a, b)
		assert.Equal(t, 4, cache.Len())
	})

	t.Run("first build wins", func(t *testing.T) {
		tpl := cache.Get("Northwind.Employees", cols, map[string]string{"LastName": "NVARCHAR"})
		ln, _ := tpl.Lookup("LastName")
		assert.Equal(t, "varchar", ln.Type)
	})
}

func TestParamName(t *testing.T) {
	tests := map[string]string{
		"LastName":    "LastName",
		"Ship Via":    "ShipVia",
		"Unit-Price":  "UnitPrice",
		"order_id":    "order_id",
		"2ndAddress":  "p2ndAddress",
		"":            "p",
		"$$":          "p",
		"Straße":      "Straße",
		"Order.Total": "OrderTotal",
	}
	for in, want := range tests {
		assert.Equal(t, want, paramName(in), in)
	}
}
