package binding

import (
	"testing"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/stretchr/testify/assert"
)

func table(cols []string, rows ...[]any) model.TableData {
	d := model.TableData{Rows: rows}
	for _, c := range cols {
		d.Columns = append(d.Columns, model.Column{Name: c})
	}
	return d
}

func TestResolve_ByPattern(t *testing.T) {
	d := table([]string{"order_id", "Order Date", "Customer", "Total Revenue"},
		[]any{"1001", "2024-01-02", "Ann", "120.50"},
		[]any{"1002", "2024-01-03", "Bob", "99"},
	)

	f := Resolve(d, "", "")
	assert.Equal(t, "Order Date", f.X)
	assert.Equal(t, "Total Revenue", f.Y)
}

func TestResolve_RequestedFieldsWin(t *testing.T) {
	d := table([]string{"month", "region", "sales", "units"},
		[]any{"2024-01", "EU", 10.0, 3.0},
	)

	f := Resolve(d, "REGION", "units")
	assert.Equal(t, "region", f.X)
	assert.Equal(t, "units", f.Y)
}

func TestResolve_UnknownRequestedFieldFallsBack(t *testing.T) {
	d := table([]string{"week", "clicks"}, []any{"2024-W01", 12.0})

	f := Resolve(d, "nope", "missing")
	assert.Equal(t, "week", f.X)
	assert.Equal(t, "clicks", f.Y)
}

func TestResolve_FirstColumnsWhenNoPatternMatches(t *testing.T) {
	d := table([]string{"id", "name", "score"},
		[]any{1.0, "alpha", 3.5},
		[]any{2.0, "beta", 4.0},
	)

	f := Resolve(d, "", "")
	assert.Equal(t, "name", f.X)
	assert.Equal(t, "score", f.Y)
}

func TestResolve_IDIsLastResortMeasure(t *testing.T) {
	d := table([]string{"order_id", "customer"},
		[]any{1001.0, "Ann"},
		[]any{1002.0, "Bob"},
	)

	f := Resolve(d, "", "")
	assert.Equal(t, "customer", f.X)
	assert.Equal(t, "order_id", f.Y)
}

func TestResolve_NothingNumeric(t *testing.T) {
	d := table([]string{"a", "b"}, []any{"x", "y"})

	f := Resolve(d, "", "")
	assert.Equal(t, "a", f.X)
	assert.Empty(t, f.Y)
}

func TestInferType(t *testing.T) {
	assert.Equal(t, "number", InferType([]any{"1,200", "$3.50", 4.0}))
	assert.Equal(t, "date", InferType([]any{"2024-01-02", "2024-02-01"}))
	assert.Equal(t, "string", InferType([]any{"2024-01-02", "hello"}))
	assert.Equal(t, "string", InferType(nil))
}
