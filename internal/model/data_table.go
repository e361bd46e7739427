package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type TableStatus string

const (
	TablePending TableStatus = "pending"
	TableReady   TableStatus = "ready"
	TableFailed  TableStatus = "failed"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"` // string|number|date
}

// TableData is the imported payload stored as JSON on user_data_tables.
type TableData struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (d TableData) Value() (driver.Value, error) {
	if d.Columns == nil {
		d.Columns = []Column{}
	}
	if d.Rows == nil {
		d.Rows = [][]any{}
	}
	return json.Marshal(d)
}

func (d *TableData) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = TableData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("table data: unsupported scan type")
	}
}

// ColumnValues returns up to n values of column idx, skipping nils.
func (d TableData) ColumnValues(idx, n int) []any {
	out := make([]any, 0, n)
	for _, r := range d.Rows {
		if len(out) >= n {
			break
		}
		if idx < len(r) && r[idx] != nil {
			out = append(out, r[idx])
		}
	}
	return out
}

type UserDataTable struct {
	ID           string      `db:"id"            json:"id"`
	UserID       string      `db:"user_id"       json:"-"`
	ConnectionID *string     `db:"connection_id" json:"connection_id,omitempty"`
	Name         string      `db:"name"          json:"name"`
	Source       string      `db:"source"        json:"source"`   // provider name
	Resource     string      `db:"resource"      json:"resource"` // sheet range, query, ...
	Status       TableStatus `db:"status"        json:"status"`
	Error        *string     `db:"error"         json:"error,omitempty"`
	RowCount     int         `db:"row_count"     json:"row_count"`
	Data         TableData   `db:"data"          json:"data"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"    json:"updated_at"`
}
