// Package binding picks chart fields from a data table by column name and value shape.
package binding

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

var (
	dimensionPattern = regexp.MustCompile(`(?i)(date|time|day|week|month|year|period|created|quarter)`)
	measurePattern   = regexp.MustCompile(`(?i)(revenue|sales|amount|total|price|count|value|spend|cost|clicks|impressions|orders|qty|quantity|conversions)`)
	// identifiers look numeric but are never a useful measure
	idPattern = regexp.MustCompile(`(?i)(^id$|_id$|^id_)`)
)

// sampleSize is how many rows are inspected when inferring a column's kind.
const sampleSize = 20

// Fields is the result of binding a chart to a table.
type Fields struct {
	X string `json:"x_field"`
	Y string `json:"y_field"`
}

// Resolve returns the x/y fields for a chart over data. Requested names win when
// they match a column (case-insensitive); otherwise names are matched against
// dimension/measure patterns, then the first non-numeric/numeric column is used.
// Either field can come back empty when nothing fits.
func Resolve(data model.TableData, wantX, wantY string) Fields {
	var f Fields
	f.X = lookup(data.Columns, wantX)
	f.Y = lookup(data.Columns, wantY)

	numeric := make([]bool, len(data.Columns))
	for i, c := range data.Columns {
		numeric[i] = isNumericColumn(c, data.ColumnValues(i, sampleSize))
	}

	if f.X == "" {
		f.X = pick(data.Columns, func(i int, c model.Column) bool {
			return dimensionPattern.MatchString(c.Name) && c.Name != f.Y
		})
	}
	if f.Y == "" {
		f.Y = pick(data.Columns, func(i int, c model.Column) bool {
			return numeric[i] && measurePattern.MatchString(c.Name) && c.Name != f.X
		})
	}
	if f.X == "" {
		f.X = pick(data.Columns, func(i int, c model.Column) bool {
			return !numeric[i] && c.Name != f.Y
		})
	}
	if f.Y == "" {
		f.Y = pick(data.Columns, func(i int, c model.Column) bool {
			return numeric[i] && !idPattern.MatchString(c.Name) && c.Name != f.X
		})
	}
	if f.Y == "" {
		f.Y = pick(data.Columns, func(i int, c model.Column) bool {
			return numeric[i] && c.Name != f.X
		})
	}
	return f
}

func lookup(cols []model.Column, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c.Name
		}
	}
	return ""
}

func pick(cols []model.Column, ok func(int, model.Column) bool) string {
	for i, c := range cols {
		if ok(i, c) {
			return c.Name
		}
	}
	return ""
}

func isNumericColumn(c model.Column, sample []any) bool {
	switch c.Type {
	case "number":
		return true
	case "date":
		return false
	}
	if len(sample) == 0 {
		return false
	}
	for _, v := range sample {
		if !isNumeric(v) {
			return false
		}
	}
	return true
}

func isNumeric(v any) bool {
	switch t := v.(type) {
	case float64, float32, int, int64, int32:
		return true
	case string:
		s := strings.TrimSpace(strings.NewReplacer(",", "", "$", "", "%", "").Replace(t))
		if s == "" {
			return false
		}
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	}
	return false
}

// InferType classifies a sample of raw values as number, date or string.
func InferType(sample []any) string {
	if len(sample) == 0 {
		return "string"
	}
	allNum, allDate := true, true
	for _, v := range sample {
		if !isNumeric(v) {
			allNum = false
		}
		if !isDate(v) {
			allDate = false
		}
	}
	switch {
	case allNum:
		return "number"
	case allDate:
		return "date"
	default:
		return "string"
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006", "2006/01/02", "2006-01"}

func isDate(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}
