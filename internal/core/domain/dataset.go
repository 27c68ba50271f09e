// Package domain defines the core domain models for TabVault.
package domain

// Dataset is a materialized tabular dataset: one header row plus data
// rows. Cells hold whatever JSON scalar the source sheet produced.
type Dataset struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnCount returns the number of columns, taken from the header row.
func (d *Dataset) ColumnCount() int {
	if d == nil {
		return 0
	}
	return len(d.Headers)
}

// Clone creates a copy of the dataset. Row slices are copied; cell values
// are shared (they are treated as immutable once persisted).
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	clone := &Dataset{
		Headers: make([]string, len(d.Headers)),
		Rows:    make([][]any, len(d.Rows)),
	}
	copy(clone.Headers, d.Headers)
	for i, row := range d.Rows {
		r := make([]any, len(row))
		copy(r, row)
		clone.Rows[i] = r
	}
	return clone
}

// ColumnFilter is one column's filter condition.
type ColumnFilter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Values   []any  `json:"values,omitempty"`
	Active   bool   `json:"active"`
}

// FilterState is the persisted filter configuration of a session. The
// engine stores and restores it opaquely; interpretation belongs to the
// consumer.
type FilterState struct {
	Filters []ColumnFilter `json:"filters"`
}

// ChartConfig is one persisted chart definition. Like FilterState, the
// engine never interprets it.
type ChartConfig struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title,omitempty"`
	XAxis       string         `json:"x_axis,omitempty"`
	YAxis       string         `json:"y_axis,omitempty"`
	Aggregation string         `json:"aggregation,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}
