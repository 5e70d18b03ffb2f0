// Package dataset serves the customer dataset behind the Data and Dashboard
// pages.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"churnboard/customer"
)

// AllColumns is the column picker entry that selects every column.
const AllColumns = "All Columns"

type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Head returns at most n rows.
func (t Table) Head(n int) Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Select projects the table onto names. An empty selection or one containing
// AllColumns returns the table unchanged.
func (t Table) Select(names []string) (Table, error) {
	if len(names) == 0 {
		return t, nil
	}
	idx := make([]int, 0, len(names))
	for _, n := range names {
		if n == AllColumns {
			return t, nil
		}
		i := t.Index(n)
		if i < 0 {
			return Table{}, fmt.Errorf("unknown column %q", n)
		}
		idx = append(idx, i)
	}

	out := Table{Columns: make([]string, len(idx)), Rows: make([][]string, len(t.Rows))}
	for j, i := range idx {
		out.Columns[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		sel := make([]string, len(idx))
		for j, i := range idx {
			sel[j] = row[i]
		}
		out.Rows[r] = sel
	}
	return out, nil
}

// ColumnInfo describes one column for the Data Structure tab.
type ColumnInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	NonEmpty int    `json:"non_empty"`
	Distinct int    `json:"distinct"`
}

const (
	KindNumber  = "number"
	KindBoolean = "boolean"
	KindText    = "text"
)

// Structure infers a kind for every column from the cells present.
func (t Table) Structure() []ColumnInfo {
	out := make([]ColumnInfo, len(t.Columns))
	for i, name := range t.Columns {
		seen := make(map[string]struct{})
		numeric, boolean := true, true
		info := ColumnInfo{Name: name}
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			info.NonEmpty++
			seen[v] = struct{}{}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
			if _, ok := parseFlag(v); !ok {
				boolean = false
			}
		}
		info.Distinct = len(seen)
		switch {
		case info.NonEmpty == 0:
			info.Kind = KindText
		case boolean:
			info.Kind = KindBoolean
		case numeric:
			info.Kind = KindNumber
		default:
			info.Kind = KindText
		}
		out[i] = info
	}
	return out
}

func parseFlag(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "yes", "true":
		return true, true
	case "no", "false":
		return false, true
	}
	return false, false
}

// FeatureDescription is one entry of the Learn About Features tab.
type FeatureDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var extraDescriptions = []FeatureDescription{
	{"customerID", "Unique identifier of the customer"},
	{"gender", "Whether the customer is a male or a female"},
	{"PhoneService", "Whether the customer has a phone service"},
	{"Churn", "Whether the customer churned"},
}

// Descriptions lists the model inputs followed by the other dataset columns.
func Descriptions() []FeatureDescription {
	out := make([]FeatureDescription, 0, len(customer.Schema)+len(extraDescriptions))
	for _, f := range customer.Schema {
		out = append(out, FeatureDescription{Name: f.Name, Description: f.Description})
	}
	return append(out, extraDescriptions...)
}
