package ml

import (
	"errors"
	"fmt"
)

const (
	DropNone     = ""
	DropFirst    = "first"
	DropIfBinary = "if_binary"
)

// OneHotEncoder replays a fitted one-hot column transformer. Encoded columns
// come first in Columns order, followed by the passthrough columns.
type OneHotEncoder struct {
	Columns     []string   `json:"columns"`
	Categories  [][]string `json:"categories"`
	Drop        string     `json:"drop"`
	Passthrough []string   `json:"passthrough"`
}

func (e *OneHotEncoder) kept(i int) []string {
	cats := e.Categories[i]
	switch {
	case e.Drop == DropFirst:
		return cats[1:]
	case e.Drop == DropIfBinary && len(cats) == 2:
		return cats[1:]
	}
	return cats
}

// OutputColumns returns the expanded column names, "<column>_<category>" for
// encoded columns and the bare name for passthrough columns.
func (e *OneHotEncoder) OutputColumns() []string {
	var names []string
	for i, col := range e.Columns {
		for _, cat := range e.kept(i) {
			names = append(names, col+"_"+cat)
		}
	}
	return append(names, e.Passthrough...)
}

// Encode expands one row. A value outside the fitted categories is an
// UnknownCategoryError.
func (e *OneHotEncoder) Encode(row Row) ([]float64, error) {
	out := make([]float64, 0, len(e.Columns)*3+len(e.Passthrough))
	for i, col := range e.Columns {
		cell, ok := row.Cell(col)
		if !ok {
			return nil, &SchemaMismatchError{Field: col, Reason: "missing from assembled row"}
		}
		if cell.Numeric {
			return nil, &SchemaMismatchError{Field: col, Value: cell.String(), Reason: "expected a categorical value"}
		}
		pos := indexOf(e.Categories[i], cell.Text)
		if pos < 0 {
			return nil, &UnknownCategoryError{Field: col, Value: cell.Text}
		}
		kept := e.kept(i)
		offset := len(e.Categories[i]) - len(kept)
		for j := range kept {
			if j+offset == pos {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}
	for _, col := range e.Passthrough {
		cell, ok := row.Cell(col)
		if !ok {
			return nil, &SchemaMismatchError{Field: col, Reason: "missing from assembled row"}
		}
		if !cell.Numeric {
			return nil, &SchemaMismatchError{Field: col, Value: cell.Text, Reason: "expected a numeric value"}
		}
		out = append(out, cell.Number)
	}
	return out, nil
}

func (e *OneHotEncoder) validate() error {
	if len(e.Columns) != len(e.Categories) {
		return fmt.Errorf("encoder has %d columns but %d category lists", len(e.Columns), len(e.Categories))
	}
	switch e.Drop {
	case DropNone, DropFirst, DropIfBinary:
	default:
		return fmt.Errorf("unsupported drop mode %q", e.Drop)
	}
	for i, cats := range e.Categories {
		if len(cats) == 0 {
			return fmt.Errorf("encoder column %s has no categories", e.Columns[i])
		}
		if dup := firstDuplicate(cats); dup != "" {
			return fmt.Errorf("encoder column %s lists category %q twice", e.Columns[i], dup)
		}
	}
	if len(e.Columns)+len(e.Passthrough) == 0 {
		return errors.New("encoder has no columns")
	}
	return nil
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}

func firstDuplicate(values []string) string {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return v
		}
		seen[v] = true
	}
	return ""
}
