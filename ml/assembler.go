package ml

import (
	"errors"

	"churnboard/customer"
)

// Row is a single customer laid out in a bundle's reference feature order.
type Row struct {
	Columns []string
	Cells   []customer.Cell
}

// Cell returns the value for a column.
func (r Row) Cell(name string) (customer.Cell, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Cells[i], true
		}
	}
	return customer.Cell{}, false
}

// Assemble lays the record out in reference order. Values are looked up by
// column name, so a bundle whose order differs from the form still lines up.
func Assemble(rec customer.Record, reference []string) (Row, error) {
	if err := checkReference(reference); err != nil {
		return Row{}, err
	}
	if err := rec.Validate(); err != nil {
		var fe *customer.FieldError
		if errors.As(err, &fe) {
			return Row{}, &SchemaMismatchError{Field: fe.Field, Value: fe.Value, Reason: fe.Reason}
		}
		return Row{}, err
	}

	row := Row{
		Columns: append([]string(nil), reference...),
		Cells:   make([]customer.Cell, len(reference)),
	}
	for i, name := range reference {
		cell, _ := rec.Get(name)
		row.Cells[i] = cell
	}
	return row, nil
}

// checkReference requires the reference list to be exactly the customer
// field set, each field once.
func checkReference(reference []string) error {
	seen := make(map[string]bool, len(reference))
	for _, name := range reference {
		if _, ok := customer.Lookup(name); !ok {
			return &SchemaMismatchError{Field: name, Reason: "not a customer field"}
		}
		if seen[name] {
			return &SchemaMismatchError{Field: name, Reason: "listed twice in reference features"}
		}
		seen[name] = true
	}
	for _, f := range customer.Schema {
		if !seen[f.Name] {
			return &SchemaMismatchError{Field: f.Name, Reason: "absent from reference features"}
		}
	}
	return nil
}
