package models

// Record is a row of logical field name -> value. Tank rows read from the
// ledger, rows parsed from a report and merged rows all share this shape.
type Record map[string]string

// Clone returns an independent copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldSet maps a logical field name to the control identifier stored in the
// table's control row.
type FieldSet map[string]string

// ControlRow maps a physical column (A1 letters) to the control identifier
// found in that column.
type ControlRow map[string]string

// ColumnMapping maps a logical field name to a physical column. It is only
// valid for the table snapshot it was built from.
type ColumnMapping map[string]string

// BuildColumnMapping resolves every field of fields to the physical column
// whose control cell carries the field's control identifier. Fields whose
// identifier is absent from the control row are left out.
func BuildColumnMapping(fields FieldSet, control ControlRow) ColumnMapping {
	byControl := make(map[string]string, len(control))
	for column, id := range control {
		if id == "" {
			continue
		}
		if prev, ok := byControl[id]; ok && ColumnBefore(prev, column) {
			continue
		}
		byControl[id] = column
	}

	mapping := make(ColumnMapping, len(fields))
	for field, id := range fields {
		if column, ok := byControl[id]; ok {
			mapping[field] = column
		}
	}
	return mapping
}

// ColumnBefore reports whether column a sits left of column b
func ColumnBefore(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
