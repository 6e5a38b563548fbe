package core

// Dataset is the read-only table every report is computed from.
// It is safe for concurrent readers once built.
type Dataset struct {
	columns map[string]struct{}
	order   []string
	records []Record
}

// NewDataset builds a dataset from the source column names and its rows.
// The records slice is copied.
func NewDataset(columns []string, records []Record) *Dataset {
	ds := &Dataset{
		columns: make(map[string]struct{}, len(columns)),
		records: append([]Record(nil), records...),
	}
	for _, c := range columns {
		if _, ok := ds.columns[c]; ok {
			continue
		}
		ds.columns[c] = struct{}{}
		ds.order = append(ds.order, c)
	}
	return ds
}

// Columns returns the column names in source order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.order...)
}

// HasColumn reports whether the source carried the named column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.columns[name]
	return ok
}

// HasMonth reports whether a monthly breakdown can be produced.
func (d *Dataset) HasMonth() bool {
	return d.HasColumn(ColMonth)
}

func (d *Dataset) Len() int {
	return len(d.records)
}

// Records returns a copy of the rows.
func (d *Dataset) Records() []Record {
	return append([]Record(nil), d.records...)
}

// CheckSchema returns a SchemaError listing every required column that is absent.
func (d *Dataset) CheckSchema() error {
	var missing []string
	for _, c := range RequiredColumns {
		if !d.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}
