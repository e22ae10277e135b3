package postgres

import (
	"reflect"
	"slices"
	"sync"
)

// columnField is one db-tagged field, reachable from the outer struct by index.
type columnField struct {
	name  string
	index []int
}

// columnsByType caches []columnField per struct type.
var columnsByType sync.Map

// columnsOf returns the db-tagged fields of t in declaration order. Fields of
// embedded structs (entity.BaseAggregate) come where the embedding sits.
// Embedded structs must be values, not pointers.
func columnsOf(t reflect.Type) []columnField {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := columnsByType.Load(t); ok {
		return cached.([]columnField)
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []columnField
	for _, f := range reflect.VisibleFields(t) {
		name := f.Tag.Get("db")
		if name == "" || name == "-" || f.Anonymous {
			continue
		}
		fields = append(fields, columnField{name: name, index: f.Index})
	}
	columnsByType.Store(t, fields)
	return fields
}

// Columns lists the table columns of a row type, e.g. Columns[order.Order]()
// gives id, version, customer, ... in field order.
func Columns[T any]() []string {
	fields := columnsOf(reflect.TypeFor[T]())
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// ColumnMap maps every column of v to its field value. v must be a struct
// or a pointer to one; anything else gives nil.
func ColumnMap(v any) map[string]any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	fields := columnsOf(rv.Type())
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.name] = rv.FieldByIndex(f.index).Interface()
	}
	return out
}

// ColumnValues returns v's values for cols in that order; unknown columns are nil.
func ColumnValues(v any, cols []string) []any {
	data := ColumnMap(v)
	row := make([]any, len(cols))
	for i, col := range cols {
		row[i] = data[col]
	}
	return row
}

// PickColumns keeps the entries of data whose key is in cols, minus skip.
func PickColumns(data map[string]any, cols []string, skip ...string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, col := range cols {
		if slices.Contains(skip, col) {
			continue
		}
		if val, ok := data[col]; ok {
			out[col] = val
		}
	}
	return out
}
