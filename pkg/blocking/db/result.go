package db

import (
	"encoding/json"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

// Row is one result row. Values are positional; Get looks them up by column.
type Row struct {
	fields []string
	values []any
}

// Values returns the row's column values in field order.
func (r Row) Values() []any { return r.values }

// Get returns the value of the named column.
func (r Row) Get(field string) (any, bool) {
	for i, f := range r.fields {
		if f == field {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object keyed by column.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		m[f] = r.values[i]
	}
	return json.Marshal(m)
}

// ResultSet is the outcome of Query or Exec.
//
// A query result is a list of rows; an exec result carries the affected row
// count and last insert ID. Accessors of the other kind return ErrInvalidCall.
type ResultSet struct {
	query    bool
	fields   []string
	rows     []Row
	affected int64
	insertID int64
}

func newQueryResult(fields []string) *ResultSet {
	return &ResultSet{query: true, fields: fields, rows: []Row{}}
}

func newExecResult(affected, insertID int64) *ResultSet {
	return &ResultSet{affected: affected, insertID: insertID}
}

func (rs *ResultSet) append(values []any) {
	rs.rows = append(rs.rows, Row{fields: rs.fields, values: values})
}

// IsQuery reports whether the result holds rows.
func (rs *ResultSet) IsQuery() bool { return rs.query }

// Fields returns the column names.
func (rs *ResultSet) Fields() ([]string, error) {
	if !rs.query {
		return nil, gferrors.ErrInvalidCall
	}
	return rs.fields, nil
}

// Rows returns every row.
func (rs *ResultSet) Rows() ([]Row, error) {
	if !rs.query {
		return nil, gferrors.ErrInvalidCall
	}
	return rs.rows, nil
}

// Len returns the number of rows.
func (rs *ResultSet) Len() (int, error) {
	if !rs.query {
		return 0, gferrors.ErrInvalidCall
	}
	return len(rs.rows), nil
}

// Row returns row i.
func (rs *ResultSet) Row(i int) (Row, error) {
	if !rs.query || i < 0 || i >= len(rs.rows) {
		return Row{}, gferrors.ErrInvalidCall
	}
	return rs.rows[i], nil
}

// Affected returns the number of rows changed by an exec.
func (rs *ResultSet) Affected() (int64, error) {
	if rs.query {
		return 0, gferrors.ErrInvalidCall
	}
	return rs.affected, nil
}

// InsertID returns the last inserted row ID of an exec.
func (rs *ResultSet) InsertID() (int64, error) {
	if rs.query {
		return 0, gferrors.ErrInvalidCall
	}
	return rs.insertID, nil
}

// MarshalJSON encodes a query result as an array of rows and an exec
// result as {"affected":n,"insertId":id}.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	if rs.query {
		return json.Marshal(rs.rows)
	}
	return json.Marshal(struct {
		Affected int64 `json:"affected"`
		InsertID int64 `json:"insertId"`
	}{rs.affected, rs.insertID})
}
