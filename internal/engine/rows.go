package engine

import (
	"bytes"
	"fmt"

	"github.com/buger/jsonparser"
)

// Row is one row of a query result. Values stay raw JSON until a typed
// accessor asks for them.
type Row struct {
	cols map[string]value
}

type value struct {
	raw []byte
	typ jsonparser.ValueType
}

// Has reports whether the row has column col.
func (r Row) Has(col string) bool {
	_, ok := r.cols[col]
	return ok
}

// String returns col as a string. A null column yields "".
func (r Row) String(col string) (string, error) {
	v, ok := r.cols[col]
	if !ok {
		return "", fmt.Errorf("column %s not in row", col)
	}
	switch v.typ {
	case jsonparser.String:
		return jsonparser.ParseString(v.raw)
	case jsonparser.Null:
		return "", nil
	default:
		return string(v.raw), nil
	}
}

// Strings returns col as a list of strings. A null column yields nil.
func (r Row) Strings(col string) ([]string, error) {
	v, ok := r.cols[col]
	if !ok {
		return nil, fmt.Errorf("column %s not in row", col)
	}
	switch v.typ {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Array:
	default:
		return nil, fmt.Errorf("column %s is not an array", col)
	}

	var (
		out      []string
		parseErr error
	)
	_, err := jsonparser.ArrayEach(v.raw, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		if t != jsonparser.String {
			parseErr = fmt.Errorf("column %s holds a non-string element", col)
			return
		}
		s, err := jsonparser.ParseString(item)
		if err != nil {
			parseErr = err
			return
		}
		out = append(out, s)
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRows accepts a JSON array of objects, newline-delimited objects, or
// a single object.
func decodeRows(body []byte) ([]Row, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	if body[0] == '[' {
		var (
			rows     []Row
			parseErr error
		)
		_, err := jsonparser.ArrayEach(body, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
			if parseErr != nil {
				return
			}
			if t != jsonparser.Object {
				parseErr = jsonparser.MalformedObjectError
				return
			}
			row, err := decodeRow(item)
			if err != nil {
				parseErr = err
				return
			}
			rows = append(rows, row)
		})
		if parseErr != nil {
			return nil, parseErr
		}
		if err != nil {
			return nil, err
		}
		return rows, nil
	}

	var rows []Row
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		row, err := decodeRow(line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(obj []byte) (Row, error) {
	if len(obj) == 0 || obj[0] != '{' {
		return Row{}, jsonparser.MalformedObjectError
	}
	row := Row{cols: make(map[string]value)}
	err := jsonparser.ObjectEach(obj, func(key, raw []byte, t jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		row.cols[k] = value{raw: raw, typ: t}
		return nil
	})
	if err != nil {
		return Row{}, err
	}
	return row, nil
}
