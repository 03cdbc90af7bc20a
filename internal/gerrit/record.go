// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// A Record is a flat, ordered mapping from field names to values,
// built from a single Gerrit ChangeInfo or CommentInfo entity.
//
// Values are decoded JSON values: string, [json.Number], bool, nil,
// map[string]any or []any. A field that the server did not send holds
// the empty string.
//
// Records are immutable once built.
type Record struct {
	fields []string
	values map[string]any
}

// newRecord returns a record holding the named fields of obj,
// in the order given, followed by extra.
// Fields missing from obj are set to "".
func newRecord(obj map[string]any, fields []string, extra ...field) *Record {
	r := &Record{
		fields: make([]string, 0, len(fields)+len(extra)),
		values: make(map[string]any, len(fields)+len(extra)),
	}
	for _, f := range fields {
		v, ok := obj[f]
		if !ok {
			v = ""
		}
		r.set(f, v)
	}
	for _, f := range extra {
		r.set(f.name, f.value)
	}
	return r
}

// A field is a name and value appended to a record by an engine.
type field struct {
	name  string
	value any
}

func (r *Record) set(name string, v any) {
	if _, ok := r.values[name]; !ok {
		r.fields = append(r.fields, name)
	}
	r.values[name] = v
}

// Fields returns the field names of r, in order.
func (r *Record) Fields() []string {
	return slices.Clone(r.fields)
}

// Len returns the number of fields in r.
func (r *Record) Len() int {
	return len(r.fields)
}

// Get returns the value of the named field.
// It reports false if r has no such field.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// String returns the value of the named field formatted for display
// in a table cell. Strings are returned as is, numbers and booleans
// in their JSON form, JSON null and missing fields as "", and objects
// and arrays as compact JSON.
func (r *Record) String(name string) string {
	switch v := r.values[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		js, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(js)
	}
}

// Int returns the value of the named field as an integer.
// It reports false if the field is missing, empty, or not an integer.
func (r *Record) Int(name string) (int, bool) {
	switch v := r.values[name].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// MarshalJSON encodes r as a JSON object, keeping the field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into r, keeping the field order
// of the encoding. It is meant for reloading records written by
// [Record.MarshalJSON]; records are otherwise built by the engines.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	rec := &Record{values: make(map[string]any)}
	if err := decodeObject(dec, func(key string) error {
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		rec.set(key, v)
		return nil
	}); err != nil {
		return err
	}
	*r = *rec
	return nil
}

var errNotObject = errors.New("expected JSON object")

// decodeObject reads a JSON object from dec, calling value for each
// key in the order they appear. The value callback must consume the
// key's value from dec.
func decodeObject(dec *json.Decoder, value func(key string) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			// unreachable: json.Decoder only returns string keys
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if err := value(key); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	return nil
}
