// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"fmt"
	"reflect"
	"time"
)

// Snapshot is a flat projection of an entity's persisted fields. Values are
// nil, bool, string or numeric; everything else is normalized by Project.
type Snapshot map[string]any

// Snapshotter is implemented by domain objects that can be audited.
type Snapshotter interface {
	// AuditFields returns the persisted fields of the object at call time.
	AuditFields() map[string]any
}

// FileRef is a stored file attached to an entity.
type FileRef interface {
	URL() string
}

// Project normalizes fields into a Snapshot:
//   - time.Time becomes an RFC 3339 string (date-only values keep their
//     midnight timestamp);
//   - FileRef becomes its URL, or nil when the URL is empty;
//   - fmt.Stringer (references to other records) becomes its String();
//   - pointers are dereferenced, nil stays nil;
//   - any other non-primitive value is formatted with %v.
func Project(fields map[string]any) Snapshot {
	if fields == nil {
		return nil
	}
	s := make(Snapshot, len(fields))
	for k, v := range fields {
		s[k] = normalize(v)
	}
	return s
}

// Capture projects obj, or returns nil for a nil object.
func Capture(obj Snapshotter) Snapshot {
	if obj == nil {
		return nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}
	return Project(obj.AuditFields())
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.Format(time.RFC3339)
	case *time.Time:
		if x == nil || x.IsZero() {
			return nil
		}
		return x.Format(time.RFC3339)
	case FileRef:
		if isNilPointer(x) {
			return nil
		}
		if u := x.URL(); u != "" {
			return u
		}
		return nil
	case fmt.Stringer:
		if isNilPointer(x) {
			return nil
		}
		return x.String()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return fmt.Sprintf("%v", v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Changed returns the keys whose values differ between before and after,
// including keys present on only one side.
func Changed(before, after Snapshot) []string {
	var keys []string
	for k, bv := range before {
		av, ok := after[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
