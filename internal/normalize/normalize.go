package normalize

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
)

var (
	// ErrCycle indicates that a value references itself along the path
	// being normalized.
	ErrCycle = errors.New("cycle detected in object graph")

	// ErrUnsupportedType indicates a value with no JSON-safe representation
	// (functions, channels, complex numbers).
	ErrUnsupportedType = errors.New("unsupported type")
)

// Error reports where in the object graph normalization failed.
type Error struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Exporter is implemented by backend objects that can render themselves as
// a plain mapping.
type Exporter interface {
	ToMap() map[string]any
}

var (
	mapType      = reflect.TypeOf((*Map)(nil))
	jsonNumType  = reflect.TypeOf(json.Number(""))
	exporterType = reflect.TypeOf((*Exporter)(nil)).Elem()
	objectType   = reflect.TypeOf((*runtime.Object)(nil)).Elem()
	textType     = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Normalize converts v into a tree of *Map, []any and primitives.
//
// Rules are applied in order to every visited value:
//  1. primitives are returned unchanged (named primitive types are converted
//     to their built-in kind, TextMarshaler values such as time.Time to text)
//  2. slices and arrays become []any, order preserved
//  3. *Map keeps insertion order; Go maps are emitted in sorted key order
//  4. Exporter values and runtime.Object values are exported to a mapping
//     which is then normalized
//  5. other structs become a Map of their exported, non-func fields in
//     declaration order, keyed by JSON tag name when present
//
// A value that contains itself fails with ErrCycle, as does nesting deeper
// than maxDepth, which catches exporters that return fresh copies of
// themselves.
func Normalize(v any) (any, error) {
	n := &normalizer{onPath: map[visitKey]struct{}{}}
	return n.walk(reflect.ValueOf(v), "$")
}

// MustNormalize is Normalize for values known to be acyclic; it panics on error.
func MustNormalize(v any) any {
	out, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return out
}

// maxDepth bounds the number of nested values walked below the root.
const maxDepth = 256

type visitKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type normalizer struct {
	onPath map[visitKey]struct{}
	depth  int
}

func (n *normalizer) enter(rv reflect.Value, path string) (func(), error) {
	key := visitKey{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		key.n = rv.Len()
	}
	if _, seen := n.onPath[key]; seen {
		return nil, &Error{Path: path, Err: ErrCycle}
	}
	n.onPath[key] = struct{}{}
	return func() { delete(n.onPath, key) }, nil
}

func (n *normalizer) walk(rv reflect.Value, path string) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return n.walk(rv.Elem(), path)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
	}

	if n.depth >= maxDepth {
		return nil, &Error{Path: path, Err: ErrCycle}
	}
	n.depth++
	defer func() { n.depth-- }()

	if p, ok := primitive(rv); ok {
		return p, nil
	}
	if tm, ok := implements(rv, textType); ok {
		text, err := tm.(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		return string(text), nil
	}

	if rv.Type() == mapType {
		return n.orderedMap(rv, path)
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return n.sequence(rv, path)
	case reflect.Map:
		return n.goMap(rv, path)
	}

	if e, ok := implements(rv, exporterType); ok {
		return n.exported(rv, path, func() (any, error) {
			return e.(Exporter).ToMap(), nil
		})
	}
	if obj, ok := implements(rv, objectType); ok {
		return n.exported(rv, path, func() (any, error) {
			return runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
		})
	}

	switch rv.Kind() {
	case reflect.Pointer:
		leave, err := n.enter(rv, path)
		if err != nil {
			return nil, err
		}
		defer leave()
		return n.walk(rv.Elem(), path)
	case reflect.Struct:
		out := NewMap()
		if err := n.fields(rv, path, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	return nil, &Error{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())}
}

// primitive returns built-in scalars as is and converts named scalar types
// to their underlying built-in kind.
func primitive(rv reflect.Value) (any, bool) {
	t := rv.Type()
	if t == jsonNumType {
		return rv.Interface(), true
	}
	builtin := t.PkgPath() == "" && t.Name() != ""
	switch rv.Kind() {
	case reflect.Bool:
		if builtin {
			return rv.Interface(), true
		}
		if _, ok := implements(rv, textType); ok {
			return nil, false
		}
		return rv.Bool(), true
	case reflect.String:
		if builtin {
			return rv.Interface(), true
		}
		if _, ok := implements(rv, textType); ok {
			return nil, false
		}
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if builtin {
			return rv.Interface(), true
		}
		if _, ok := implements(rv, textType); ok {
			return nil, false
		}
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if builtin {
			return rv.Interface(), true
		}
		if _, ok := implements(rv, textType); ok {
			return nil, false
		}
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		if builtin {
			return rv.Interface(), true
		}
		if _, ok := implements(rv, textType); ok {
			return nil, false
		}
		return rv.Float(), true
	}
	return nil, false
}

// implements reports whether rv, or its address when addressable, satisfies
// iface, and returns the satisfying value.
func implements(rv reflect.Value, iface reflect.Type) (any, bool) {
	if !rv.CanInterface() {
		return nil, false
	}
	if rv.Type().Implements(iface) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, false
		}
		return rv.Interface(), true
	}
	if rv.Kind() != reflect.Pointer && rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(iface) {
		return rv.Addr().Interface(), true
	}
	return nil, false
}

func (n *normalizer) exported(rv reflect.Value, path string, export func() (any, error)) (any, error) {
	if rv.Kind() == reflect.Pointer {
		leave, err := n.enter(rv, path)
		if err != nil {
			return nil, err
		}
		defer leave()
	}
	m, err := export()
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return n.walk(reflect.ValueOf(m), path)
}

func (n *normalizer) orderedMap(rv reflect.Value, path string) (any, error) {
	leave, err := n.enter(rv, path)
	if err != nil {
		return nil, err
	}
	defer leave()

	in := rv.Interface().(*Map)
	out := NewMap()
	for _, k := range in.keys {
		v, err := n.walk(reflect.ValueOf(in.values[k]), path+"."+k)
		if err != nil {
			return nil, err
		}
		out.Set(k, v)
	}
	return out, nil
}

func (n *normalizer) sequence(rv reflect.Value, path string) (any, error) {
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		leave, err := n.enter(rv, path)
		if err != nil {
			return nil, err
		}
		defer leave()
	}

	out := make([]any, rv.Len())
	for i := range rv.Len() {
		v, err := n.walk(rv.Index(i), path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n *normalizer) goMap(rv reflect.Value, path string) (any, error) {
	leave, err := n.enter(rv, path)
	if err != nil {
		return nil, err
	}
	defer leave()

	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := mapKey(iter.Key())
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		keys = append(keys, k)
		byKey[k] = iter.Value()
	}
	sort.Strings(keys)

	out := NewMap()
	for _, k := range keys {
		v, err := n.walk(byKey[k], path+"."+k)
		if err != nil {
			return nil, err
		}
		out.Set(k, v)
	}
	return out, nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := implements(k, textType); ok {
		b, err := tm.(encoding.TextMarshaler).MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	}
	return "", fmt.Errorf("%w: map key %s", ErrUnsupportedType, k.Type())
}

// fields writes the exported attributes of a struct into out. Anonymous
// struct fields without a JSON name are flattened.
func (n *normalizer) fields(rv reflect.Value, path string, out *Map) error {
	t := rv.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		fv := rv.Field(i)

		name, skip := fieldName(sf)
		if skip {
			continue
		}

		if sf.Anonymous && name == "" {
			embedded := fv
			if embedded.Kind() == reflect.Pointer {
				if embedded.IsNil() {
					continue
				}
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				inner := NewMap()
				if err := n.fields(embedded, path, inner); err != nil {
					return err
				}
				for _, k := range inner.keys {
					if !out.Has(k) {
						out.Set(k, inner.values[k])
					}
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		v, err := n.walk(fv, path+"."+name)
		if err != nil {
			return err
		}
		out.Set(name, v)
	}
	return nil
}

// fieldName returns the JSON name of a struct field and whether the field
// is excluded from the attribute bag.
func fieldName(sf reflect.StructField) (string, bool) {
	switch sf.Type.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", true
	}
	if !sf.IsExported() && !sf.Anonymous {
		return "", true
	}
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, false
}
