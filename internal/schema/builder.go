package schema

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
)

// MaxDepth bounds composite expansion. Deeper structs become object leaves.
const MaxDepth = 8

var (
	ErrUnsupportedKind = errors.New("schema: unsupported kind")
	ErrNotFunc         = errors.New("schema: not a func type")
	ErrNotStruct       = errors.New("schema: not a struct type")
)

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// ForType builds the node for a single named value of type t.
func ForType(name string, t reflect.Type) (Node, error) {
	return build(name, t, nil, 0)
}

// ForField builds exactly one node for a struct field.
func ForField(f reflect.StructField) (Node, error) {
	n, err := build(f.Name, f.Type, nil, 0)
	if err != nil {
		return Node{}, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return n, nil
}

// ForFunc builds one node per input parameter of fn, in declaration order.
// Results are outputs and never appear. names supplies parameter names, which
// reflection does not carry; missing entries default to Arg<i>.
func ForFunc(fn reflect.Type, names []string) ([]Node, error) {
	if fn == nil || fn.Kind() != reflect.Func {
		return nil, ErrNotFunc
	}
	nodes := make([]Node, 0, fn.NumIn())
	for i := range fn.NumIn() {
		name := fmt.Sprintf("Arg%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		n, err := build(name, fn.In(i), nil, 0)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ForStruct builds one node per exported field of t. Fields of unsupported
// kinds are skipped.
func ForStruct(t reflect.Type) ([]Node, error) {
	t = indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, ErrNotStruct
	}
	return fields(t, []reflect.Type{t}, 1), nil
}

func build(name string, t reflect.Type, path []reflect.Type, depth int) (Node, error) {
	if t == nil {
		return Node{}, ErrUnsupportedKind
	}
	if isText(t) {
		return Node{Name: name, Kind: KindString}, nil
	}
	t = indirect(t)
	switch t.Kind() {
	case reflect.Bool:
		return Node{Name: name, Kind: KindBool}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Node{Name: name, Kind: KindInt}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Node{Name: name, Kind: KindUint}, nil
	case reflect.Float32, reflect.Float64:
		return Node{Name: name, Kind: KindFloat}, nil
	case reflect.String:
		return Node{Name: name, Kind: KindString}, nil
	case reflect.Slice, reflect.Array:
		return Node{Name: name, Kind: KindSlice}, nil
	case reflect.Map:
		return Node{Name: name, Kind: KindMap}, nil
	case reflect.Interface:
		return Node{Name: name, Kind: KindObject}, nil
	case reflect.Struct:
		if depth >= MaxDepth || onPath(path, t) {
			return Node{Name: name, Kind: KindObject}, nil
		}
		next := append(path[:len(path):len(path)], t)
		return Node{Name: name, Kind: KindStruct, Children: fields(t, next, depth+1)}, nil
	default:
		return Node{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, t.Kind())
	}
}

func fields(t reflect.Type, path []reflect.Type, depth int) []Node {
	children := make([]Node, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		n, err := build(f.Name, f.Type, path, depth)
		if err != nil {
			continue
		}
		children = append(children, n)
	}
	return children
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func onPath(path []reflect.Type, t reflect.Type) bool {
	for _, p := range path {
		if p == t {
			return true
		}
	}
	return false
}

// isText reports whether values of t round-trip through text marshalling,
// e.g. time.Time. Such types are described as strings.
func isText(t reflect.Type) bool {
	pt := t
	if t.Kind() != reflect.Pointer {
		pt = reflect.PointerTo(t)
	}
	return pt.Implements(textUnmarshalerType) && (t.Implements(textMarshalerType) || pt.Implements(textMarshalerType))
}
