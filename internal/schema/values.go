package schema

import (
	"encoding"
	"reflect"
)

// Values packages v into a JSON object following nodes. Struct values are
// read field by field; a non-struct value fills the single node it was
// described with. Nil values are left out.
func Values(nodes []Node, v reflect.Value) map[string]any {
	out := make(map[string]any, len(nodes))
	v = deref(v)
	if !v.IsValid() {
		return out
	}
	if v.Kind() != reflect.Struct || isText(v.Type()) {
		if len(nodes) == 1 {
			if val := value(nodes[0], v); val != nil {
				out[nodes[0].Name] = val
			}
		}
		return out
	}
	for _, n := range nodes {
		f := v.FieldByName(n.Name)
		if !f.IsValid() {
			continue
		}
		if val := value(n, f); val != nil {
			out[n.Name] = val
		}
	}
	return out
}

func value(n Node, v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}
	if v.CanInterface() {
		if tm, ok := v.Interface().(encoding.TextMarshaler); ok {
			text, err := tm.MarshalText()
			if err != nil {
				return nil
			}
			return string(text)
		}
	}
	v = deref(v)
	if !v.IsValid() {
		return nil
	}
	if n.Composite() && v.Kind() == reflect.Struct {
		return Values(n.Children, v)
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
