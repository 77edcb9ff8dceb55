package host

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrSyntax          = errors.New("host: syntax error")
	ErrUnsupportedType = errors.New("host: unsupported type")
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// Import parses text into dst and returns the text it did not consume.
// Struct values use the (Name=value,Name=value) form, slices use (a,b) and
// maps or interface values take JSON. Unquoted strings at the top level take
// the whole text.
func Import(text string, dst reflect.Value) (string, error) {
	if !dst.CanSet() {
		return text, fmt.Errorf("%w: destination not settable", ErrUnsupportedType)
	}
	return importValue(text, dst, "")
}

// importValue parses one value from s. stop lists the bytes that end an
// unquoted token; an empty stop consumes to the end of s.
func importValue(s string, dst reflect.Value, stop string) (string, error) {
	s = strings.TrimLeft(s, " \t\r\n")
	if dst.Kind() != reflect.Pointer && reflect.PointerTo(dst.Type()).Implements(textUnmarshalerType) {
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		u := dst.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(tok)); err != nil {
			return s, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return rest, nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return importValue(s, dst.Elem(), stop)
	case reflect.Bool:
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		b, err := strconv.ParseBool(tok)
		if err != nil {
			return s, fmt.Errorf("%w: bool %q", ErrSyntax, tok)
		}
		dst.SetBool(b)
		return rest, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		i, err := parseInt(tok, dst.Type().Bits())
		if err != nil {
			return s, err
		}
		dst.SetInt(i)
		return rest, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		u, err := strconv.ParseUint(tok, 10, dst.Type().Bits())
		if err != nil {
			return s, fmt.Errorf("%w: uint %q", ErrSyntax, tok)
		}
		dst.SetUint(u)
		return rest, nil
	case reflect.Float32, reflect.Float64:
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		f, err := strconv.ParseFloat(tok, dst.Type().Bits())
		if err != nil {
			return s, fmt.Errorf("%w: float %q", ErrSyntax, tok)
		}
		dst.SetFloat(f)
		return rest, nil
	case reflect.String:
		tok, rest, err := token(s, stop)
		if err != nil {
			return s, err
		}
		dst.SetString(tok)
		return rest, nil
	case reflect.Struct:
		return importStruct(s, dst)
	case reflect.Slice:
		return importSlice(s, dst)
	case reflect.Map, reflect.Interface:
		return importJSON(s, dst)
	default:
		return s, fmt.Errorf("%w: %s", ErrUnsupportedType, dst.Kind())
	}
}

func importStruct(s string, dst reflect.Value) (string, error) {
	if !strings.HasPrefix(s, "(") {
		return s, fmt.Errorf("%w: expected ( for %s", ErrSyntax, dst.Type())
	}
	rest := s[1:]
	for {
		rest = strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(rest, ")") {
			return rest[1:], nil
		}
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return s, fmt.Errorf("%w: expected Name= in %s", ErrSyntax, dst.Type())
		}
		name := strings.TrimSpace(rest[:eq])
		f := dst.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			return s, fmt.Errorf("%w: %s has no field %q", ErrSyntax, dst.Type(), name)
		}
		var err error
		rest, err = importValue(rest[eq+1:], f, ",)")
		if err != nil {
			return s, err
		}
		rest = strings.TrimLeft(rest, " \t")
		switch {
		case strings.HasPrefix(rest, ","):
			rest = rest[1:]
		case strings.HasPrefix(rest, ")"):
			return rest[1:], nil
		default:
			return s, fmt.Errorf("%w: unterminated %s", ErrSyntax, dst.Type())
		}
	}
}

func importSlice(s string, dst reflect.Value) (string, error) {
	if !strings.HasPrefix(s, "(") {
		return s, fmt.Errorf("%w: expected ( for %s", ErrSyntax, dst.Type())
	}
	out := reflect.MakeSlice(dst.Type(), 0, 0)
	rest := s[1:]
	for {
		rest = strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(rest, ")") {
			dst.Set(out)
			return rest[1:], nil
		}
		elem := reflect.New(dst.Type().Elem()).Elem()
		var err error
		rest, err = importValue(rest, elem, ",)")
		if err != nil {
			return s, err
		}
		out = reflect.Append(out, elem)
		rest = strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(rest, ",") {
			rest = rest[1:]
		} else if !strings.HasPrefix(rest, ")") {
			return s, fmt.Errorf("%w: unterminated %s", ErrSyntax, dst.Type())
		}
	}
}

func importJSON(s string, dst reflect.Value) (string, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	ptr := reflect.New(dst.Type())
	if err := dec.Decode(ptr.Interface()); err != nil {
		return s, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	dst.Set(ptr.Elem())
	return s[dec.InputOffset():], nil
}

// token reads a quoted string or an unquoted run ending at any byte in stop.
func token(s, stop string) (string, string, error) {
	if strings.HasPrefix(s, `"`) {
		return unquote(s)
	}
	if stop == "" {
		return strings.TrimRight(s, " \t\r\n"), "", nil
	}
	end := strings.IndexAny(s, stop)
	if end < 0 {
		end = len(s)
	}
	return strings.TrimRight(s[:end], " \t"), s[end:], nil
}

// unquote reads a double-quoted string with backslash escapes from the start
// of s.
func unquote(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return "", s, fmt.Errorf("%w: dangling escape", ErrSyntax)
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", s, fmt.Errorf("%w: unterminated string", ErrSyntax)
}

func parseInt(tok string, bits int) (int64, error) {
	if i, err := strconv.ParseInt(tok, 10, bits); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: int %q", ErrSyntax, tok)
	}
	return int64(f), nil
}

// SplitArgs splits a call line into tokens on whitespace. Quoted strings and
// bracketed groups stay whole.
func SplitArgs(line string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			i++
			continue
		}
		start := i
		depth := 0
		for i < len(line) {
			c = line[i]
			if c == '"' {
				_, rest, err := unquote(line[i:])
				if err != nil {
					return nil, err
				}
				i = len(line) - len(rest)
				continue
			}
			if depth == 0 && (c == ' ' || c == '\t' || c == '\r' || c == '\n') {
				break
			}
			switch c {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, c)
				}
			}
			i++
		}
		if depth != 0 {
			return nil, fmt.Errorf("%w: unbalanced group", ErrSyntax)
		}
		tokens = append(tokens, line[start:i])
	}
	return tokens, nil
}
