// Package marshal turns a JSON command payload into the textual argument
// form used for name-based invocation and field import.
package marshal

import (
	"strconv"
	"strings"

	"github.com/danmuck/capbridge/internal/schema"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// EmptyList is the placeholder written for JSON arrays.
const EmptyList = "()"

// Marshal formats payload following nodes and joins the top-level values with
// single spaces. Fields missing from payload are skipped. Malformed values
// render as empty text; Marshal never fails.
func Marshal(nodes []schema.Node, payload []byte, quoteStrings bool) string {
	root := gjson.ParseBytes(payload)
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		field := root.Get(gjson.Escape(n.Name))
		if !field.Exists() {
			log.Debug().Str("field", n.Name).Msg("marshal.Marshal missing field")
			continue
		}
		parts = append(parts, Format(n, field, quoteStrings))
	}
	return strings.Join(parts, " ")
}

// Format renders one JSON value for node n.
func Format(n schema.Node, v gjson.Result, quoteStrings bool) string {
	if n.Composite() {
		return formatComposite(n, v, quoteStrings)
	}
	switch v.Type {
	case gjson.String:
		return formatString(v.Str, quoteStrings)
	case gjson.Number:
		return formatNumber(v)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.JSON:
		if v.IsArray() {
			return EmptyList
		}
		return string(pretty.Ugly([]byte(v.Raw)))
	default:
		return ""
	}
}

func formatComposite(n schema.Node, v gjson.Result, quoteStrings bool) string {
	var b strings.Builder
	b.WriteByte('(')
	first := true
	if v.IsObject() {
		for _, c := range n.Children {
			child := v.Get(gjson.Escape(c.Name))
			if !child.Exists() {
				continue
			}
			text := Format(c, child, quoteStrings)
			if text == "" {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(c.Name)
			b.WriteByte('=')
			b.WriteString(text)
		}
	}
	b.WriteByte(')')
	return b.String()
}

func formatString(s string, quote bool) string {
	if !quote {
		return s
	}
	return Quote(s)
}

// Quote escapes backslashes and double quotes and wraps s in double quotes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

func formatNumber(v gjson.Result) string {
	if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}
