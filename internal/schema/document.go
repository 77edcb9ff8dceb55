package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DraftVersion is the $schema URI published with every document.
const DraftVersion = "http://json-schema.org/draft-07/schema#"

// Document renders nodes as a draft-07 object schema, one property per node
// in node order.
func Document(nodes []Node) *jsonschema.Schema {
	return &jsonschema.Schema{
		Version:    DraftVersion,
		Type:       "object",
		Properties: properties(nodes),
	}
}

// DocumentJSON is Document encoded as JSON.
func DocumentJSON(nodes []Node) (json.RawMessage, error) {
	return json.Marshal(Document(nodes))
}

func properties(nodes []Node) *orderedmap.OrderedMap[string, *jsonschema.Schema] {
	props := jsonschema.NewProperties()
	for _, n := range nodes {
		props.Set(n.Name, property(n))
	}
	return props
}

func property(n Node) *jsonschema.Schema {
	switch n.Kind {
	case KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case KindInt, KindUint, KindFloat:
		return &jsonschema.Schema{Type: "number"}
	case KindStruct:
		return &jsonschema.Schema{Type: "object", Properties: properties(n.Children)}
	case KindMap, KindObject:
		return &jsonschema.Schema{Type: "object"}
	case KindSlice:
		return &jsonschema.Schema{Type: "array"}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}
