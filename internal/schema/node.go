package schema

import "strings"

// Kind is the type tag carried by a Node.
type Kind string

const (
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindUint   Kind = "uint"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindStruct Kind = "struct"
	KindSlice  Kind = "slice"
	KindMap    Kind = "map"
	KindObject Kind = "object"
)

// Node describes one parameter or field. Children is populated only for
// struct kinds and mirrors the struct's exported fields in declaration order.
type Node struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Children []Node `json:"children,omitempty"`
}

// Composite reports whether the node's value is rebuilt from its children.
func (n Node) Composite() bool {
	return n.Kind == KindStruct
}

// Numeric reports whether the node holds a number.
func (n Node) Numeric() bool {
	return n.Kind == KindInt || n.Kind == KindUint || n.Kind == KindFloat
}

// String renders the tree compactly, e.g. "Count:int" or "Pos:struct(X:float,Y:float)".
func (n Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n Node) write(b *strings.Builder) {
	b.WriteString(n.Name)
	b.WriteByte(':')
	b.WriteString(string(n.Kind))
	if !n.Composite() {
		return
	}
	b.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			b.WriteByte(',')
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// Find returns the node named name.
func Find(nodes []Node, name string) (Node, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}
