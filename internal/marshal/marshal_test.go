package marshal

import (
	"testing"

	"github.com/danmuck/capbridge/internal/schema"
	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
)

var vecNode = schema.Node{
	Name: "Pos",
	Kind: schema.KindStruct,
	Children: []schema.Node{
		{Name: "X", Kind: schema.KindFloat},
		{Name: "Y", Kind: schema.KindFloat},
		{Name: "Z", Kind: schema.KindFloat},
	},
}

func TestMarshalCompositeKeepsSchemaOrder(t *testing.T) {
	testlog.Start(t)

	got := Marshal([]schema.Node{vecNode}, []byte(`{"Pos":{"Z":3,"Y":2.5,"X":1}}`), true)
	assert.Equal(t, "(X=1,Y=2.5,Z=3)", got)
}

func TestMarshalCompositeOmitsMissingChild(t *testing.T) {
	testlog.Start(t)

	got := Marshal([]schema.Node{vecNode}, []byte(`{"Pos":{"X":1,"Z":3}}`), true)
	assert.Equal(t, "(X=1,Z=3)", got)

	got = Marshal([]schema.Node{vecNode}, []byte(`{"Pos":{}}`), true)
	assert.Equal(t, "()", got)
}

func TestMarshalQuotingPolicy(t *testing.T) {
	testlog.Start(t)

	nodes := []schema.Node{{Name: "Text", Kind: schema.KindString}}
	payload := []byte(`{"Text":"hello \"world\""}`)

	assert.Equal(t, `"hello \"world\""`, Marshal(nodes, payload, true))
	assert.Equal(t, `hello "world"`, Marshal(nodes, payload, false))
}

func TestMarshalScalars(t *testing.T) {
	testlog.Start(t)

	nodes := []schema.Node{
		{Name: "Count", Kind: schema.KindInt},
		{Name: "Level", Kind: schema.KindFloat},
		{Name: "On", Kind: schema.KindBool},
		{Name: "Big", Kind: schema.KindInt},
	}
	got := Marshal(nodes, []byte(`{"Count":3,"Level":0.25,"On":false,"Big":3.0}`), true)
	assert.Equal(t, "3 0.25 false 3", got)
}

func TestMarshalMissingFieldIsSkipped(t *testing.T) {
	testlog.Start(t)

	nodes := []schema.Node{
		{Name: "A", Kind: schema.KindInt},
		{Name: "B", Kind: schema.KindInt},
		{Name: "C", Kind: schema.KindInt},
	}
	assert.Equal(t, "1 3", Marshal(nodes, []byte(`{"A":1,"C":3}`), true))
	assert.Equal(t, "", Marshal(nodes, []byte(`{}`), true))
	assert.Equal(t, "", Marshal(nodes, []byte(`not json`), true))
}

func TestMarshalObjectAndArrayLeaves(t *testing.T) {
	testlog.Start(t)

	nodes := []schema.Node{
		{Name: "Meta", Kind: schema.KindObject},
		{Name: "List", Kind: schema.KindSlice},
	}
	got := Marshal(nodes, []byte(`{"Meta": { "a" : 1 , "b":[1, 2] }, "List":[1,2,3]}`), false)
	assert.Equal(t, `{"a":1,"b":[1,2]} ()`, got)
}

func TestMarshalNestedCompositeSkipsEmptyChild(t *testing.T) {
	testlog.Start(t)

	n := schema.Node{
		Name: "T",
		Kind: schema.KindStruct,
		Children: []schema.Node{
			vecNode,
			{Name: "Label", Kind: schema.KindString},
			{Name: "Gone", Kind: schema.KindString},
		},
	}
	got := Marshal([]schema.Node{n}, []byte(`{"T":{"Pos":{"X":1},"Label":"a b","Gone":null}}`), true)
	assert.Equal(t, `(Pos=(X=1),Label="a b")`, got)
}

func TestQuoteEscapesBackslash(t *testing.T) {
	testlog.Start(t)

	assert.Equal(t, `"a\\b\"c"`, Quote(`a\b"c`))
}
