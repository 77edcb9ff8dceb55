package host

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/capbridge/internal/capability"
	"github.com/danmuck/capbridge/internal/marshal"
	"github.com/danmuck/capbridge/internal/schema"
	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color struct {
	R, G, B uint8
}

type changed struct {
	Level float64
	Tint  color
}

type fixture struct {
	RS_Level float64
	RS_Label string
	RS_Tint  color
	RS_Tags  []string
	RS_Meta  map[string]any
	RS_At    time.Time
	RS_Hook  chan int

	RS_Changed Event[changed]
	RS_Ticked  *Event[int]

	flashes  []int
	received int
}

func (f *fixture) RS_Flash(count int) { f.flashes = append(f.flashes, count) }

func (f *fixture) RS_Paint(c color, label string) error {
	if label == "" {
		return errors.New("label required")
	}
	f.RS_Tint = c
	f.RS_Label = label
	return nil
}

func (f *fixture) RS_Ready() bool { return f.RS_Level > 0 }

func (f *fixture) RS_Boom() { panic("boom") }

func (f *fixture) OnDataReceived() { f.received++ }

func (f *fixture) ParamNames() map[string][]string {
	return map[string][]string{
		"RS_Flash": {"Count"},
		"RS_Paint": {"Color", "Label"},
	}
}

func newFixture(t *testing.T, opts ...Option) (*fixture, *Object) {
	t.Helper()
	f := &fixture{RS_Ticked: &Event[int]{}}
	o, err := New(f, opts...)
	require.NoError(t, err)
	return f, o
}

func TestNewRejectsNonStructPointer(t *testing.T) {
	testlog.Start(t)

	_, err := New(fixture{})
	assert.ErrorIs(t, err, ErrNotStructPointer)
	_, err = New((*fixture)(nil))
	assert.ErrorIs(t, err, ErrNotStructPointer)
	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNotStructPointer)
}

func TestMembersClassifies(t *testing.T) {
	testlog.Start(t)

	_, o := newFixture(t)
	assert.Equal(t, "fixture", o.Identifier())

	kinds := map[string]capability.MemberKind{}
	schemas := map[string][]schema.Node{}
	for _, m := range o.Members() {
		kinds[m.Name] = m.Kind
		schemas[m.Name] = m.Schema
	}

	assert.Equal(t, capability.MemberField, kinds["RS_Level"])
	assert.Equal(t, capability.MemberField, kinds["RS_At"])
	assert.NotContains(t, kinds, "RS_Hook")
	assert.NotContains(t, kinds, "flashes")
	assert.Equal(t, capability.MemberEvent, kinds["RS_Changed"])
	assert.Equal(t, capability.MemberEvent, kinds["RS_Ticked"])
	assert.Equal(t, capability.MemberOperation, kinds["RS_Flash"])
	assert.Equal(t, capability.MemberOperation, kinds["OnDataReceived"])

	assert.Equal(t, []schema.Node{{Name: "Count", Kind: schema.KindInt}}, schemas["RS_Flash"])
	assert.Equal(t, "Color:struct(R:uint,G:uint,B:uint)", schemas["RS_Paint"][0].String())
	assert.Equal(t, "Label", schemas["RS_Paint"][1].Name)
	assert.Equal(t, []schema.Node{{Name: "Value", Kind: schema.KindInt}}, schemas["RS_Ticked"])
	require.Len(t, schemas["RS_Changed"], 2)
	assert.Equal(t, "Tint:struct(R:uint,G:uint,B:uint)", schemas["RS_Changed"][1].String())
}

func TestImportField(t *testing.T) {
	testlog.Start(t)

	f, o := newFixture(t)

	rest, err := o.ImportField("RS_Level", "0.5")
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, 0.5, f.RS_Level)

	_, err = o.ImportField("RS_Label", `hello "world"`)
	require.NoError(t, err)
	assert.Equal(t, `hello "world"`, f.RS_Label)

	_, err = o.ImportField("RS_Tint", "(R=1,B=3)")
	require.NoError(t, err)
	assert.Equal(t, color{R: 1, B: 3}, f.RS_Tint)

	_, err = o.ImportField("RS_Tags", "()")
	require.NoError(t, err)
	assert.NotNil(t, f.RS_Tags)
	assert.Empty(t, f.RS_Tags)

	_, err = o.ImportField("RS_Meta", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, f.RS_Meta)

	_, err = o.ImportField("RS_At", "2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, f.RS_At.Year())
}

func TestImportFieldFailuresLeaveValue(t *testing.T) {
	testlog.Start(t)

	f, o := newFixture(t)
	f.RS_Tint = color{R: 9}

	_, err := o.ImportField("RS_Level", "bright")
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = o.ImportField("RS_Tint", "(R=1,Q=2)")
	assert.ErrorIs(t, err, ErrSyntax)
	assert.Equal(t, color{R: 9}, f.RS_Tint)

	_, err = o.ImportField("RS_Missing", "1")
	assert.ErrorIs(t, err, ErrNoSuchMember)

	rest, err := o.ImportField("RS_Tint", "(R=1) tail")
	require.NoError(t, err)
	assert.Equal(t, " tail", rest)
}

func TestCallInvokesByName(t *testing.T) {
	testlog.Start(t)

	var lines []string
	f, o := newFixture(t, WithCallTrace(func(line string) { lines = append(lines, line) }))

	require.True(t, o.Invoke("RS_Flash", "3"))
	assert.Equal(t, []int{3}, f.flashes)
	assert.Equal(t, []string{`"RS_Flash" 3`}, lines)

	require.True(t, o.Call(`"RS_Paint" (R=1,G=2,B=3) "a \"b\""`))
	assert.Equal(t, color{R: 1, G: 2, B: 3}, f.RS_Tint)
	assert.Equal(t, `a "b"`, f.RS_Label)

	require.True(t, o.Invoke("RS_Flash", ""))
	assert.Equal(t, []int{3, 0}, f.flashes)
}

type pair struct {
	A, B int
}

func (p *pair) RS_Set(a, b int) { p.A, p.B = a, b }

func (p *pair) ParamNames() map[string][]string {
	return map[string][]string{"RS_Set": {"A", "B"}}
}

func TestMissingPayloadFieldShiftsLaterArgs(t *testing.T) {
	testlog.Start(t)

	p := &pair{}
	o, err := New(p)
	require.NoError(t, err)
	nodes, err := schema.ForFunc(reflect.TypeOf(p.RS_Set), []string{"A", "B"})
	require.NoError(t, err)

	// Arguments bind by position: a missing A lets B's value land in a.
	args := marshal.Marshal(nodes, []byte(`{"B":7}`), true)
	assert.Equal(t, "7", args)
	require.True(t, o.Invoke("RS_Set", args))
	assert.Equal(t, pair{A: 7, B: 0}, *p)

	// A missing trailing field leaves its parameter at zero.
	require.True(t, o.Invoke("RS_Set", marshal.Marshal(nodes, []byte(`{"A":4}`), true)))
	assert.Equal(t, pair{A: 4, B: 0}, *p)
}

func TestCallFailures(t *testing.T) {
	testlog.Start(t)

	_, o := newFixture(t)

	assert.False(t, o.Invoke("RS_Nope", ""))
	assert.False(t, o.Invoke("RS_Flash", "1 2"))
	assert.False(t, o.Invoke("RS_Flash", "many"))
	assert.False(t, o.Invoke("RS_Paint", `(R=1) ""`))
	assert.False(t, o.Invoke("RS_Ready", ""))
	assert.False(t, o.Invoke("RS_Boom", ""))
	assert.False(t, o.Call(`"RS_Flash`))

	o.Release()
	assert.False(t, o.Alive())
	assert.False(t, o.Invoke("RS_Flash", "1"))
	_, err := o.ImportField("RS_Level", "1")
	assert.ErrorIs(t, err, ErrReleased)
}

func TestEventSubscribeAndCancel(t *testing.T) {
	testlog.Start(t)

	var ev Event[changed]
	var got []any
	cancel := ev.Subscribe(func(p any) { got = append(got, p) })
	assert.Equal(t, 1, ev.Subscribers())
	assert.Equal(t, reflect.TypeFor[changed](), ev.PayloadType())

	ev.Emit(changed{Level: 1})
	cancel()
	cancel()
	ev.Emit(changed{Level: 2})

	assert.Equal(t, []any{changed{Level: 1}}, got)
	assert.Equal(t, 0, ev.Subscribers())
}

func TestSiblingsAndDataReceived(t *testing.T) {
	testlog.Start(t)

	_, sib := newFixture(t, WithName("Bulb"))
	f, o := newFixture(t, WithName("Lamp"), WithSiblings(sib))

	assert.Len(t, o.Siblings(), 1)
	_, late := newFixture(t)
	o.AddSibling(late)
	assert.Len(t, o.Siblings(), 2)
	late.Release()
	assert.Len(t, o.Siblings(), 1)

	o.OnDataReceived()
	assert.Equal(t, 1, f.received)
}

func TestSplitArgs(t *testing.T) {
	testlog.Start(t)

	got, err := SplitArgs(`"RS_Move" (X=1,Y=(A=2,B="x y")) "two words" 3 {"k":[1, 2]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{`"RS_Move"`, `(X=1,Y=(A=2,B="x y"))`, `"two words"`, `3`, `{"k":[1, 2]}`}, got)

	_, err = SplitArgs(`(a`)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = SplitArgs(`a)`)
	assert.ErrorIs(t, err, ErrSyntax)
}
