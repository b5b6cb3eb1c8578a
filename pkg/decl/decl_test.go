package decl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
)

const sample = `
typedefs:
  handle_t: void *
  count_t: unsigned int
  id_t: count_t
types:
  - name: node
    kind: struct
    fields:
      - {name: value, type: int}
      - {name: next, type: struct node *}
      - {name: owner, type: struct owner *}
      - {name: payload, type: union payload}
  - name: payload
    kind: union
    fields:
      - {name: i, type: int64_t}
      - {name: d, type: double}
      - {name: name, type: "char[16]"}
  - name: grid
    fields:
      - {name: cells, type: "int[2][3]"}
      - {name: nodes, type: "struct node[4]"}
      - {name: h, type: handle_t}
      - {name: id, type: const id_t}
      - {name: color, type: enum color}
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, set.Aggregates, 3)

	node, ok := set.Lookup("node")
	require.True(t, ok)
	assert.Equal(t, ctypes.Struct, node.Kind)
	require.Len(t, node.Fields, 4)
	assert.Equal(t, "int", node.Fields[0].Type.String())
	assert.Equal(t, "struct node *", node.Fields[1].Type.String())
	assert.Equal(t, "struct owner *", node.Fields[2].Type.String())

	payload, ok := set.Lookup("union payload")
	require.True(t, ok)
	assert.True(t, payload.IsUnion())
	// Forward reference resolves to the same aggregate.
	assert.Same(t, payload, node.Fields[3].Type)

	grid, ok := set.Lookup("struct grid")
	require.True(t, ok)
	got := make([]string, len(grid.Fields))
	for i, f := range grid.Fields {
		got[i] = f.Type.String()
	}
	assert.Equal(t, []string{"int[3][2]", "struct node[4]", "void *", "unsigned int", "enum color"}, got)
}

func TestNestedArrayDimensions(t *testing.T) {
	set, err := Parse([]byte("types: []"))
	require.NoError(t, err)
	typ, err := set.TypeFromString("int[2][3]")
	require.NoError(t, err)
	outer, ok := typ.(*ctypes.Tarray)
	require.True(t, ok)
	assert.Equal(t, int64(2), outer.Len)
	inner, ok := outer.Elem.(*ctypes.Tarray)
	require.True(t, ok)
	assert.Equal(t, int64(3), inner.Len)
	assert.Equal(t, ctypes.Int(), inner.Elem)
}

func TestTypeFromString(t *testing.T) {
	set, err := Parse([]byte("types: []"))
	require.NoError(t, err)

	tests := []struct {
		in   string
		want ctypes.Type
	}{
		{"int", ctypes.Int()},
		{"  unsigned   int ", ctypes.UInt()},
		{"int32_t", ctypes.Int()},
		{"uint8_t", ctypes.UChar()},
		{"int16_t", ctypes.Short()},
		{"int64_t", ctypes.LongLong()},
		{"long", ctypes.Long()},
		{"unsigned long", ctypes.Tlong{Sign: ctypes.Unsigned}},
		{"long double", ctypes.LongDouble()},
		{"_Bool", ctypes.Bool()},
		{"char **", ctypes.Pointer(ctypes.Pointer(ctypes.Char()))},
		{"const char *", ctypes.Pointer(ctypes.Char())},
		{"void *", ctypes.Pointer(ctypes.Void())},
		{"char[]", ctypes.Array(ctypes.Char(), -1)},
		{"char[0x10]", ctypes.Array(ctypes.Char(), 16)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := set.TypeFromString(tt.in)
			require.NoError(t, err)
			assert.True(t, ctypes.Equal(got, tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestOpaquePointerTargetsAreShared(t *testing.T) {
	set, err := Parse([]byte("types: []"))
	require.NoError(t, err)
	a, err := set.TypeFromString("struct opaque *")
	require.NoError(t, err)
	b, err := set.TypeFromString("struct opaque *")
	require.NoError(t, err)
	assert.Same(t, a.(ctypes.Tpointer).Elem, b.(ctypes.Tpointer).Elem)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown field type", "types: [{name: a, fields: [{name: x, type: size_t}]}]", ErrUnknownType},
		{"undeclared struct by value", "types: [{name: a, fields: [{name: x, type: struct b}]}]", ErrUnknownType},
		{"duplicate", "types: [{name: a}, {name: a}]", ErrDuplicateType},
		{"typedef clash", "typedefs: {a: int}\ntypes: [{name: a}]", ErrDuplicateType},
		{"bad kind", "types: [{name: a, kind: class}]", ErrInvalid},
		{"missing name", "types: [{kind: struct}]", ErrInvalid},
		{"missing field name", "types: [{name: a, fields: [{type: int}]}]", ErrInvalid},
		{"unknown key", "types: [{name: a, size: 4}]", ErrInvalid},
		{"bad array length", "types: [{name: a, fields: [{name: x, type: \"int[-1]\"}]}]", ErrInvalid},
		{"junk after array", "types: [{name: a, fields: [{name: x, type: \"int[2]x]\"}]}]", ErrInvalid},
		{"typedef cycle", "typedefs: {a_t: b_t, b_t: a_t}\ntypes: [{name: a, fields: [{name: x, type: a_t}]}]", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Aggregates, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
