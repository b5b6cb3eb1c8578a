package dwarfimport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/blacktop/go-dwarf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/cpu"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
	"github.com/raymyers/ralph-layout/pkg/layout"
	"github.com/raymyers/ralph-layout/pkg/machdesc"
	"github.com/raymyers/ralph-layout/pkg/platform"
	"github.com/raymyers/ralph-layout/pkg/report"
)

func intType(name string, size int64) *dwarf.IntType {
	return &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: name, ByteSize: size}}}
}

func uintType(name string, size int64) *dwarf.UintType {
	return &dwarf.UintType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: name, ByteSize: size}}}
}

func floatType(name string, size int64) *dwarf.FloatType {
	return &dwarf.FloatType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: name, ByteSize: size}}}
}

// nodeType mirrors what an LP64 compiler emits for
//
//	struct node { int a; long b; struct node *next; char name[4]; double d; unsigned short s; };
func nodeType() *dwarf.StructType {
	st := &dwarf.StructType{
		CommonType: dwarf.CommonType{ByteSize: 48},
		StructName: "node",
		Kind:       "struct",
	}
	char := &dwarf.CharType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: "char", ByteSize: 1}}}
	st.Field = []*dwarf.StructField{
		{Name: "a", Type: intType("int", 4), ByteOffset: 0},
		{Name: "b", Type: intType("long int", 8), ByteOffset: 8},
		{Name: "next", Type: &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: 8}, Type: st}, ByteOffset: 16},
		{Name: "name", Type: &dwarf.ArrayType{Type: char, Count: 4}, ByteOffset: 24},
		{Name: "d", Type: floatType("double", 8), ByteOffset: 32},
		{Name: "s", Type: uintType("short unsigned int", 2), ByteOffset: 40},
	}
	return st
}

func TestAggregate(t *testing.T) {
	imp := NewImporter()
	st := nodeType()
	agg, err := imp.Aggregate(st)
	require.NoError(t, err)
	assert.Equal(t, "struct node", agg.String())

	var types []string
	for _, f := range agg.Fields {
		types = append(types, f.Type.String())
	}
	assert.Equal(t, []string{"int", "long", "struct node *", "char[4]", "double", "unsigned short"}, types)

	again, err := imp.Aggregate(st)
	require.NoError(t, err)
	assert.Same(t, agg, again)
}

func TestCompareAgainstCompiler(t *testing.T) {
	imp := NewImporter()
	agg, err := imp.Aggregate(nodeType())
	require.NoError(t, err)
	require.NoError(t, layout.New(0, 8).Layout(agg))

	ev, err := report.NewEvaluator(0)
	require.NoError(t, err)
	got, err := ev.Evaluate(agg, machdesc.LP64Unix.Description())
	require.NoError(t, err)

	// Offsets agree; the size differs by the trailing padding the engine
	// does not add.
	mismatches := imp.records[agg].Compare(got)
	require.Len(t, mismatches, 1)
	assert.Equal(t, Mismatch{Aggregate: "struct node", Computed: 42, Compiler: 48}, mismatches[0])
	assert.Equal(t, "struct node: size 42, compiler 48", mismatches[0].String())
}

func TestCompareReportsFieldOffsets(t *testing.T) {
	rec := &Record{Aggregate: ctypes.NewStruct("s"), Size: 8, Offsets: []int64{0, 4}}
	got := &report.Aggregate{Size: 8, Fields: []report.Field{{Name: "a", Offset: 0}, {Name: "b", Offset: 2}}}
	mm := rec.Compare(got)
	require.Len(t, mm, 1)
	assert.Equal(t, "struct s.b: offset 2, compiler 4", mm[0].String())
}

func TestConvert(t *testing.T) {
	imp := NewImporter()
	tests := []struct {
		name string
		in   dwarf.Type
		want ctypes.Type
	}{
		{"int", intType("int", 4), ctypes.Int()},
		{"long long", intType("long long int", 8), ctypes.LongLong()},
		{"unsigned long", uintType("long unsigned int", 8), ctypes.Tlong{Sign: ctypes.Unsigned}},
		{"int8", intType("signed char", 1), ctypes.Char()},
		{"float", floatType("float", 4), ctypes.Float()},
		{"long double", floatType("long double", 16), ctypes.LongDouble()},
		{"bool", &dwarf.BoolType{}, ctypes.Bool()},
		{"enum", &dwarf.EnumType{EnumName: "color"}, ctypes.Tenum{Name: "color"}},
		{"typedef", &dwarf.TypedefType{Type: intType("int", 4)}, ctypes.Int()},
		{"const", &dwarf.QualType{Qual: "const", Type: uintType("unsigned int", 4)}, ctypes.UInt()},
		{"void pointer", &dwarf.PtrType{Type: &dwarf.VoidType{}}, ctypes.Pointer(ctypes.Void())},
		{"function pointer", &dwarf.PtrType{Type: &dwarf.FuncType{}}, ctypes.Pointer(nil)},
		{"double pointer", &dwarf.PtrType{Type: &dwarf.PtrType{Type: intType("int", 4)}}, ctypes.Pointer(ctypes.Pointer(ctypes.Int()))},
		{"incomplete array", &dwarf.ArrayType{Type: intType("int", 4), Count: -1}, ctypes.Array(ctypes.Int(), -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := imp.Convert(tt.in)
			require.NoError(t, err)
			assert.True(t, ctypes.Equal(got, tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestConvertUnsupported(t *testing.T) {
	imp := NewImporter()
	for _, in := range []dwarf.Type{&dwarf.FuncType{}, intType("__int128", 16), floatType("_Float16", 2)} {
		_, err := imp.Convert(in)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	}
}

func TestAggregateRejects(t *testing.T) {
	imp := NewImporter()

	bits := &dwarf.StructType{StructName: "flags", Kind: "struct", Field: []*dwarf.StructField{
		{Name: "on", Type: uintType("unsigned int", 4), BitSize: 1},
	}}
	_, err := imp.Aggregate(bits)
	assert.ErrorIs(t, err, ErrBitField)

	_, err = imp.Aggregate(&dwarf.StructType{StructName: "fwd", Kind: "struct", Incomplete: true})
	assert.ErrorIs(t, err, ErrIncomplete)

	fn := &dwarf.StructType{StructName: "bad", Kind: "union", Field: []*dwarf.StructField{
		{Name: "f", Type: &dwarf.FuncType{}},
	}}
	_, err = imp.Aggregate(fn)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, imp.aggs, "failed aggregates are not memoized")
}

func TestOpaquePointersAreShared(t *testing.T) {
	imp := NewImporter()
	target := &dwarf.StructType{StructName: "opaque", Kind: "struct", Incomplete: true}
	a, err := imp.Convert(&dwarf.PtrType{Type: target})
	require.NoError(t, err)
	b, err := imp.Convert(&dwarf.PtrType{Type: &dwarf.TypedefType{Type: target}})
	require.NoError(t, err)
	assert.Same(t, a.(ctypes.Tpointer).Elem, b.(ctypes.Tpointer).Elem)
}

func TestOpenUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a binary"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestOpenTestBinary(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("test binary is neither ELF nor Mach-O")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	b, err := Open(exe)
	require.NoError(t, err)
	_, arch := platform.Host()
	assert.Equal(t, arch, b.CPU)
	assert.Equal(t, !cpu.IsBigEndian, b.LittleEndian)
}

func TestDWARFWithoutInfo(t *testing.T) {
	b := &Binary{Path: "stripped", sections: map[string][]byte{}}
	_, err := b.DWARF()
	assert.ErrorIs(t, err, ErrNoDebugInfo)
}
