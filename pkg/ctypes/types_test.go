package ctypes

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-layout/pkg/sizeexpr"
)

func TestTypeConstructors(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		wantStr string
	}{
		{"void", Void(), "void"},
		{"int", Int(), "int"},
		{"unsigned int", UInt(), "unsigned int"},
		{"char", Char(), "char"},
		{"unsigned char", UChar(), "unsigned char"},
		{"short", Short(), "short"},
		{"long long", LongLong(), "long long"},
		{"bool", Bool(), "_Bool"},
		{"long", Long(), "long"},
		{"float", Float(), "float"},
		{"double", Double(), "double"},
		{"long double", LongDouble(), "long double"},
		{"pointer to int", Pointer(Int()), "int *"},
		{"pointer to void", Pointer(nil), "void *"},
		{"array of int", Array(Int(), 10), "int[10]"},
		{"incomplete array", Array(Char(), -1), "char[]"},
		{"struct", NewStruct("point"), "struct point"},
		{"anonymous union", NewUnion(""), "union <anonymous>"},
		{"enum", Tenum{Name: "color"}, "enum color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestTypeEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Type
		equal bool
	}{
		{"int == int", Int(), Int(), true},
		{"int != unsigned int", Int(), UInt(), false},
		{"int != long", Int(), Long(), false},
		{"void == void", Void(), Void(), true},
		{"pointer to int == pointer to int", Pointer(Int()), Pointer(Int()), true},
		{"pointer to int != pointer to char", Pointer(Int()), Pointer(Char()), false},
		{"array[10] of int == array[10] of int", Array(Int(), 10), Array(Int(), 10), true},
		{"array[10] of int != array[20] of int", Array(Int(), 10), Array(Int(), 20), false},
		{"struct A == struct A", NewStruct("A"), NewStruct("A"), true},
		{"struct A != struct B", NewStruct("A"), NewStruct("B"), false},
		{"struct A != union A", NewStruct("A"), NewUnion("A"), false},
		{"nil == nil", nil, nil, true},
		{"nil != int", nil, Int(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.equal {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestFunctionTypeEquality(t *testing.T) {
	fn1 := Tfunction{Params: []Type{Int(), Int()}, Return: Int()}
	fn2 := Tfunction{Params: []Type{Int(), Int()}, Return: Int()}
	fn3 := Tfunction{Params: []Type{Int()}, Return: Int()}
	fn4 := Tfunction{Params: []Type{Int(), Int()}, Return: Void()}

	if !Equal(fn1, fn2) {
		t.Error("identical function types should be equal")
	}
	if Equal(fn1, fn3) {
		t.Error("functions with different param counts should not be equal")
	}
	if Equal(fn1, fn4) {
		t.Error("functions with different return types should not be equal")
	}
}

func TestSizeOf(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want sizeexpr.Expr
	}{
		{"char", Char(), sizeexpr.Constant(1)},
		{"bool", Bool(), sizeexpr.Constant(1)},
		{"short", Short(), sizeexpr.Constant(2)},
		{"int", Int(), sizeexpr.Variable(sizeexpr.Int)},
		{"long long", LongLong(), sizeexpr.Constant(8)},
		{"long", Long(), sizeexpr.Variable(sizeexpr.Long)},
		{"float", Float(), sizeexpr.Variable(sizeexpr.Float)},
		{"double", Double(), sizeexpr.Variable(sizeexpr.Double)},
		{"long double", LongDouble(), sizeexpr.Variable(sizeexpr.LongDouble)},
		{"pointer", Pointer(Char()), sizeexpr.Variable(sizeexpr.Pointer)},
		{"enum", Tenum{}, sizeexpr.Variable(sizeexpr.Int)},
		{"char array", Array(Char(), 16), sizeexpr.Constant(16)},
		{"pointer array", Array(Pointer(nil), 3), sizeexpr.Mul(sizeexpr.Variable(sizeexpr.Pointer), 3)},
		{"2d array", Array(Array(Int(), 2), 3), sizeexpr.Mul(sizeexpr.Mul(sizeexpr.Variable(sizeexpr.Int), 2), 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SizeOf(tt.typ)
			if !ok {
				t.Fatalf("SizeOf(%s) reported no size", tt.typ)
			}
			if !sizeexpr.Equal(got, tt.want) {
				t.Errorf("SizeOf(%s) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestSizeOfUnsized(t *testing.T) {
	for _, typ := range []Type{Void(), Tfunction{}, Array(Int(), -1), NewStruct("s"), Array(NewStruct("e"), 2)} {
		if _, ok := SizeOf(typ); ok {
			t.Errorf("SizeOf(%s) should report no size", typ)
		}
	}
}

func TestArraySizeFollowsElementLayout(t *testing.T) {
	elem := NewStruct("elem", NewField("x", Int()))
	arr := Array(elem, 4)
	if _, ok := SizeOf(arr); ok {
		t.Fatal("array of unlaid-out struct should have no size")
	}
	if err := elem.SetSize(sizeexpr.Constant(12), 8); err != nil {
		t.Fatal(err)
	}
	got, ok := SizeOf(arr)
	if !ok || !sizeexpr.Equal(got, sizeexpr.Constant(48)) {
		t.Errorf("SizeOf(arr) = %v, %v, want 48", got, ok)
	}
}

func TestSetOnce(t *testing.T) {
	f := NewField("a", Int())
	if _, ok := f.Offset(); ok {
		t.Fatal("new field should have no offset")
	}
	if err := f.SetOffset(sizeexpr.Constant(0)); err != nil {
		t.Fatal(err)
	}
	if err := f.SetOffset(sizeexpr.Constant(4)); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("second SetOffset: got %v, want ErrAlreadySet", err)
	}
	off, _ := f.Offset()
	if !sizeexpr.Equal(off, sizeexpr.Constant(0)) {
		t.Errorf("offset overwritten: %s", off)
	}

	s := NewStruct("s", f)
	if s.LaidOut() {
		t.Fatal("new struct should not be laid out")
	}
	if err := s.SetSize(sizeexpr.Constant(4), 8); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSize(sizeexpr.Constant(8), 4); !errors.Is(err, ErrAlreadySet) {
		t.Errorf("second SetSize: got %v, want ErrAlreadySet", err)
	}
	if s.StructAlignment() != 8 {
		t.Errorf("StructAlignment() = %d, want 8", s.StructAlignment())
	}
}

func TestBaseElement(t *testing.T) {
	inner := NewStruct("inner")
	arr := Array(Array(inner, 2), 3)
	if BaseElement(arr) != Type(inner) {
		t.Errorf("BaseElement() = %v, want %v", BaseElement(arr), inner)
	}
}

func TestIsScalar(t *testing.T) {
	for _, typ := range []Type{Int(), Long(), Double(), Pointer(nil), Tenum{}} {
		if !IsScalar(typ) {
			t.Errorf("IsScalar(%s) = false", typ)
		}
	}
	for _, typ := range []Type{Void(), Tfunction{}, Array(Int(), 1), NewUnion("u")} {
		if IsScalar(typ) {
			t.Errorf("IsScalar(%s) = true", typ)
		}
	}
}

func TestSignednessString(t *testing.T) {
	if Signed.String() != "signed" {
		t.Errorf("Signed.String() = %q, want %q", Signed.String(), "signed")
	}
	if Unsigned.String() != "unsigned" {
		t.Errorf("Unsigned.String() = %q, want %q", Unsigned.String(), "unsigned")
	}
}

func TestIntSizeString(t *testing.T) {
	tests := []struct {
		size IntSize
		want string
	}{
		{I8, "i8"},
		{I16, "i16"},
		{I32, "i32"},
		{I64, "i64"},
		{IBool, "ibool"},
	}
	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestFloatSizeString(t *testing.T) {
	if F32.String() != "f32" {
		t.Errorf("F32.String() = %q, want %q", F32.String(), "f32")
	}
	if F64.String() != "f64" {
		t.Errorf("F64.String() = %q, want %q", F64.String(), "f64")
	}
	if F128.String() != "f128" {
		t.Errorf("F128.String() = %q, want %q", F128.String(), "f128")
	}
}
