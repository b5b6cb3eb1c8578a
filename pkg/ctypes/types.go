// Package ctypes defines the C type tree consumed by the layout engine.
// Scalar and pointer sizes are symbolic so one layout serves every target.
package ctypes

import (
	"errors"
	"strconv"

	"github.com/raymyers/ralph-layout/pkg/sizeexpr"
)

// Type is the interface for all C types
type Type interface {
	implType()
	String() string
}

// Signedness represents signed/unsigned for integer types
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntSize represents the size of integer types.
// I32 is the C int, whose width is platform dependent.
type IntSize int

const (
	I8 IntSize = iota
	I16
	I32
	I64
	IBool
)

func (s IntSize) String() string {
	names := []string{"i8", "i16", "i32", "i64", "ibool"}
	if int(s) < len(names) {
		return names[s]
	}
	return "?"
}

// FloatSize represents the size of floating-point types
type FloatSize int

const (
	F32 FloatSize = iota
	F64
	F128 // long double
)

func (s FloatSize) String() string {
	switch s {
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "f128"
}

// AggregateKind distinguishes structs from unions.
type AggregateKind int

const (
	Struct AggregateKind = iota
	Union
)

func (k AggregateKind) String() string {
	if k == Union {
		return "union"
	}
	return "struct"
}

// ErrAlreadySet is returned when a set-once layout value is written twice.
var ErrAlreadySet = errors.New("ctypes: layout value already set")

// Tvoid represents the void type
type Tvoid struct{}

// Tint represents integer types (char, short, int, long long, _Bool)
type Tint struct {
	Size IntSize
	Sign Signedness
}

// Tlong represents the C long type, 4 or 8 bytes depending on the target
type Tlong struct {
	Sign Signedness
}

// Tfloat represents floating-point types (float, double, long double)
type Tfloat struct {
	Size FloatSize
}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
}

// Tenum represents an enumeration; it has the size of int
type Tenum struct {
	Name string
}

// Tfunction represents function types
type Tfunction struct {
	Params []Type
	Return Type
	VarArg bool
}

// Tarray represents array types
type Tarray struct {
	Elem Type
	Len  int64 // -1 for incomplete array
}

// Field represents a struct or union field.
// Offset is written once, by the layout engine.
type Field struct {
	Name string
	Type Type

	offset sizeexpr.Expr
}

// Aggregate represents a struct or union declaration.
// Size is written once, by the layout engine.
type Aggregate struct {
	Kind   AggregateKind
	Name   string
	Fields []*Field

	size      sizeexpr.Expr
	alignment int64
}

// Marker methods for Type interface
func (Tvoid) implType()      {}
func (Tint) implType()       {}
func (Tlong) implType()      {}
func (Tfloat) implType()     {}
func (Tpointer) implType()   {}
func (Tenum) implType()      {}
func (Tfunction) implType()  {}
func (*Tarray) implType()    {}
func (*Aggregate) implType() {}

// String methods for types
func (Tvoid) String() string { return "void" }

func (t Tint) String() string {
	sign := ""
	if t.Sign == Unsigned {
		sign = "unsigned "
	}
	switch t.Size {
	case I8:
		return sign + "char"
	case I16:
		return sign + "short"
	case I32:
		return sign + "int"
	case I64:
		return sign + "long long"
	case IBool:
		return "_Bool"
	}
	return sign + "int"
}

func (t Tlong) String() string {
	if t.Sign == Unsigned {
		return "unsigned long"
	}
	return "long"
}

func (t Tfloat) String() string {
	switch t.Size {
	case F32:
		return "float"
	case F64:
		return "double"
	}
	return "long double"
}

func (t Tpointer) String() string {
	if t.Elem == nil {
		return "void *"
	}
	return t.Elem.String() + " *"
}

func (t Tenum) String() string {
	if t.Name == "" {
		return "enum <anonymous>"
	}
	return "enum " + t.Name
}

func (t Tfunction) String() string {
	return "function"
}

func (t *Tarray) String() string {
	if t.Elem == nil {
		return "?[]"
	}
	if t.Len < 0 {
		return t.Elem.String() + "[]"
	}
	return t.Elem.String() + "[" + strconv.FormatInt(t.Len, 10) + "]"
}

func (t *Aggregate) String() string {
	if t.Name == "" {
		return t.Kind.String() + " <anonymous>"
	}
	return t.Kind.String() + " " + t.Name
}

// Common type constructors

// Int returns a signed int type
func Int() Type {
	return Tint{Size: I32, Sign: Signed}
}

// UInt returns an unsigned int type
func UInt() Type {
	return Tint{Size: I32, Sign: Unsigned}
}

// Char returns a signed char type
func Char() Type {
	return Tint{Size: I8, Sign: Signed}
}

// UChar returns an unsigned char type
func UChar() Type {
	return Tint{Size: I8, Sign: Unsigned}
}

// Short returns a signed short type
func Short() Type {
	return Tint{Size: I16, Sign: Signed}
}

// LongLong returns a signed long long type
func LongLong() Type {
	return Tint{Size: I64, Sign: Signed}
}

// Bool returns the _Bool type
func Bool() Type {
	return Tint{Size: IBool, Sign: Unsigned}
}

// Long returns a signed long type
func Long() Type {
	return Tlong{Sign: Signed}
}

// Float returns a float type
func Float() Type {
	return Tfloat{Size: F32}
}

// Double returns a double type
func Double() Type {
	return Tfloat{Size: F64}
}

// LongDouble returns a long double type
func LongDouble() Type {
	return Tfloat{Size: F128}
}

// Void returns the void type
func Void() Type {
	return Tvoid{}
}

// Pointer returns a pointer to the given type
func Pointer(elem Type) Type {
	return Tpointer{Elem: elem}
}

// Array returns an array type
func Array(elem Type, n int64) *Tarray {
	return &Tarray{Elem: elem, Len: n}
}

// NewField returns a field with no offset assigned.
func NewField(name string, t Type) *Field {
	return &Field{Name: name, Type: t}
}

// NewStruct returns an unlaid-out struct.
func NewStruct(name string, fields ...*Field) *Aggregate {
	return &Aggregate{Kind: Struct, Name: name, Fields: fields}
}

// NewUnion returns an unlaid-out union.
func NewUnion(name string, fields ...*Field) *Aggregate {
	return &Aggregate{Kind: Union, Name: name, Fields: fields}
}

// Offset returns the field offset, if the field has been laid out.
func (f *Field) Offset() (sizeexpr.Expr, bool) {
	return f.offset, f.offset != nil
}

// SetOffset records the field offset. It may be called once.
func (f *Field) SetOffset(e sizeexpr.Expr) error {
	if f.offset != nil {
		return ErrAlreadySet
	}
	f.offset = e
	return nil
}

// IsUnion reports whether t is a union.
func (t *Aggregate) IsUnion() bool {
	return t.Kind == Union
}

// Size returns the aggregate size, if it has been laid out.
func (t *Aggregate) Size() (sizeexpr.Expr, bool) {
	return t.size, t.size != nil
}

// StructAlignment returns the alignment t was laid out with, or 0.
func (t *Aggregate) StructAlignment() int64 {
	return t.alignment
}

// LaidOut reports whether the layout engine has assigned t a size.
func (t *Aggregate) LaidOut() bool {
	return t.size != nil
}

// SetSize records the aggregate size and the struct alignment used to compute
// it. It may be called once.
func (t *Aggregate) SetSize(e sizeexpr.Expr, structAlignment int64) error {
	if t.size != nil {
		return ErrAlreadySet
	}
	t.size = e
	t.alignment = structAlignment
	return nil
}

// SizeOf returns the symbolic size of t. It reports false for types without
// a size: void, functions, incomplete arrays and aggregates not laid out yet.
func SizeOf(t Type) (sizeexpr.Expr, bool) {
	switch t := t.(type) {
	case Tint:
		switch t.Size {
		case I8, IBool:
			return sizeexpr.Constant(1), true
		case I16:
			return sizeexpr.Constant(2), true
		case I64:
			return sizeexpr.Constant(8), true
		}
		return sizeexpr.Variable(sizeexpr.Int), true
	case Tlong:
		return sizeexpr.Variable(sizeexpr.Long), true
	case Tfloat:
		switch t.Size {
		case F32:
			return sizeexpr.Variable(sizeexpr.Float), true
		case F64:
			return sizeexpr.Variable(sizeexpr.Double), true
		}
		return sizeexpr.Variable(sizeexpr.LongDouble), true
	case Tpointer:
		return sizeexpr.Variable(sizeexpr.Pointer), true
	case Tenum:
		return sizeexpr.Variable(sizeexpr.Int), true
	case *Tarray:
		if t.Len < 0 {
			return nil, false
		}
		elem, ok := SizeOf(t.Elem)
		if !ok {
			return nil, false
		}
		return sizeexpr.Mul(elem, t.Len), true
	case *Aggregate:
		return t.Size()
	}
	return nil, false
}

// IsScalar reports whether t is an integer, enum, floating-point or pointer type.
func IsScalar(t Type) bool {
	switch t.(type) {
	case Tint, Tlong, Tfloat, Tpointer, Tenum:
		return true
	}
	return false
}

// BaseElement returns the innermost element type of a (possibly nested) array.
func BaseElement(t *Tarray) Type {
	var elem Type = t
	for {
		a, ok := elem.(*Tarray)
		if !ok {
			return elem
		}
		elem = a.Elem
	}
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Size == tb.Size && ta.Sign == tb.Sign
	case Tlong:
		tb, ok := b.(Tlong)
		return ok && ta.Sign == tb.Sign
	case Tfloat:
		tb, ok := b.(Tfloat)
		return ok && ta.Size == tb.Size
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tenum:
		tb, ok := b.(Tenum)
		return ok && ta.Name == tb.Name
	case *Tarray:
		tb, ok := b.(*Tarray)
		return ok && ta.Len == tb.Len && Equal(ta.Elem, tb.Elem)
	case *Aggregate:
		tb, ok := b.(*Aggregate)
		return ok && ta.Kind == tb.Kind && ta.Name == tb.Name
	case Tfunction:
		tb, ok := b.(Tfunction)
		if !ok || ta.VarArg != tb.VarArg || len(ta.Params) != len(tb.Params) {
			return false
		}
		if !Equal(ta.Return, tb.Return) {
			return false
		}
		for i, p := range ta.Params {
			if !Equal(p, tb.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}
