// Package sizeexpr implements symbolic size and offset expressions.
// An expression is built once by the layout engine and evaluated later
// against any number of concrete machine descriptions.
package sizeexpr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Var names a platform-dependent primitive size.
type Var int

const (
	Int Var = iota
	Long
	Float
	Double
	LongDouble
	Pointer
)

// AllVars lists every variable in declaration order.
var AllVars = []Var{Int, Long, Float, Double, LongDouble, Pointer}

func (v Var) String() string {
	names := []string{"int", "long", "float", "double", "long double", "pointer"}
	if int(v) >= 0 && int(v) < len(names) {
		return names[v]
	}
	return "?"
}

var (
	// ErrZeroAlignment is returned when a RoundUp alignment evaluates to 0.
	ErrZeroAlignment = errors.New("sizeexpr: zero alignment")
	// ErrUnboundVariable is returned when a binding has no value for a variable.
	ErrUnboundVariable = errors.New("sizeexpr: unbound variable")
	// ErrOverflow is returned when a size does not fit in an int64.
	ErrOverflow = errors.New("sizeexpr: size overflows int64")
)

// Binding supplies concrete byte sizes for variables.
type Binding interface {
	Lookup(v Var) (int64, bool)
}

// Bindings is a map-backed Binding.
type Bindings map[Var]int64

// Lookup implements Binding.
func (b Bindings) Lookup(v Var) (int64, bool) {
	n, ok := b[v]
	return n, ok
}

// Expr is an immutable size expression.
type Expr interface {
	implExpr()
	String() string
}

// Const is a literal byte count.
type Const struct {
	N int64
}

// Ref references the size of a primitive.
type Ref struct {
	V Var
}

// Sum is a + b.
type Sum struct {
	A, B Expr
}

// Greatest is max(a, b).
type Greatest struct {
	A, B Expr
}

// Aligned is value rounded up to a multiple of alignment.
type Aligned struct {
	Value, Alignment Expr
}

// Scaled is e * n.
type Scaled struct {
	E Expr
	N int64
}

func (Const) implExpr()    {}
func (Ref) implExpr()      {}
func (Sum) implExpr()      {}
func (Greatest) implExpr() {}
func (Aligned) implExpr()  {}
func (Scaled) implExpr()   {}

func (c Const) String() string    { return strconv.FormatInt(c.N, 10) }
func (r Ref) String() string      { return "sizeof(" + r.V.String() + ")" }
func (s Sum) String() string      { return "add(" + s.A.String() + ", " + s.B.String() + ")" }
func (g Greatest) String() string { return "max(" + g.A.String() + ", " + g.B.String() + ")" }
func (a Aligned) String() string {
	return "roundup(" + a.Value.String() + ", " + a.Alignment.String() + ")"
}
func (s Scaled) String() string { return "mul(" + s.E.String() + ", " + strconv.FormatInt(s.N, 10) + ")" }

// Constant wraps a non-negative literal.
func Constant(n int64) Expr {
	if n < 0 {
		panic(fmt.Sprintf("sizeexpr: negative constant %d", n))
	}
	return Const{N: n}
}

// Variable references a not-yet-known platform size.
func Variable(v Var) Expr {
	return Ref{V: v}
}

// Add returns a + b, folding constants. A sum that would overflow is left
// unfolded so evaluation reports ErrOverflow.
func Add(a, b Expr) Expr {
	ca, aok := a.(Const)
	cb, bok := b.(Const)
	if aok && bok {
		if n, ok := addInt(ca.N, cb.N); ok {
			return Const{N: n}
		}
		return Sum{A: a, B: b}
	}
	switch {
	case aok && ca.N == 0:
		return b
	case bok && cb.N == 0:
		return a
	}
	return Sum{A: a, B: b}
}

// Max returns max(a, b), folding constants. Sizes are never negative, so a
// constant 0 operand is dropped.
func Max(a, b Expr) Expr {
	ca, aok := a.(Const)
	cb, bok := b.(Const)
	switch {
	case aok && bok:
		return Const{N: max(ca.N, cb.N)}
	case aok && ca.N == 0:
		return b
	case bok && cb.N == 0:
		return a
	}
	if Equal(a, b) {
		return a
	}
	return Greatest{A: a, B: b}
}

// RoundUp returns value rounded up to a multiple of alignment. A constant
// zero alignment is left unfolded so evaluation reports ErrZeroAlignment.
func RoundUp(value, alignment Expr) Expr {
	cv, vok := value.(Const)
	ca, aok := alignment.(Const)
	switch {
	case aok && ca.N == 1:
		return value
	case vok && aok && ca.N != 0:
		if n, ok := alignUp(cv.N, ca.N); ok {
			return Const{N: n}
		}
	}
	return Aligned{Value: value, Alignment: alignment}
}

// Mul returns e * n for a non-negative constant n. A product that would
// overflow is left unfolded so evaluation reports ErrOverflow.
func Mul(e Expr, n int64) Expr {
	if n < 0 {
		panic(fmt.Sprintf("sizeexpr: negative multiplier %d", n))
	}
	switch {
	case n == 0:
		return Const{N: 0}
	case n == 1:
		return e
	}
	if c, ok := e.(Const); ok {
		if p, ok := mulInt(c.N, n); ok {
			return Const{N: p}
		}
	}
	return Scaled{E: e, N: n}
}

// Evaluate reduces e to a concrete byte count using b.
func Evaluate(e Expr, b Binding) (int64, error) {
	switch e := e.(type) {
	case Const:
		return e.N, nil
	case Ref:
		n, ok := b.Lookup(e.V)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnboundVariable, e.V)
		}
		return n, nil
	case Sum:
		a, err := Evaluate(e.A, b)
		if err != nil {
			return 0, err
		}
		c, err := Evaluate(e.B, b)
		if err != nil {
			return 0, err
		}
		sum, ok := addInt(a, c)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrOverflow, e)
		}
		return sum, nil
	case Greatest:
		a, err := Evaluate(e.A, b)
		if err != nil {
			return 0, err
		}
		c, err := Evaluate(e.B, b)
		if err != nil {
			return 0, err
		}
		return max(a, c), nil
	case Aligned:
		v, err := Evaluate(e.Value, b)
		if err != nil {
			return 0, err
		}
		a, err := Evaluate(e.Alignment, b)
		if err != nil {
			return 0, err
		}
		if a == 0 {
			return 0, fmt.Errorf("%w: %s", ErrZeroAlignment, e)
		}
		n, ok := alignUp(v, a)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrOverflow, e)
		}
		return n, nil
	case Scaled:
		v, err := Evaluate(e.E, b)
		if err != nil {
			return 0, err
		}
		p, ok := mulInt(v, e.N)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrOverflow, e)
		}
		return p, nil
	case nil:
		return 0, errors.New("sizeexpr: nil expression")
	}
	return 0, fmt.Errorf("sizeexpr: unknown expression %T", e)
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	switch ta := a.(type) {
	case Const:
		tb, ok := b.(Const)
		return ok && ta.N == tb.N
	case Ref:
		tb, ok := b.(Ref)
		return ok && ta.V == tb.V
	case Sum:
		tb, ok := b.(Sum)
		return ok && Equal(ta.A, tb.A) && Equal(ta.B, tb.B)
	case Greatest:
		tb, ok := b.(Greatest)
		return ok && Equal(ta.A, tb.A) && Equal(ta.B, tb.B)
	case Aligned:
		tb, ok := b.(Aligned)
		return ok && Equal(ta.Value, tb.Value) && Equal(ta.Alignment, tb.Alignment)
	case Scaled:
		tb, ok := b.(Scaled)
		return ok && ta.N == tb.N && Equal(ta.E, tb.E)
	case nil:
		return b == nil
	}
	return false
}

// Vars returns the distinct variables referenced by e in first-use order.
func Vars(e Expr) []Var {
	var out []Var
	seen := make(map[Var]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case Ref:
			if !seen[e.V] {
				seen[e.V] = true
				out = append(out, e.V)
			}
		case Sum:
			walk(e.A)
			walk(e.B)
		case Greatest:
			walk(e.A)
			walk(e.B)
		case Aligned:
			walk(e.Value)
			walk(e.Alignment)
		case Scaled:
			walk(e.E)
		}
	}
	walk(e)
	return out
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int64) (int64, bool) {
	end, ok := addInt(n, align-1)
	if !ok {
		return 0, false
	}
	return (end / align) * align, true
}

func addInt(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// mulInt multiplies by a non-negative n.
func mulInt(a, n int64) (int64, bool) {
	if a == 0 || n == 0 {
		return 0, true
	}
	p := a * n
	if p/n != a {
		return 0, false
	}
	return p, true
}
