// Package layout assigns symbolic offsets to the fields of C structs and
// unions and computes their symbolic sizes.
//
// Only field placement is aligned: a struct's size is the end of its last
// field, with no trailing padding to the struct's own alignment. Aggregates
// and arrays embedded in an aggregate are aligned to the platform's struct
// alignment rather than to their own natural alignment.
package layout

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
	"github.com/raymyers/ralph-layout/pkg/platform"
	"github.com/raymyers/ralph-layout/pkg/sizeexpr"
)

var (
	// ErrUnsupportedFieldType is matched by every UnsupportedFieldTypeError.
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	// ErrAlreadyLaidOut is returned when an aggregate is laid out twice.
	ErrAlreadyLaidOut = errors.New("aggregate already laid out")
	// ErrAlignmentMismatch is returned when a nested aggregate was laid out
	// earlier with a different struct alignment.
	ErrAlignmentMismatch = errors.New("nested aggregate laid out with a different struct alignment")
	// ErrInvalidAlignment is returned for a non-positive struct alignment.
	ErrInvalidAlignment = errors.New("struct alignment must be positive")
	// ErrRecursiveAggregate is returned when an aggregate contains itself by value.
	ErrRecursiveAggregate = errors.New("aggregate contains itself")
)

// UnsupportedFieldTypeError names a field whose type the engine cannot place.
type UnsupportedFieldTypeError struct {
	Field     string
	Type      string
	Enclosing string
}

func (e *UnsupportedFieldTypeError) Error() string {
	return fmt.Sprintf("unsupported field type %s for field %q in %s", e.Type, e.Field, e.Enclosing)
}

// Is reports whether target is ErrUnsupportedFieldType.
func (e *UnsupportedFieldTypeError) Is(target error) bool {
	return target == ErrUnsupportedFieldType
}

// Layout lays out aggregates for one struct alignment rule.
type Layout struct {
	baseOffset      int64
	structAlignment int64
	log             *zap.Logger
}

// Option configures a Layout.
type Option func(*Layout)

// WithLogger sets the logger used for field placement traces.
func WithLogger(l *zap.Logger) Option {
	return func(lay *Layout) {
		lay.log = l
	}
}

// New returns a Layout starting fields at baseOffset and aligning embedded
// aggregates and arrays to structAlignment.
func New(baseOffset, structAlignment int64, opts ...Option) *Layout {
	l := &Layout{
		baseOffset:      baseOffset,
		structAlignment: structAlignment,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = Logger()
	}
	return l
}

// ForPlatform returns a Layout with base offset 0 and the struct alignment
// selected for the given OS and CPU.
func ForPlatform(o platform.OSType, a platform.CPUArch, opts ...Option) (*Layout, error) {
	align, err := platform.StructAlignment(o, a)
	if err != nil {
		return nil, err
	}
	return New(0, align, opts...), nil
}

// ForCurrentPlatform returns a Layout for the running host.
func ForCurrentPlatform(opts ...Option) (*Layout, error) {
	o, a := platform.Host()
	return ForPlatform(o, a, opts...)
}

// StructAlignment returns the alignment applied to embedded aggregates.
func (l *Layout) StructAlignment() int64 {
	return l.structAlignment
}

// Layout assigns an offset to every field of t, recursively laying out nested
// aggregates, and sets t's size. Offsets and size are written only when every
// field could be placed, so a failed layout leaves t untouched and a retry
// reports the same error.
func (l *Layout) Layout(t *ctypes.Aggregate) error {
	if l.structAlignment <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, l.structAlignment)
	}
	if t.LaidOut() {
		return fmt.Errorf("%w: %s", ErrAlreadyLaidOut, t)
	}
	return l.layout(t, l.baseOffset, make(map[*ctypes.Aggregate]bool))
}

// LayoutAll lays out each aggregate in order. Aggregates already laid out as
// members of an earlier one are skipped.
func (l *Layout) LayoutAll(ts []*ctypes.Aggregate) error {
	for _, t := range ts {
		if t.LaidOut() {
			if err := l.checkNested(t); err != nil {
				return err
			}
			continue
		}
		if err := l.Layout(t); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) layout(t *ctypes.Aggregate, baseOffset int64, active map[*ctypes.Aggregate]bool) error {
	active[t] = true
	defer delete(active, t)

	structAlign := sizeexpr.Constant(l.structAlignment)
	curOffset := sizeexpr.Constant(baseOffset)
	maxSize := sizeexpr.Constant(0)
	offsets := make([]sizeexpr.Expr, len(t.Fields))

	for i, f := range t.Fields {
		switch ft := f.Type.(type) {
		case ctypes.Tint, ctypes.Tlong, ctypes.Tfloat, ctypes.Tpointer, ctypes.Tenum:
			sz, _ := ctypes.SizeOf(ft)
			curOffset = sizeexpr.RoundUp(curOffset, sz)
			offsets[i] = curOffset
			if t.IsUnion() {
				maxSize = sizeexpr.Max(maxSize, sz)
			} else {
				curOffset = sizeexpr.Add(curOffset, sz)
			}

		case *ctypes.Aggregate:
			if err := l.nested(ft, active); err != nil {
				return err
			}
			sz, _ := ft.Size()
			curOffset = sizeexpr.RoundUp(curOffset, structAlign)
			offsets[i] = curOffset
			if t.IsUnion() {
				maxSize = sizeexpr.Max(maxSize, sz)
			} else {
				curOffset = sizeexpr.Add(curOffset, sz)
			}

		case *ctypes.Tarray:
			if elem, ok := ctypes.BaseElement(ft).(*ctypes.Aggregate); ok {
				if err := l.nested(elem, active); err != nil {
					return err
				}
			}
			sz, ok := ctypes.SizeOf(ft)
			if !ok {
				return unsupported(t, f)
			}
			curOffset = sizeexpr.RoundUp(curOffset, structAlign)
			offsets[i] = curOffset
			// Arrays advance the offset even inside a union.
			curOffset = sizeexpr.Add(curOffset, sz)

		default:
			return unsupported(t, f)
		}
	}

	size := curOffset
	if t.IsUnion() {
		size = maxSize
	}
	return l.commit(t, offsets, size)
}

// commit records the computed offsets and size on t.
func (l *Layout) commit(t *ctypes.Aggregate, offsets []sizeexpr.Expr, size sizeexpr.Expr) error {
	if t.LaidOut() {
		return fmt.Errorf("%w: %s", ErrAlreadyLaidOut, t)
	}
	for _, f := range t.Fields {
		if _, ok := f.Offset(); ok {
			return fmt.Errorf("%w: field %q of %s", ErrAlreadyLaidOut, f.Name, t)
		}
	}
	for i, f := range t.Fields {
		_ = f.SetOffset(offsets[i])
		l.log.Debug("placed field",
			zap.Stringer("type", t),
			zap.String("field", f.Name),
			zap.Stringer("offset", offsets[i]))
	}
	_ = t.SetSize(size, l.structAlignment)
	l.log.Debug("laid out aggregate",
		zap.Stringer("type", t),
		zap.Stringer("size", size),
		zap.Int64("structAlignment", l.structAlignment))
	return nil
}

// nested lays out an embedded aggregate from offset 0, or reuses an earlier
// layout computed with the same struct alignment.
func (l *Layout) nested(t *ctypes.Aggregate, active map[*ctypes.Aggregate]bool) error {
	if active[t] {
		return fmt.Errorf("%w: %s", ErrRecursiveAggregate, t)
	}
	if t.LaidOut() {
		return l.checkNested(t)
	}
	return l.layout(t, 0, active)
}

func (l *Layout) checkNested(t *ctypes.Aggregate) error {
	if t.StructAlignment() != l.structAlignment {
		return fmt.Errorf("%w: %s laid out with %d, want %d",
			ErrAlignmentMismatch, t, t.StructAlignment(), l.structAlignment)
	}
	return nil
}

func unsupported(t *ctypes.Aggregate, f *ctypes.Field) error {
	typ := "<nil>"
	if f.Type != nil {
		typ = f.Type.String()
	}
	return &UnsupportedFieldTypeError{Field: f.Name, Type: typ, Enclosing: t.String()}
}
