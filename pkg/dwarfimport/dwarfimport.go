// Package dwarfimport builds the C type model from DWARF debug info and checks
// computed layouts against the offsets the compiler recorded.
package dwarfimport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/go-dwarf"
	"go.uber.org/zap"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
	"github.com/raymyers/ralph-layout/pkg/report"
)

var (
	// ErrUnsupportedType is returned for DWARF types with no layout model.
	ErrUnsupportedType = errors.New("unsupported DWARF type")
	// ErrBitField is returned for aggregates containing bit-fields.
	ErrBitField = errors.New("bit-fields are not modeled")
	// ErrIncomplete is returned for aggregates declared but not defined.
	ErrIncomplete = errors.New("incomplete aggregate")
)

// Record pairs an imported aggregate with the layout the compiler produced.
type Record struct {
	Aggregate *ctypes.Aggregate
	// Size and Offsets are the compiler's values, Offsets in field order.
	Size    int64
	Offsets []int64
}

// Skipped names an aggregate that could not be imported.
type Skipped struct {
	Name string
	Err  error
}

// Result is the outcome of importing one binary's debug info.
type Result struct {
	Records []*Record
	Skipped []Skipped
}

// Aggregates returns the imported aggregates in discovery order.
func (r *Result) Aggregates() []*ctypes.Aggregate {
	out := make([]*ctypes.Aggregate, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Aggregate
	}
	return out
}

// Importer converts DWARF types, memoizing aggregates so shared and
// self-referencing types map to a single ctypes.Aggregate.
type Importer struct {
	log     *zap.Logger
	aggs    map[*dwarf.StructType]*ctypes.Aggregate
	records map[*ctypes.Aggregate]*Record
	opaque  map[string]*ctypes.Aggregate
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the importer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Importer) {
		i.log = l
	}
}

// NewImporter returns an empty Importer.
func NewImporter(opts ...Option) *Importer {
	i := &Importer{
		log:     zap.NewNop(),
		aggs:    make(map[*dwarf.StructType]*ctypes.Aggregate),
		records: make(map[*ctypes.Aggregate]*Record),
		opaque:  make(map[string]*ctypes.Aggregate),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import walks every compilation unit and imports each named, complete
// struct and union. Aggregates that cannot be modeled are reported in
// Result.Skipped. The first definition of a name wins.
func (i *Importer) Import(d *dwarf.Data) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool)
	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagStructType && entry.Tag != dwarf.TagUnionType {
			continue
		}
		typ, err := d.Type(entry.Offset)
		if err != nil {
			return nil, err
		}
		st, ok := typ.(*dwarf.StructType)
		if !ok || st.StructName == "" || st.Incomplete {
			continue
		}
		key := st.Kind + " " + st.StructName
		if seen[key] {
			continue
		}
		seen[key] = true

		agg, err := i.Aggregate(st)
		if err != nil {
			i.log.Debug("skipped aggregate", zap.String("type", key), zap.Error(err))
			res.Skipped = append(res.Skipped, Skipped{Name: key, Err: err})
			continue
		}
		res.Records = append(res.Records, i.records[agg])
	}
	return res, nil
}

// Aggregate converts a DWARF struct or union.
func (i *Importer) Aggregate(st *dwarf.StructType) (*ctypes.Aggregate, error) {
	if agg, ok := i.aggs[st]; ok {
		return agg, nil
	}
	if st.Incomplete {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, st)
	}
	var agg *ctypes.Aggregate
	switch st.Kind {
	case "union":
		agg = ctypes.NewUnion(st.StructName)
	default:
		agg = ctypes.NewStruct(st.StructName)
	}
	i.aggs[st] = agg

	rec := &Record{Aggregate: agg, Size: st.ByteSize}
	for _, f := range st.Field {
		if f.BitSize != 0 {
			delete(i.aggs, st)
			return nil, fmt.Errorf("%w: field %q of %s", ErrBitField, f.Name, agg)
		}
		t, err := i.Convert(f.Type)
		if err != nil {
			delete(i.aggs, st)
			return nil, fmt.Errorf("field %q of %s: %w", f.Name, agg, err)
		}
		agg.Fields = append(agg.Fields, ctypes.NewField(f.Name, t))
		rec.Offsets = append(rec.Offsets, f.ByteOffset)
	}
	i.records[agg] = rec
	return agg, nil
}

// Convert maps a DWARF type to the type model. Typedefs and qualifiers are
// looked through. Pointers never require their target to be convertible.
func (i *Importer) Convert(t dwarf.Type) (ctypes.Type, error) {
	t = strip(t)
	switch t := t.(type) {
	case nil, *dwarf.VoidType:
		return ctypes.Void(), nil
	case *dwarf.CharType:
		return ctypes.Char(), nil
	case *dwarf.UcharType:
		return ctypes.UChar(), nil
	case *dwarf.BoolType:
		return ctypes.Bool(), nil
	case *dwarf.IntType:
		return integer(t.Name, t.ByteSize, ctypes.Signed)
	case *dwarf.UintType:
		return integer(t.Name, t.ByteSize, ctypes.Unsigned)
	case *dwarf.FloatType:
		switch {
		case strings.Contains(t.Name, "long double"), t.ByteSize > 8:
			return ctypes.LongDouble(), nil
		case t.ByteSize == 4:
			return ctypes.Float(), nil
		case t.ByteSize == 8:
			return ctypes.Double(), nil
		}
	case *dwarf.EnumType:
		return ctypes.Tenum{Name: t.EnumName}, nil
	case *dwarf.PtrType:
		return ctypes.Pointer(i.pointee(t.Type)), nil
	case *dwarf.ArrayType:
		elem, err := i.Convert(t.Type)
		if err != nil {
			return nil, err
		}
		return ctypes.Array(elem, t.Count), nil
	case *dwarf.StructType:
		return i.Aggregate(t)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// pointee converts a pointer target. Aggregates become opaque, field-less
// stand-ins and anything else unconvertible becomes void.
func (i *Importer) pointee(t dwarf.Type) ctypes.Type {
	t = strip(t)
	switch u := t.(type) {
	case nil:
		return nil
	case *dwarf.PtrType:
		return ctypes.Pointer(i.pointee(u.Type))
	case *dwarf.StructType:
		key := u.Kind + " " + u.StructName
		if agg, ok := i.opaque[key]; ok {
			return agg
		}
		kind := ctypes.Struct
		if u.Kind == "union" {
			kind = ctypes.Union
		}
		agg := &ctypes.Aggregate{Kind: kind, Name: u.StructName}
		i.opaque[key] = agg
		return agg
	}
	if ct, err := i.Convert(t); err == nil {
		return ct
	}
	return nil
}

func strip(t dwarf.Type) dwarf.Type {
	for {
		switch u := t.(type) {
		case *dwarf.TypedefType:
			t = u.Type
		case *dwarf.QualType:
			t = u.Type
		default:
			return t
		}
	}
}

// integer picks the model type from the base type's name and byte size.
// Names containing "long" but not "long long" are the platform long.
func integer(name string, size int64, sign ctypes.Signedness) (ctypes.Type, error) {
	if strings.Contains(name, "long") && !strings.Contains(name, "long long") {
		return ctypes.Tlong{Sign: sign}, nil
	}
	switch size {
	case 1:
		return ctypes.Tint{Size: ctypes.I8, Sign: sign}, nil
	case 2:
		return ctypes.Tint{Size: ctypes.I16, Sign: sign}, nil
	case 4:
		return ctypes.Tint{Size: ctypes.I32, Sign: sign}, nil
	case 8:
		return ctypes.Tint{Size: ctypes.I64, Sign: sign}, nil
	}
	return nil, fmt.Errorf("%w: %d-byte integer %q", ErrUnsupportedType, size, name)
}

// Mismatch is a disagreement between a computed layout and the compiler's.
// Field is empty for the aggregate size.
type Mismatch struct {
	Aggregate string
	Field     string
	Computed  int64
	Compiler  int64
}

func (m Mismatch) String() string {
	if m.Field == "" {
		return fmt.Sprintf("%s: size %d, compiler %d", m.Aggregate, m.Computed, m.Compiler)
	}
	return fmt.Sprintf("%s.%s: offset %d, compiler %d", m.Aggregate, m.Field, m.Computed, m.Compiler)
}

// Compare checks an evaluated layout against the compiler's record.
func (r *Record) Compare(got *report.Aggregate) []Mismatch {
	var out []Mismatch
	name := r.Aggregate.String()
	if got.Size != r.Size {
		out = append(out, Mismatch{Aggregate: name, Computed: got.Size, Compiler: r.Size})
	}
	for idx, f := range got.Fields {
		if idx >= len(r.Offsets) {
			break
		}
		if f.Offset != r.Offsets[idx] {
			out = append(out, Mismatch{Aggregate: name, Field: f.Name, Computed: f.Offset, Compiler: r.Offsets[idx]})
		}
	}
	return out
}
