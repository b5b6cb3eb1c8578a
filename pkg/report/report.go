// Package report evaluates laid-out aggregates against concrete machine
// descriptions and renders the resulting offsets and sizes.
package report

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
	"github.com/raymyers/ralph-layout/pkg/machdesc"
	"github.com/raymyers/ralph-layout/pkg/sizeexpr"
)

// ErrNotLaidOut is returned when evaluating an aggregate the layout engine
// has not processed.
var ErrNotLaidOut = errors.New("aggregate not laid out")

// DefaultCacheSize bounds the number of memoized evaluations.
const DefaultCacheSize = 256

// Field is one field of an evaluated aggregate. Offset is relative to the
// enclosing aggregate.
type Field struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Offset int64   `yaml:"offset"`
	Size   int64   `yaml:"size"`
	Fields []Field `yaml:"fields,omitempty"`
}

// Aggregate is the concrete layout of a struct or union on one machine.
type Aggregate struct {
	Name            string  `yaml:"name"`
	Size            int64   `yaml:"size"`
	StructAlignment int64   `yaml:"struct_alignment"`
	Fields          []Field `yaml:"fields"`
}

// Report groups the aggregates of a declaration set evaluated for one target.
type Report struct {
	Target     string      `yaml:"target"`
	Machine    string      `yaml:"machine"`
	Aggregates []Aggregate `yaml:"aggregates"`
}

type cacheKey struct {
	agg *ctypes.Aggregate
	md  machdesc.MachineDescription
}

// Evaluator turns symbolic layouts into concrete ones. Results are memoized
// per aggregate and description, so nested aggregates shared by several
// parents are evaluated once.
type Evaluator struct {
	cache *lru.Cache[cacheKey, *Aggregate]
}

// NewEvaluator returns an Evaluator remembering up to size results.
func NewEvaluator(size int) (*Evaluator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, *Aggregate](size)
	if err != nil {
		return nil, err
	}
	return &Evaluator{cache: cache}, nil
}

// Evaluate computes the concrete layout of t on md. The returned value is
// shared with the cache and must not be modified.
func (e *Evaluator) Evaluate(t *ctypes.Aggregate, md *machdesc.MachineDescription) (*Aggregate, error) {
	key := cacheKey{agg: t, md: *md}
	if out, ok := e.cache.Get(key); ok {
		return out, nil
	}

	size, ok := t.Size()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLaidOut, t)
	}
	total, err := sizeexpr.Evaluate(size, md)
	if err != nil {
		return nil, fmt.Errorf("size of %s: %w", t, err)
	}
	out := &Aggregate{
		Name:            t.String(),
		Size:            total,
		StructAlignment: t.StructAlignment(),
		Fields:          make([]Field, 0, len(t.Fields)),
	}
	for _, f := range t.Fields {
		field, err := e.field(t, f, md)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, field)
	}
	e.cache.Add(key, out)
	return out, nil
}

func (e *Evaluator) field(t *ctypes.Aggregate, f *ctypes.Field, md *machdesc.MachineDescription) (Field, error) {
	off, ok := f.Offset()
	if !ok {
		return Field{}, fmt.Errorf("%w: field %q of %s has no offset", ErrNotLaidOut, f.Name, t)
	}
	offset, err := sizeexpr.Evaluate(off, md)
	if err != nil {
		return Field{}, fmt.Errorf("offset of %s.%s: %w", t, f.Name, err)
	}
	sz, ok := ctypes.SizeOf(f.Type)
	if !ok {
		return Field{}, fmt.Errorf("%w: field %q of %s has no size", ErrNotLaidOut, f.Name, t)
	}
	size, err := sizeexpr.Evaluate(sz, md)
	if err != nil {
		return Field{}, fmt.Errorf("size of %s.%s: %w", t, f.Name, err)
	}
	out := Field{Name: f.Name, Type: f.Type.String(), Offset: offset, Size: size}
	if nested, ok := f.Type.(*ctypes.Aggregate); ok {
		inner, err := e.Evaluate(nested, md)
		if err != nil {
			return Field{}, err
		}
		out.Fields = inner.Fields
	}
	return out, nil
}

// Build evaluates every aggregate in ts for one target.
func (e *Evaluator) Build(target string, ts []*ctypes.Aggregate, md *machdesc.MachineDescription) (*Report, error) {
	r := &Report{Target: target, Machine: md.ShortString()}
	for _, t := range ts {
		agg, err := e.Evaluate(t, md)
		if err != nil {
			return nil, err
		}
		r.Aggregates = append(r.Aggregates, *agg)
	}
	return r, nil
}

// Len reports the number of memoized evaluations.
func (e *Evaluator) Len() int {
	return e.cache.Len()
}
