// Package decl loads struct and union declarations from YAML files.
//
// A declaration file lists aggregates in order, each field typed with a C
// type string:
//
//	typedefs:
//	  handle_t: void *
//	types:
//	  - name: point
//	    kind: struct
//	    fields:
//	      - {name: x, type: int}
//	      - {name: next, type: struct point *}
//	      - {name: tags, type: "char[8]"}
package decl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
)

var (
	// ErrUnknownType reports a type string naming no known type.
	ErrUnknownType = errors.New("unknown type")
	// ErrDuplicateType reports an aggregate or typedef declared twice.
	ErrDuplicateType = errors.New("duplicate type")
	// ErrInvalid reports a malformed declaration.
	ErrInvalid = errors.New("invalid declaration")
)

// File is the on-disk form of a declaration set.
type File struct {
	Typedefs map[string]string `yaml:"typedefs,omitempty"`
	Types    []Decl            `yaml:"types"`
}

// Decl declares one aggregate.
type Decl struct {
	Name   string      `yaml:"name"`
	Kind   string      `yaml:"kind"`
	Fields []FieldDecl `yaml:"fields"`
}

// FieldDecl declares one field.
type FieldDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Set is a resolved declaration set.
type Set struct {
	// Aggregates in declaration order.
	Aggregates []*ctypes.Aggregate

	byTag    map[string]*ctypes.Aggregate
	typedefs map[string]string
	opaque   map[string]*ctypes.Aggregate
}

// Load reads and resolves a declaration file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and resolves YAML declarations.
func Parse(data []byte) (*Set, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Resolve(&f)
}

// Resolve builds the type tree for f. Forward references between aggregates
// are allowed.
func Resolve(f *File) (*Set, error) {
	s := &Set{
		byTag:    make(map[string]*ctypes.Aggregate),
		typedefs: make(map[string]string),
		opaque:   make(map[string]*ctypes.Aggregate),
	}
	for name, target := range f.Typedefs {
		s.typedefs[strings.TrimSpace(name)] = target
	}

	// Declare every aggregate first so fields may refer forward.
	for i, d := range f.Types {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: type #%d has no name", ErrInvalid, i+1)
		}
		var agg *ctypes.Aggregate
		switch strings.ToLower(d.Kind) {
		case "struct", "":
			agg = ctypes.NewStruct(d.Name)
		case "union":
			agg = ctypes.NewUnion(d.Name)
		default:
			return nil, fmt.Errorf("%w: %s has kind %q", ErrInvalid, d.Name, d.Kind)
		}
		tag := agg.String()
		if _, dup := s.byTag[tag]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateType, tag)
		}
		if _, dup := s.typedefs[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s is also a typedef", ErrDuplicateType, d.Name)
		}
		s.byTag[tag] = agg
		s.Aggregates = append(s.Aggregates, agg)
	}

	for i, d := range f.Types {
		agg := s.Aggregates[i]
		for j, fd := range d.Fields {
			if fd.Name == "" {
				return nil, fmt.Errorf("%w: field #%d of %s has no name", ErrInvalid, j+1, agg)
			}
			t, err := s.TypeFromString(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("field %q of %s: %w", fd.Name, agg, err)
			}
			agg.Fields = append(agg.Fields, ctypes.NewField(fd.Name, t))
		}
	}
	return s, nil
}

// Lookup finds an aggregate by name, optionally prefixed with "struct " or
// "union ".
func (s *Set) Lookup(name string) (*ctypes.Aggregate, bool) {
	name = strings.Join(strings.Fields(name), " ")
	if agg, ok := s.byTag[name]; ok {
		return agg, true
	}
	if agg, ok := s.byTag["struct "+name]; ok {
		return agg, true
	}
	agg, ok := s.byTag["union "+name]
	return agg, ok
}

// TypeFromString converts a C type string to a ctypes.Type.
func (s *Set) TypeFromString(typeName string) (ctypes.Type, error) {
	return s.typeFromString(typeName, 0)
}

// maxTypedefDepth bounds typedef chains, catching cycles.
const maxTypedefDepth = 32

func (s *Set) typeFromString(typeName string, depth int) (ctypes.Type, error) {
	if depth > maxTypedefDepth {
		return nil, fmt.Errorf("%w: typedef cycle through %q", ErrInvalid, typeName)
	}
	// Normalize whitespace and drop qualifiers that do not affect layout.
	var words []string
	for _, w := range strings.Fields(typeName) {
		if w == "const" || w == "volatile" {
			continue
		}
		words = append(words, w)
	}
	typeName = strings.Join(words, " ")

	// Array suffixes: int[2][3] is two arrays of three ints.
	if strings.HasSuffix(typeName, "]") {
		open := strings.Index(typeName, "[")
		if open < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, typeName)
		}
		elem, err := s.typeFromString(typeName[:open], depth)
		if err != nil {
			return nil, err
		}
		dims, err := parseDims(typeName[open:])
		if err != nil {
			return nil, err
		}
		t := elem
		for i := len(dims) - 1; i >= 0; i-- {
			t = ctypes.Array(t, dims[i])
		}
		return t, nil
	}

	// Check for pointer types
	if strings.HasSuffix(typeName, "*") {
		target := strings.TrimSpace(typeName[:len(typeName)-1])
		elem, err := s.pointee(target, depth)
		if err != nil {
			return nil, err
		}
		return ctypes.Pointer(elem), nil
	}

	switch typeName {
	case "void":
		return ctypes.Void(), nil
	case "char", "signed char", "int8_t":
		return ctypes.Char(), nil
	case "unsigned char", "uint8_t":
		return ctypes.UChar(), nil
	case "_Bool", "bool":
		return ctypes.Bool(), nil
	case "short", "short int", "signed short", "int16_t":
		return ctypes.Short(), nil
	case "unsigned short", "unsigned short int", "uint16_t":
		return ctypes.Tint{Size: ctypes.I16, Sign: ctypes.Unsigned}, nil
	case "int", "signed", "signed int", "int32_t":
		return ctypes.Int(), nil
	case "unsigned int", "unsigned", "uint32_t":
		return ctypes.UInt(), nil
	case "long", "long int", "signed long":
		return ctypes.Long(), nil
	case "unsigned long", "unsigned long int":
		return ctypes.Tlong{Sign: ctypes.Unsigned}, nil
	case "long long", "long long int", "signed long long", "int64_t":
		return ctypes.LongLong(), nil
	case "unsigned long long", "unsigned long long int", "uint64_t":
		return ctypes.Tint{Size: ctypes.I64, Sign: ctypes.Unsigned}, nil
	case "float":
		return ctypes.Float(), nil
	case "double":
		return ctypes.Double(), nil
	case "long double":
		return ctypes.LongDouble(), nil
	}

	if name, ok := strings.CutPrefix(typeName, "enum "); ok {
		return ctypes.Tenum{Name: name}, nil
	}
	if strings.HasPrefix(typeName, "struct ") || strings.HasPrefix(typeName, "union ") {
		agg, ok := s.byTag[typeName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
		}
		return agg, nil
	}
	if target, ok := s.typedefs[typeName]; ok {
		return s.typeFromString(target, depth+1)
	}
	// A bare aggregate name, as C++ allows.
	if agg, ok := s.Lookup(typeName); ok {
		return agg, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
}

// pointee resolves a pointer target. Pointers to undeclared aggregates are
// allowed and point at an opaque, fieldless aggregate.
func (s *Set) pointee(target string, depth int) (ctypes.Type, error) {
	t, err := s.typeFromString(target, depth)
	if err == nil || !errors.Is(err, ErrUnknownType) {
		return t, err
	}
	for _, kind := range []ctypes.AggregateKind{ctypes.Struct, ctypes.Union} {
		name, ok := strings.CutPrefix(target, kind.String()+" ")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if agg, ok := s.opaque[target]; ok {
			return agg, nil
		}
		agg := &ctypes.Aggregate{Kind: kind, Name: name}
		s.opaque[target] = agg
		return agg, nil
	}
	return nil, err
}

func parseDims(s string) ([]int64, error) {
	var dims []int64
	for s != "" {
		if s[0] != '[' {
			return nil, fmt.Errorf("%w: array suffix %q", ErrInvalid, s)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: array suffix %q", ErrInvalid, s)
		}
		inner := strings.TrimSpace(s[1:end])
		n := int64(-1)
		if inner != "" {
			v, err := strconv.ParseInt(inner, 0, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: array length %q", ErrInvalid, inner)
			}
			n = v
		}
		dims = append(dims, n)
		s = strings.TrimSpace(s[end+1:])
	}
	return dims, nil
}
