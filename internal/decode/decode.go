// Package decode turns assembled response frames into typed status maps.
//
// Decoders are pure functions: identical input frames always produce identical
// output maps, and no decoder keeps state between calls. The binary field
// tables are data, not code, so offset corrections ship as configuration
// instead of a rebuild.
package decode

import (
	"fmt"
)

// ValueKind tags the concrete type carried by a Value.
type ValueKind int

const (
	KindUnsigned ValueKind = iota
	KindSigned
	KindBool
	KindFloat
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindUnsigned:
		return "unsigned"
	case KindSigned:
		return "signed"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one decoded status field plus its unit metadata.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Unit  string
}

func (v Value) String() string {
	switch v.Kind {
	case KindUnsigned, KindSigned:
		if v.Unit != "" {
			return fmt.Sprintf("%d %s", v.Int, v.Unit)
		}
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindFloat:
		if v.Unit != "" {
			return fmt.Sprintf("%g %s", v.Float, v.Unit)
		}
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	}
	return "?"
}

// Status is a fully rebuilt status snapshot. It is produced once per
// successful poll cycle and never merged with a previous snapshot.
type Status map[string]Value

// Error reports a frame that could not be decoded. Not retryable within a
// cycle: the same frame decodes to the same error.
type Error struct {
	Family string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Family, e.Reason)
}

// SignedByte interprets b as an 8-bit two's-complement value in [-128, 127].
func SignedByte(b byte) int {
	if b > 127 {
		return int(b) - 256
	}
	return int(b)
}

// FieldKind is the yaml-friendly interpretation tag for a binary field.
type FieldKind string

const (
	FieldUnsigned FieldKind = "unsigned"
	FieldSigned   FieldKind = "signed"
	FieldBool     FieldKind = "bool"
	// FieldConst marks a protocol filler byte with a known constant value.
	// Filler carries no information and is excluded from the decoded map.
	FieldConst FieldKind = "const"
)

// Field defines one byte of a binary status frame.
type Field struct {
	Offset int       `yaml:"offset"`
	Name   string    `yaml:"name"`
	Kind   FieldKind `yaml:"kind"`
	Unit   string    `yaml:"unit,omitempty"`
}

// BinaryTable is the complete field layout for a fixed-length binary frame.
// Offsets absent from Fields are decoded as raw unsigned bytes under a
// generated "byte_NN" name, so no data is silently discarded.
type BinaryTable struct {
	FrameLen int     `yaml:"frame_len"`
	Fields   []Field `yaml:"fields"`
}

// fieldAt returns the declared field covering offset, if any.
func (t *BinaryTable) fieldAt(offset int) (Field, bool) {
	for _, f := range t.Fields {
		if f.Offset == offset {
			return f, true
		}
	}
	return Field{}, false
}

// Validate rejects tables with out-of-range or duplicate offsets.
func (t *BinaryTable) Validate() error {
	if t.FrameLen <= 0 {
		return fmt.Errorf("binary table: frame_len must be positive, got %d", t.FrameLen)
	}
	seen := make(map[int]string, len(t.Fields))
	for _, f := range t.Fields {
		if f.Offset < 0 || f.Offset >= t.FrameLen {
			return fmt.Errorf("binary table: field %q offset %d outside frame of %d bytes", f.Name, f.Offset, t.FrameLen)
		}
		if prev, dup := seen[f.Offset]; dup {
			return fmt.Errorf("binary table: offset %d declared twice (%q and %q)", f.Offset, prev, f.Name)
		}
		seen[f.Offset] = f.Name
		switch f.Kind {
		case FieldUnsigned, FieldSigned, FieldBool, FieldConst:
		default:
			return fmt.Errorf("binary table: field %q has unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// DecodeBinary decodes a fixed-length binary frame against the given table.
// The frame length must match the table exactly.
func DecodeBinary(family string, table *BinaryTable, frame []byte) (Status, error) {
	if len(frame) != table.FrameLen {
		return nil, &Error{
			Family: family,
			Reason: fmt.Sprintf("frame is %d bytes, expected %d", len(frame), table.FrameLen),
		}
	}

	status := make(Status, table.FrameLen)
	for offset, raw := range frame {
		field, known := table.fieldAt(offset)
		if !known {
			status[fmt.Sprintf("byte_%d", offset)] = Value{Kind: KindUnsigned, Int: int64(raw)}
			continue
		}
		switch field.Kind {
		case FieldConst:
			// filler, intentionally absent from the map
		case FieldUnsigned:
			status[field.Name] = Value{Kind: KindUnsigned, Int: int64(raw), Unit: field.Unit}
		case FieldSigned:
			status[field.Name] = Value{Kind: KindSigned, Int: int64(SignedByte(raw)), Unit: field.Unit}
		case FieldBool:
			status[field.Name] = Value{Kind: KindBool, Bool: raw != 0, Unit: field.Unit}
		}
	}
	return status, nil
}
