// Package layout derives the pointer-location records a tracing garbage
// collector uses to find references in objects and stack frames.
//
// Records are derived mechanically from the static representation of each
// field or variable (model.TypeKind), never from raw storage overlap.
package layout

import (
	"fmt"

	"github.com/chazu/tessera/model"
)

// Kind is the kind of an object variable record.
type Kind uint16

const (
	// Simple: the slot at Index always holds a candidate reference.
	Simple Kind = iota
	// Conditional: the slot at Index holds a reference when the slot at
	// Condition is non-zero.
	Conditional
	// Box: the slot at Index is a tag; the payload at Index+1 is a reference
	// when the tag is model.TagObject. The record covers model.BoxSlots
	// slots.
	Box
	// ConditionalSkip: when the slot at Condition is zero, the following
	// Index records are skipped. It describes no slot other than Condition.
	ConditionalSkip
)

func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Conditional:
		return "conditional"
	case Box:
		return "box"
	case ConditionalSkip:
		return "conditional-skip"
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

// Record is one object variable record.
type Record struct {
	Index     int
	Condition int
	Kind      Kind
}

func (r Record) String() string {
	switch r.Kind {
	case Simple, Box:
		return fmt.Sprintf("%s %d", r.Kind, r.Index)
	case ConditionalSkip:
		return fmt.Sprintf("%s if %d else skip %d", r.Kind, r.Condition, r.Index)
	}
	return fmt.Sprintf("%s %d if %d", r.Kind, r.Index, r.Condition)
}

// FrameRecord is a record valid for instruction offsets in [From, To).
type FrameRecord struct {
	Record
	From int
	To   int
}

// Live reports whether the record applies at instruction offset pc.
func (r FrameRecord) Live(pc int) bool {
	return r.From <= pc && pc < r.To
}

// Window is a range of instruction offsets over which a variable is live.
type Window struct {
	From int
	To   int
}

// ---------------------------------------------------------------------------
// Describing storage
// ---------------------------------------------------------------------------

// Describe appends the records for a value of type t stored at slot base.
// Value type sizes and field offsets must already be final. A value type
// nested in itself contributes no records below the first level.
func Describe(prog *model.Program, t model.TypeRef, base int, out []Record) []Record {
	return describe(prog, t, base, out, nil)
}

// describe tracks the value types being expanded in active.
func describe(prog *model.Program, t model.TypeRef, base int, out []Record, active map[*model.ValueType]bool) []Record {
	switch t.Kind {
	case model.KindReference:
		return append(out, Record{Index: base, Kind: Simple})
	case model.KindOptional:
		return append(out, Record{Index: base + 1, Condition: base, Kind: Conditional})
	case model.KindBoxed:
		return append(out, Record{Index: base, Kind: Box})
	case model.KindValue:
		vt := prog.ValueType(t.Name)
		if vt == nil || active[vt] {
			return out
		}
		if active == nil {
			active = make(map[*model.ValueType]bool)
		}
		active[vt] = true
		for _, f := range vt.Fields {
			out = describe(prog, f.Type, base+f.Offset, out, active)
		}
		delete(active, vt)
		return out
	case model.KindOptionalValue:
		inner := describe(prog, model.Value(t.Name), base+1, nil, active)
		if len(inner) == 0 {
			return out
		}
		out = append(out, Record{Index: len(inner), Condition: base, Kind: ConditionalSkip})
		return append(out, inner...)
	}
	return out
}

// ForFields returns the records of an object with the given fields, in
// declaration order.
func ForFields(prog *model.Program, fields []model.Field) []Record {
	var out []Record
	for _, f := range fields {
		out = Describe(prog, f.Type, f.Offset, out)
	}
	return out
}

// ForClass returns the records of a class instance, inherited fields first.
func ForClass(prog *model.Program, c *model.Class) []Record {
	return ForFields(prog, c.AllFields())
}

// ForFrame returns the frame records of a callable's variables. offsets and
// windows are indexed like vars.
func ForFrame(prog *model.Program, vars []model.Var, offsets []int, windows []Window) []FrameRecord {
	var out []FrameRecord
	for i, v := range vars {
		for _, r := range Describe(prog, v.Type, offsets[i], nil) {
			out = append(out, FrameRecord{Record: r, From: windows[i].From, To: windows[i].To})
		}
	}
	return out
}
