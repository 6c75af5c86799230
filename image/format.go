// Package image defines the binary module consumed by the runtime and reads
// and writes it.
//
// The module is a single little-endian stream written in a fixed order:
// header counts, packages (each with its class descriptors and function
// bodies), the box table of boxed value type protocol tables, and the
// string pool. Every variable-length section is preceded by its count or
// length.
package image

import (
	"errors"

	"github.com/chazu/tessera/bytecode"
	"github.com/chazu/tessera/layout"
)

// ---------------------------------------------------------------------------
// Format constants
// ---------------------------------------------------------------------------

// FormatVersion is the leading byte of every module. The runtime rejects
// modules with a different version.
const FormatVersion uint8 = 1

// MaxPackages is the largest number of packages one module may contain.
const MaxPackages = 256

// NoDispatchIndex fills protocol table slots whose method is missing, so
// the table stays dense. It is never a valid dispatch index.
const NoDispatchIndex uint16 = 0xFFFF

var (
	ErrVersionMismatch    = errors.New("module version mismatch")
	ErrUnexpectedEOF      = errors.New("unexpected end of module data")
	ErrTrailingData       = errors.New("trailing data after module")
	ErrCorruptData        = errors.New("corrupt module data")
	ErrInvalidStringIndex = errors.New("invalid string index")
	ErrStringPool         = errors.New("string pool must start with the empty string")
	ErrTooManyPackages    = errors.New("too many packages")
	ErrOverflow           = errors.New("value does not fit its field")
)

// ---------------------------------------------------------------------------
// Module model
// ---------------------------------------------------------------------------

// Module is a complete linkable program.
type Module struct {
	Version       uint8
	ClassCount    uint16
	FunctionCount uint16
	Packages      []Package
	Boxes         BoxTable
	Strings       []string
}

// Package is one package's section of the module. An empty Name writes the
// anonymous marker and no version.
type Package struct {
	Name      string
	Major     uint16
	Minor     uint16
	Classes   []Class
	Functions []Function
}

// Anonymous reports whether the package header omits name and version.
func (p *Package) Anonymous() bool {
	return p.Name == ""
}

// Class is a class descriptor. MethodCount and InitializerCount are the full
// table sizes, inherited slots included; Methods and Initializers hold only
// the bodies of used callables.
type Class struct {
	Name                 uint16
	Superclass           uint16
	Size                 uint16
	MethodCount          uint16
	InheritsInitializers bool
	InitializerCount     uint16
	Methods              []Function
	Initializers         []Function
	Protocols            ProtocolTable
	Records              []layout.Record
}

// Function is a compiled callable body. Native callables carry their
// linking index and no code.
type Function struct {
	Index     uint16
	Name      uint16
	Arity     uint8
	Native    uint16
	FrameSize uint16
	Code      []bytecode.Instruction
	Records   []layout.FrameRecord
}

// ---------------------------------------------------------------------------
// Protocol and box tables
// ---------------------------------------------------------------------------

// ProtocolTable lists the dispatch indices implementing each protocol a
// type conforms to. Lowest and Highest bound the protocol indices present,
// so the runtime can address the table densely.
type ProtocolTable struct {
	Lowest  uint16
	Highest uint16
	Entries []ProtocolEntry
}

// ProtocolEntry maps one protocol's methods, in declaration order, to
// dispatch indices.
type ProtocolEntry struct {
	Protocol uint16
	Methods  []uint16
}

// Add appends an entry and widens the bounds.
func (t *ProtocolTable) Add(protocol uint16, methods []uint16) {
	if len(t.Entries) == 0 || protocol < t.Lowest {
		t.Lowest = protocol
	}
	if len(t.Entries) == 0 || protocol > t.Highest {
		t.Highest = protocol
	}
	t.Entries = append(t.Entries, ProtocolEntry{Protocol: protocol, Methods: methods})
}

// Lookup returns the entry for a protocol index.
func (t *ProtocolTable) Lookup(protocol uint16) (ProtocolEntry, bool) {
	for _, e := range t.Entries {
		if e.Protocol == protocol {
			return e, true
		}
	}
	return ProtocolEntry{}, false
}

// BoxTable holds the protocol tables of boxed value types, addressed by box
// identifier over the range [Lowest, Lowest+Range).
type BoxTable struct {
	Lowest  uint16
	Range   uint16
	Entries []BoxEntry
}

// BoxEntry is the protocol table of one value type.
type BoxEntry struct {
	BoxID uint16
	Table ProtocolTable
}

// Add appends an entry and widens the range.
func (b *BoxTable) Add(boxID uint16, table ProtocolTable) {
	if len(b.Entries) == 0 {
		b.Lowest, b.Range = boxID, 1
	} else {
		lo, hi := b.Lowest, b.Lowest+b.Range-1
		if boxID < lo {
			lo = boxID
		}
		if boxID > hi {
			hi = boxID
		}
		b.Lowest, b.Range = lo, hi-lo+1
	}
	b.Entries = append(b.Entries, BoxEntry{BoxID: boxID, Table: table})
}
