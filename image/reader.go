package image

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chazu/tessera/bytecode"
	"github.com/chazu/tessera/layout"
)

// ---------------------------------------------------------------------------
// Reader: parses a Module
// ---------------------------------------------------------------------------

// Reader parses a serialized module. It never trusts counts: every
// allocation is bounded by the bytes remaining.
type Reader struct {
	data   []byte
	offset int
}

// NewReader reads all of r into a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read module data: %w", err)
	}
	return NewReaderFromBytes(data), nil
}

// NewReaderFromBytes creates a Reader over data.
func NewReaderFromBytes(data []byte) *Reader {
	return &Reader{data: data}
}

// Decode parses a complete module.
func Decode(data []byte) (*Module, error) {
	return NewReaderFromBytes(data).ReadModule()
}

// ReadModule parses the whole stream and validates string references.
func (r *Reader) ReadModule() (*Module, error) {
	m := &Module{}
	var err error

	if m.Version, err = r.readUint8(); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, m.Version, FormatVersion)
	}
	if m.ClassCount, err = r.readUint16(); err != nil {
		return nil, fmt.Errorf("failed to read class count: %w", err)
	}
	if m.FunctionCount, err = r.readUint16(); err != nil {
		return nil, fmt.Errorf("failed to read function count: %w", err)
	}
	packages, err := r.readUint16()
	if err != nil {
		return nil, fmt.Errorf("failed to read package count: %w", err)
	}
	if int(packages) > MaxPackages {
		return nil, fmt.Errorf("%w: %d", ErrTooManyPackages, packages)
	}

	m.Packages = makeSlice[Package](int(packages))
	for i := range m.Packages {
		if err := r.readPackage(&m.Packages[i]); err != nil {
			return nil, fmt.Errorf("package %d: %w", i, err)
		}
	}
	if err := r.readBoxTable(&m.Boxes); err != nil {
		return nil, fmt.Errorf("box table: %w", err)
	}
	if m.Strings, err = r.readStringTable(); err != nil {
		return nil, fmt.Errorf("string table: %w", err)
	}
	if r.offset != len(r.data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(r.data)-r.offset)
	}
	if err := m.checkStrings(); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Reader) readPackage(p *Package) error {
	nameLen, err := r.readUint8()
	if err != nil {
		return err
	}
	if nameLen > 0 {
		name, err := r.readBytes(int(nameLen))
		if err != nil {
			return err
		}
		p.Name = string(name)
		if p.Major, err = r.readUint16(); err != nil {
			return err
		}
		if p.Minor, err = r.readUint16(); err != nil {
			return err
		}
	}

	classes, err := r.readCount(minClassSize)
	if err != nil {
		return fmt.Errorf("class count: %w", err)
	}
	p.Classes = makeSlice[Class](classes)
	for i := range p.Classes {
		if err := r.readClass(&p.Classes[i]); err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
	}

	p.Functions, err = r.readFunctions()
	return err
}

// readClass reads a single class descriptor, mirroring writeClass.
func (r *Reader) readClass(c *Class) error {
	var err error
	for _, f := range []*uint16{&c.Name, &c.Superclass, &c.Size, &c.MethodCount} {
		if *f, err = r.readUint16(); err != nil {
			return err
		}
	}
	inherits, err := r.readUint8()
	if err != nil {
		return err
	}
	if inherits > 1 {
		return fmt.Errorf("%w: inherits-initializers flag %d", ErrCorruptData, inherits)
	}
	c.InheritsInitializers = inherits == 1
	if c.InitializerCount, err = r.readUint16(); err != nil {
		return err
	}
	usedMethods, err := r.readCount(minFunctionSize)
	if err != nil {
		return err
	}
	usedInitializers, err := r.readCount(minFunctionSize)
	if err != nil {
		return err
	}
	c.Methods = makeSlice[Function](usedMethods)
	for i := range c.Methods {
		if err := r.readFunction(&c.Methods[i]); err != nil {
			return fmt.Errorf("method %d: %w", i, err)
		}
	}
	c.Initializers = makeSlice[Function](usedInitializers)
	for i := range c.Initializers {
		if err := r.readFunction(&c.Initializers[i]); err != nil {
			return fmt.Errorf("initializer %d: %w", i, err)
		}
	}
	if err := r.readProtocolTable(&c.Protocols); err != nil {
		return fmt.Errorf("protocol table: %w", err)
	}

	records, err := r.readCount(6)
	if err != nil {
		return err
	}
	c.Records = makeSlice[layout.Record](records)
	for i := range c.Records {
		if c.Records[i], err = r.readRecord(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readFunctions() ([]Function, error) {
	n, err := r.readCount(minFunctionSize)
	if err != nil {
		return nil, fmt.Errorf("function count: %w", err)
	}
	fns := makeSlice[Function](n)
	for i := range fns {
		if err := r.readFunction(&fns[i]); err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
	}
	return fns, nil
}

func (r *Reader) readFunction(f *Function) error {
	var err error
	if f.Index, err = r.readUint16(); err != nil {
		return err
	}
	if f.Name, err = r.readUint16(); err != nil {
		return err
	}
	if f.Arity, err = r.readUint8(); err != nil {
		return err
	}
	if f.Native, err = r.readUint16(); err != nil {
		return err
	}
	if f.FrameSize, err = r.readUint16(); err != nil {
		return err
	}

	words, err := r.readUint32()
	if err != nil {
		return err
	}
	if uint64(words)*4 > uint64(r.remaining()) {
		return ErrUnexpectedEOF
	}
	f.Code = makeSlice[bytecode.Instruction](int(words))
	for i := range f.Code {
		v, _ := r.readUint32()
		f.Code[i] = bytecode.Instruction(v)
	}

	records, err := r.readCount(14)
	if err != nil {
		return err
	}
	f.Records = makeSlice[layout.FrameRecord](records)
	for i := range f.Records {
		rec, err := r.readRecord()
		if err != nil {
			return err
		}
		from, err := r.readUint32()
		if err != nil {
			return err
		}
		to, err := r.readUint32()
		if err != nil {
			return err
		}
		f.Records[i] = layout.FrameRecord{Record: rec, From: int(from), To: int(to)}
	}
	return nil
}

// ReadProtocolTable reads one protocol table at the current position.
func (r *Reader) ReadProtocolTable() (ProtocolTable, error) {
	var t ProtocolTable
	err := r.readProtocolTable(&t)
	return t, err
}

func (r *Reader) readProtocolTable(t *ProtocolTable) error {
	n, err := r.readCount(4)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if t.Lowest, err = r.readUint16(); err != nil {
		return err
	}
	if t.Highest, err = r.readUint16(); err != nil {
		return err
	}
	t.Entries = makeSlice[ProtocolEntry](n)
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.Protocol, err = r.readUint16(); err != nil {
			return err
		}
		methods, err := r.readCount(2)
		if err != nil {
			return err
		}
		e.Methods = makeSlice[uint16](methods)
		for j := range e.Methods {
			if e.Methods[j], err = r.readUint16(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) readBoxTable(b *BoxTable) error {
	var err error
	if b.Range, err = r.readUint16(); err != nil {
		return err
	}
	if b.Lowest, err = r.readUint16(); err != nil {
		return err
	}
	n, err := r.readCount(4)
	if err != nil {
		return err
	}
	b.Entries = makeSlice[BoxEntry](n)
	for i := range b.Entries {
		if b.Entries[i].BoxID, err = r.readUint16(); err != nil {
			return err
		}
		if err := r.readProtocolTable(&b.Entries[i].Table); err != nil {
			return fmt.Errorf("box %d: %w", b.Entries[i].BoxID, err)
		}
	}
	return nil
}

func (r *Reader) readStringTable() ([]string, error) {
	n, err := r.readCount(2)
	if err != nil {
		return nil, err
	}
	strings := make([]string, n)
	for i := range strings {
		length, err := r.readUint16()
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		b, err := r.readBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		strings[i] = string(b)
	}
	if n == 0 || strings[0] != "" {
		return nil, ErrStringPool
	}
	return strings, nil
}

func (r *Reader) readRecord() (layout.Record, error) {
	var fields [3]uint16
	for i := range fields {
		v, err := r.readUint16()
		if err != nil {
			return layout.Record{}, err
		}
		fields[i] = v
	}
	return layout.Record{Index: int(fields[0]), Condition: int(fields[1]), Kind: layout.Kind(fields[2])}, nil
}

// checkStrings verifies that every name refers into the string pool.
func (m *Module) checkStrings() error {
	n := uint16(len(m.Strings))
	check := func(idx uint16, what string) error {
		if idx >= n {
			return fmt.Errorf("%w: %s refers to %d of %d", ErrInvalidStringIndex, what, idx, n)
		}
		return nil
	}
	checkAll := func(fns []Function, what string) error {
		for i := range fns {
			if err := check(fns[i].Name, what); err != nil {
				return err
			}
		}
		return nil
	}
	for _, p := range m.Packages {
		for _, c := range p.Classes {
			if err := check(c.Name, "class name"); err != nil {
				return err
			}
			if err := checkAll(c.Methods, "method name"); err != nil {
				return err
			}
			if err := checkAll(c.Initializers, "initializer name"); err != nil {
				return err
			}
		}
		if err := checkAll(p.Functions, "function name"); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// Smallest encodings, used to bound counts by the bytes remaining.
const (
	minFunctionSize = 2 + 2 + 1 + 2 + 2 + 4 + 2
	minClassSize    = 2*4 + 1 + 2*3 + 2 + 2
)

// makeSlice returns nil for zero lengths so decoded modules compare equal
// to the ones they were encoded from.
func makeSlice[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}

func (r *Reader) remaining() int {
	return len(r.data) - r.offset
}

// readCount reads a 16-bit count of items at least minSize bytes each.
func (r *Reader) readCount(minSize int) (int, error) {
	n, err := r.readUint16()
	if err != nil {
		return 0, err
	}
	if int(n)*minSize > r.remaining() {
		return 0, ErrUnexpectedEOF
	}
	return int(n), nil
}

func (r *Reader) readUint8() (uint8, error) {
	if r.offset+1 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

func (r *Reader) readUint16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *Reader) readUint32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	if r.offset+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}
