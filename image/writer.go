package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/chazu/tessera/layout"
)

// ---------------------------------------------------------------------------
// Writer: serializes a Module
// ---------------------------------------------------------------------------

// Writer serializes a module. The first error encountered is kept and every
// later write becomes a no-op, so sections can be written unconditionally and
// the error checked once.
type Writer struct {
	buf *bytes.Buffer
	err error
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{buf: bytes.NewBuffer(nil)}
}

// Encode serializes a module to bytes.
func Encode(m *Module) ([]byte, error) {
	w := NewWriter()
	if err := w.WriteModule(m); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// WriteModule writes every section of m in format order.
func (w *Writer) WriteModule(m *Module) error {
	if len(m.Packages) > MaxPackages {
		return fmt.Errorf("%w: %d packages, at most %d", ErrTooManyPackages, len(m.Packages), MaxPackages)
	}
	if len(m.Strings) == 0 || m.Strings[0] != "" {
		return ErrStringPool
	}

	w.writeHeader(m)
	for i := range m.Packages {
		w.writePackage(&m.Packages[i])
	}
	w.writeBoxTable(&m.Boxes)
	w.writeStringTable(m.Strings)
	return w.err
}

// WriteTo writes the serialized module to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := out.Write(w.buf.Bytes())
	return int64(n), err
}

// Bytes returns the serialized module.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

func (w *Writer) writeHeader(m *Module) {
	w.writeUint8(m.Version)
	w.writeUint16(m.ClassCount)
	w.writeUint16(m.FunctionCount)
	w.writeCount16("package count", len(m.Packages))
}

func (w *Writer) writePackage(p *Package) {
	if p.Anonymous() {
		w.writeUint8(0)
	} else {
		if len(p.Name) > math.MaxUint8 {
			w.fail(fmt.Errorf("%w: package name %q is %d bytes", ErrOverflow, p.Name, len(p.Name)))
			return
		}
		w.writeUint8(uint8(len(p.Name)))
		w.writeString(p.Name)
		w.writeUint16(p.Major)
		w.writeUint16(p.Minor)
	}

	w.writeCount16("class count", len(p.Classes))
	for i := range p.Classes {
		w.writeClass(&p.Classes[i])
	}
	w.writeCount16("function count", len(p.Functions))
	for i := range p.Functions {
		w.writeFunction(&p.Functions[i])
	}
}

// writeClass writes a single class descriptor.
func (w *Writer) writeClass(c *Class) {
	w.writeUint16(c.Name)
	w.writeUint16(c.Superclass)
	w.writeUint16(c.Size)
	w.writeUint16(c.MethodCount)
	w.writeBool(c.InheritsInitializers)
	w.writeUint16(c.InitializerCount)
	w.writeCount16("used method count", len(c.Methods))
	w.writeCount16("used initializer count", len(c.Initializers))
	for i := range c.Methods {
		w.writeFunction(&c.Methods[i])
	}
	for i := range c.Initializers {
		w.writeFunction(&c.Initializers[i])
	}
	w.writeProtocolTable(&c.Protocols)

	w.writeCount16("record count", len(c.Records))
	for _, r := range c.Records {
		w.writeRecord(r)
	}
}

// writeFunction writes a function body with its frame records.
func (w *Writer) writeFunction(f *Function) {
	w.writeUint16(f.Index)
	w.writeUint16(f.Name)
	w.writeUint8(f.Arity)
	w.writeUint16(f.Native)
	w.writeUint16(f.FrameSize)

	w.writeUint32(uint32(len(f.Code)))
	for _, ins := range f.Code {
		w.writeUint32(uint32(ins))
	}

	w.writeCount16("frame record count", len(f.Records))
	for _, r := range f.Records {
		w.writeRecord(r.Record)
		w.writeOffset(r.From)
		w.writeOffset(r.To)
	}
}

// writeProtocolTable writes a count followed, when non-zero, by the bounds
// and one entry per protocol.
func (w *Writer) writeProtocolTable(t *ProtocolTable) {
	w.writeCount16("protocol count", len(t.Entries))
	if len(t.Entries) == 0 {
		return
	}
	w.writeUint16(t.Lowest)
	w.writeUint16(t.Highest)
	for _, e := range t.Entries {
		w.writeUint16(e.Protocol)
		w.writeCount16("protocol method count", len(e.Methods))
		for _, m := range e.Methods {
			w.writeUint16(m)
		}
	}
}

func (w *Writer) writeBoxTable(b *BoxTable) {
	w.writeUint16(b.Range)
	w.writeUint16(b.Lowest)
	w.writeCount16("box entry count", len(b.Entries))
	for i := range b.Entries {
		w.writeUint16(b.Entries[i].BoxID)
		w.writeProtocolTable(&b.Entries[i].Table)
	}
}

// writeStringTable writes the string pool: [length:16 | utf8 bytes]...
func (w *Writer) writeStringTable(strings []string) {
	w.writeCount16("string count", len(strings))
	for _, s := range strings {
		w.writeCount16("string length", len(s))
		w.writeString(s)
	}
}

func (w *Writer) writeRecord(r layout.Record) {
	for _, v := range [...]int{r.Index, r.Condition, int(r.Kind)} {
		w.writeCount16("record field", v)
	}
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) writeUint8(v uint8) {
	if w.err == nil {
		w.buf.WriteByte(v)
	}
}

func (w *Writer) writeBool(v bool) {
	if v {
		w.writeUint8(1)
	} else {
		w.writeUint8(0)
	}
}

func (w *Writer) writeString(s string) {
	if w.err == nil {
		w.buf.WriteString(s)
	}
}

func (w *Writer) writeUint16(v uint16) {
	if w.err == nil {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		w.buf.Write(b[:])
	}
}

func (w *Writer) writeUint32(v uint32) {
	if w.err == nil {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		w.buf.Write(b[:])
	}
}

// writeCount16 writes a non-negative int that must fit in 16 bits.
func (w *Writer) writeCount16(what string, n int) {
	if n < 0 || n > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: %s %d", ErrOverflow, what, n))
		return
	}
	w.writeUint16(uint16(n))
}

func (w *Writer) writeOffset(n int) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		w.fail(fmt.Errorf("%w: instruction offset %d", ErrOverflow, n))
		return
	}
	w.writeUint32(uint32(n))
}
