package model

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/chazu/tessera/diag"
)

// Format is an encoding of the program model.
type Format int

const (
	// YAML is the hand-written fixture format.
	YAML Format = iota
	// CBOR is the format front ends hand to the back end.
	CBOR
)

// ErrUnknownFormat is returned for files whose extension names no format.
var ErrUnknownFormat = errors.New("unknown program model format")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("model: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".cbor":
		return CBOR, nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// Decode parses a program model. Positions without a file are attributed
// to source.
func Decode(data []byte, format Format, source string) (*Program, error) {
	var p Program
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("model: decode yaml: %w", err)
		}
	case CBOR:
		if err := cbor.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("model: decode cbor: %w", err)
		}
	default:
		return nil, ErrUnknownFormat
	}
	p.Source = source
	p.stamp()
	return &p, nil
}

// Load reads a program model file.
func Load(path string) (*Program, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	return Decode(data, format, path)
}

// LoadAll reads several files into one program, keeping package order.
func LoadAll(paths []string) (*Program, error) {
	merged := &Program{}
	for _, path := range paths {
		p, err := Load(path)
		if err != nil {
			return nil, err
		}
		merged.Packages = append(merged.Packages, p.Packages...)
		if merged.Source == "" {
			merged.Source = path
		}
	}
	return merged, nil
}

// EncodeCBOR encodes a program deterministically.
func EncodeCBOR(p *Program) ([]byte, error) {
	data, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("model: encode cbor: %w", err)
	}
	return data, nil
}

// stamp attributes positions without a file to the program's source.
func (p *Program) stamp() {
	if p.Source == "" {
		return
	}
	fill := func(pos *diag.Position) {
		if pos.File == "" {
			pos.File = p.Source
		}
	}
	callable := func(c *Callable) {
		fill(&c.Pos)
		WalkBody(c.Body, func(n *Node) { fill(&n.Pos) })
	}
	for _, pkg := range p.Packages {
		for _, c := range pkg.Classes {
			fill(&c.Pos)
			for _, m := range c.Callables() {
				callable(m)
			}
		}
		for _, v := range pkg.ValueTypes {
			fill(&v.Pos)
			for _, m := range v.Callables() {
				callable(m)
			}
		}
		for _, pr := range pkg.Protocols {
			fill(&pr.Pos)
			for _, m := range pr.Methods {
				fill(&m.Pos)
			}
		}
		for _, f := range pkg.Functions {
			callable(f)
		}
	}
}
