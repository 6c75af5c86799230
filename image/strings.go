package image

// StringPool deduplicates the strings a module references. Index 0 is always
// the empty string.
type StringPool struct {
	strings  []string
	index    map[string]uint16
	overflow bool
}

// NewStringPool creates a pool holding only the empty string.
func NewStringPool() *StringPool {
	return &StringPool{
		strings: []string{""},
		index:   map[string]uint16{"": 0},
	}
}

// Intern returns the index of s, adding it if needed. Once the pool is full
// further new strings map to 0 and Overflowed reports true.
func (p *StringPool) Intern(s string) uint16 {
	if idx, ok := p.index[s]; ok {
		return idx
	}
	if len(p.strings) >= 0xFFFF {
		p.overflow = true
		return 0
	}
	idx := uint16(len(p.strings))
	p.strings = append(p.strings, s)
	p.index[s] = idx
	return idx
}

// Lookup returns the index of s if it was interned.
func (p *StringPool) Lookup(s string) (uint16, bool) {
	idx, ok := p.index[s]
	return idx, ok
}

// Strings returns the pool in index order.
func (p *StringPool) Strings() []string { return p.strings }

// Len returns the number of pooled strings.
func (p *StringPool) Len() int { return len(p.strings) }

// Overflowed reports whether a string was dropped because the pool was full.
func (p *StringPool) Overflowed() bool { return p.overflow }
