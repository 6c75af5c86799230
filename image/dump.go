package image

import (
	"fmt"
	"strings"
)

// Dump renders a human-readable summary of a module.
func Dump(m *Module) string {
	var sb strings.Builder
	name := func(idx uint16) string {
		if int(idx) < len(m.Strings) {
			return m.Strings[idx]
		}
		return fmt.Sprintf("<string %d>", idx)
	}

	fmt.Fprintf(&sb, "module v%d: %d classes, %d functions, %d packages, %d strings\n",
		m.Version, m.ClassCount, m.FunctionCount, len(m.Packages), len(m.Strings))

	for _, p := range m.Packages {
		if p.Anonymous() {
			sb.WriteString("package <anonymous>\n")
		} else {
			fmt.Fprintf(&sb, "package %s %d.%d\n", p.Name, p.Major, p.Minor)
		}
		for _, c := range p.Classes {
			fmt.Fprintf(&sb, "  class %s super=%d size=%d methods=%d/%d initializers=%d/%d",
				name(c.Name), c.Superclass, c.Size,
				len(c.Methods), c.MethodCount, len(c.Initializers), c.InitializerCount)
			if c.InheritsInitializers {
				sb.WriteString(" inherits-initializers")
			}
			sb.WriteByte('\n')
			for _, r := range c.Records {
				fmt.Fprintf(&sb, "    record %s\n", r)
			}
			dumpProtocols(&sb, "    ", &c.Protocols)
			for _, f := range c.Methods {
				dumpFunction(&sb, "    method ", name(f.Name), &f)
			}
			for _, f := range c.Initializers {
				dumpFunction(&sb, "    initializer ", name(f.Name), &f)
			}
		}
		for _, f := range p.Functions {
			dumpFunction(&sb, "  function ", name(f.Name), &f)
		}
	}

	if len(m.Boxes.Entries) > 0 {
		fmt.Fprintf(&sb, "boxes %d..%d\n", m.Boxes.Lowest, int(m.Boxes.Lowest)+int(m.Boxes.Range)-1)
		for _, b := range m.Boxes.Entries {
			fmt.Fprintf(&sb, "  box %d\n", b.BoxID)
			dumpProtocols(&sb, "    ", &b.Table)
		}
	}
	return sb.String()
}

func dumpFunction(sb *strings.Builder, prefix, name string, f *Function) {
	fmt.Fprintf(sb, "%s%s #%d arity=%d frame=%d", prefix, name, f.Index, f.Arity, f.FrameSize)
	if f.Native != 0 {
		fmt.Fprintf(sb, " native=%d\n", f.Native)
		return
	}
	fmt.Fprintf(sb, " words=%d records=%d\n", len(f.Code), len(f.Records))
}

func dumpProtocols(sb *strings.Builder, indent string, t *ProtocolTable) {
	if len(t.Entries) == 0 {
		return
	}
	fmt.Fprintf(sb, "%sprotocols %d..%d\n", indent, t.Lowest, t.Highest)
	for _, e := range t.Entries {
		fmt.Fprintf(sb, "%s  protocol %d:", indent, e.Protocol)
		for _, idx := range e.Methods {
			if idx == NoDispatchIndex {
				sb.WriteString(" -")
			} else {
				fmt.Fprintf(sb, " %d", idx)
			}
		}
		sb.WriteByte('\n')
	}
}
