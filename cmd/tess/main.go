// tess - Tessera back end: compiles program models to runtime modules.
//
// Usage:
//
//	tess                            # build the project described by tessera.toml
//	tess -o out.tsm model/*.yaml    # compile model files directly
//	tess -S out.lst -symbols out.db # also write a listing and a symbol database
//	tess -dump out.tsm              # print a summary of a compiled module
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tessera/compiler"
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/manifest"
	"github.com/chazu/tessera/model"
	"github.com/chazu/tessera/symbols"
)

var log = commonlog.GetLogger("tessera.tess")

// errUsage is returned for bad invocations; usage has already been printed.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options collects everything a build needs after flags and the manifest
// have been merged.
type options struct {
	config  compiler.Config
	files   []string
	deps    []manifest.ResolvedDep
	module  string
	listing string
	symbols string
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tess", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output")
	debug := fs.Bool("debug", false, "Debug output")
	output := fs.String("o", "", "Output module path")
	dump := fs.String("dump", "", "Print a summary of a compiled module and exit")
	listing := fs.String("S", "", "Write a disassembly listing to this path")
	symbolsPath := fs.String("symbols", "", "Write a symbol database to this path")
	strict := fs.Bool("strict", false, "Treat errors like fatal diagnostics: emit nothing")
	noSweep := fs.Bool("no-sweep", false, "Do not validate unused callables")
	library := fs.Bool("library", false, "Export every non-private callable; no start function required")
	noColor := fs.Bool("no-color", false, "Disable coloured diagnostics")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tess [options] [model files...]\n\n")
		fmt.Fprintf(stderr, "Compiles program models (.yaml, .cbor) into a module. Without files,\n")
		fmt.Fprintf(stderr, "the sources of the nearest %s are compiled.\n\n", manifest.FileName)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	if *debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *noColor || !isTerminal(stderr) {
		color.NoColor = true
	}

	if *dump != "" {
		if err := dumpModule(*dump, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	opts, err := configure(fs.Args())
	if err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Flags override the manifest.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			opts.module = *output
		case "S":
			opts.listing = *listing
		case "symbols":
			opts.symbols = *symbolsPath
		case "strict":
			opts.config.Strict = *strict
		case "no-sweep":
			opts.config.Sweep = !*noSweep
		case "library":
			opts.config.Library = *library
		}
	})

	if err := build(opts, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// configure determines the build from the manifest, if any, and the files
// named on the command line. Named files replace the manifest's sources.
func configure(files []string) (*options, error) {
	opts := &options{config: compiler.DefaultConfig(), files: files}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		if len(files) == 0 {
			return nil, errUsage
		}
		opts.module = "out.tsm"
		return opts, nil
	}
	log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))

	opts.config.Library = m.Build.Library
	opts.config.Strict = m.Build.Strict
	opts.config.Sweep = m.Build.SweepEnabled()
	opts.module = m.Path(m.Output.Module)
	opts.listing = m.Path(m.Output.Listing)
	opts.symbols = m.Path(m.Output.Symbols)

	if len(files) > 0 {
		return opts, nil
	}

	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}
	opts.deps = deps
	for i := range deps {
		depFiles, err := deps[i].SourceFiles()
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", deps[i].Name, err)
		}
		opts.files = append(opts.files, depFiles...)
	}
	own, err := m.SourceFiles()
	if err != nil {
		return nil, err
	}
	opts.files = append(opts.files, own...)
	if len(opts.files) == 0 {
		return nil, fmt.Errorf("no program model files match %v", m.Source.Files)
	}
	return opts, nil
}

func build(opts *options, stderr io.Writer) error {
	prog, err := model.LoadAll(opts.files)
	if err != nil {
		return err
	}
	checkDependencyPackages(prog, opts.deps)

	s := compiler.NewSession(prog, opts.config)
	mod, err := s.Compile()
	printDiagnostics(stderr, &s.Diags)
	if err != nil {
		return err
	}

	data, err := image.Encode(mod)
	if err != nil {
		return fmt.Errorf("encoding module: %w", err)
	}
	if err := writeFile(opts.module, data); err != nil {
		return err
	}
	log.Infof("wrote %s (%d bytes)", opts.module, len(data))

	if opts.listing != "" {
		if err := writeFile(opts.listing, []byte(s.Listing())); err != nil {
			return err
		}
	}
	if opts.symbols != "" {
		if err := os.MkdirAll(filepath.Dir(opts.symbols), 0755); err != nil {
			return err
		}
		if err := symbols.Write(opts.symbols, s); err != nil {
			return fmt.Errorf("writing symbols: %w", err)
		}
	}
	return nil
}

// checkDependencyPackages warns about dependencies whose model files do not
// declare the package they are expected to provide.
func checkDependencyPackages(prog *model.Program, deps []manifest.ResolvedDep) {
	declared := make(map[string]bool)
	for _, pkg := range prog.Packages {
		declared[pkg.Name] = true
	}
	for _, dep := range deps {
		if !declared[dep.Package] {
			log.Warningf("dependency %s declares no package %q", dep.Name, dep.Package)
		}
	}
}

func dumpModule(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := image.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	_, err = io.WriteString(w, image.Dump(m))
	return err
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
