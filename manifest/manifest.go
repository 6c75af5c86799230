// Package manifest handles tessera.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project manifest.
const FileName = "tessera.toml"

// Manifest represents a tessera.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Build        Build                 `toml:"build"`
	Output       Output                `toml:"output"`

	// Dir is the directory containing the tessera.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source lists the program model files, as glob patterns relative to the
// manifest directory.
type Source struct {
	Files []string `toml:"files"`
}

// Dependency is another project whose program model is linked in.
type Dependency struct {
	Git     string `toml:"git"`
	Tag     string `toml:"tag"`
	Path    string `toml:"path"`
	Package string `toml:"package"`
}

// Build selects compilation options.
type Build struct {
	Library bool  `toml:"library"`
	Strict  bool  `toml:"strict"`
	Sweep   *bool `toml:"sweep"`
}

// SweepEnabled reports whether unused callables are validated. It defaults
// to true.
func (b Build) SweepEnabled() bool {
	return b.Sweep == nil || *b.Sweep
}

// Output configures the files written by a build.
type Output struct {
	Module  string `toml:"module"`
	Symbols string `toml:"symbols"`
	Listing string `toml:"listing"`
}

// Load parses a tessera.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Files) == 0 {
		m.Source.Files = []string{"model/*.yaml", "model/*.cbor"}
	}
	if m.Output.Module == "" {
		name := m.Project.Name
		if name == "" {
			name = filepath.Base(m.Dir)
		}
		m.Output.Module = filepath.Join("build", name+".tsm")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a tessera.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceFiles expands the source patterns to absolute paths, sorted and
// without duplicates.
func (m *Manifest) SourceFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range m.Source.Files {
		matches, err := filepath.Glob(m.Path(pattern))
		if err != nil {
			return nil, fmt.Errorf("bad source pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, f := range matches {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// Path resolves p against the manifest directory unless it is absolute.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// DepsDir returns the path to the .tessera/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".tessera", "deps")
}

// LockFilePath returns the path to .tessera/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".tessera", "lock.toml")
}
